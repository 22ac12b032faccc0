package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/posadmin/posadmin/jobs"
)

func newJobsCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job helpers",
	}
	cmd.AddCommand(
		newTriggerCmd(load),
		newInspectCmd(load),
	)
	return cmd
}

func newTriggerCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <type>",
		Short: "Enqueue a scheduled job now",
		Long:  "Enqueues one of the cron jobs for immediate processing. Known types: " + strings.Join(jobs.TaskTypes(), ", "),
		Example: `  # Recalculate supplier performance now
  posadminctl jobs trigger ` + jobs.TaskSupplierSnapshot,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := args[0]
			if !slices.Contains(jobs.TaskTypes(), typ) {
				return fmt.Errorf("%w: %q (known: %s)", jobs.ErrUnknownTask, typ, strings.Join(jobs.TaskTypes(), ", "))
			}
			return withEnv(cmd, load, func(env *Env) error {
				if env.Jobs == nil {
					return errNotConfigured
				}
				info, err := env.Jobs.Trigger(cmd.Context(), typ, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("trigger %s: %w", typ, err)
				}
				if info == nil {
					return errors.New("trigger: queue returned no task info")
				}
				cmd.Printf("Enqueued %s as %s on queue %s.\n", typ, info.ID, info.Queue)
				return nil
			})
		},
	}
}

func newInspectCmd(load Loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, load, func(env *Env) error {
				if env.Jobs == nil {
					return errNotConfigured
				}
				stats, err := env.Jobs.Stats()
				if err != nil {
					return fmt.Errorf("inspect queues: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				cmd.Printf("%-10s %8s %8s %10s %6s %9s\n", "QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED")
				for _, s := range stats {
					cmd.Printf("%-10s %8d %8d %10d %6d %9d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}
