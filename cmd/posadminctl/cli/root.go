package cli

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/posadmin/posadmin/internal/suppliers"
	"github.com/posadmin/posadmin/jobs"
)

// SupplierOps is the part of the supplier service the CLI drives.
type SupplierOps interface {
	Duplicates(ctx context.Context) ([]suppliers.DuplicateGroup, error)
	MergeDuplicates(ctx context.Context, actor suppliers.Actor, key string) ([]suppliers.MergeResult, error)
	Import(ctx context.Context, actor suppliers.Actor, filename string, data []byte, mode string) (suppliers.ImportResult, error)
}

// JobOps triggers and inspects background jobs.
type JobOps interface {
	Trigger(ctx context.Context, typ string, at time.Time) (*asynq.TaskInfo, error)
	Stats() ([]jobs.QueueStats, error)
}

// Env holds the dependencies a command runs against.
type Env struct {
	Suppliers SupplierOps
	Jobs      JobOps
}

// Loader builds the Env. It runs only when a command executes so --help
// works without a database. The returned func releases resources.
type Loader func(ctx context.Context) (*Env, func(), error)

var errNotConfigured = errors.New("posadminctl: dependency not configured")

// NewRootCmd assembles the posadminctl command tree.
func NewRootCmd(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "posadminctl",
		Short:         "Operational commands for POS Admin",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Int64("as-user", 0, "User id recorded in the activity log (0 for system)")

	root.AddCommand(
		newSuppliersCmd(load),
		newJobsCmd(load),
	)
	return root
}

func withEnv(cmd *cobra.Command, load Loader, fn func(env *Env) error) error {
	env, release, err := load(cmd.Context())
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(env)
}

func actorFrom(cmd *cobra.Command) suppliers.Actor {
	id, _ := cmd.Flags().GetInt64("as-user")
	return suppliers.Actor{UserID: id, IP: "cli"}
}
