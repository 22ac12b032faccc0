package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/posadmin/posadmin/internal/suppliers"
)

func newSuppliersCmd(load Loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suppliers",
		Short: "Supplier maintenance",
	}
	cmd.AddCommand(
		newDedupeCmd(load),
		newImportCmd(load),
	)
	return cmd
}

const dedupeExample = `  # List duplicate groups without changing anything
  posadminctl suppliers dedupe

  # Merge every group and print the result as JSON
  posadminctl suppliers dedupe --apply --json`

func newDedupeCmd(load Loader) *cobra.Command {
	var apply, asJSON bool
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find and merge suppliers with the same normalized name",
		Long: `Groups suppliers whose names match after case folding and whitespace
collapsing. The lowest id in each group is kept. Without --apply the
command only reports what a merge would do.`,
		Example: dedupeExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, load, func(env *Env) error {
				if env.Suppliers == nil {
					return errNotConfigured
				}
				if !apply {
					groups, err := env.Suppliers.Duplicates(cmd.Context())
					if err != nil {
						return fmt.Errorf("list duplicates: %w", err)
					}
					if asJSON {
						return writeJSON(cmd, groups)
					}
					printGroups(cmd, groups)
					return nil
				}
				results, err := env.Suppliers.MergeDuplicates(cmd.Context(), actorFrom(cmd), "")
				if err != nil {
					return fmt.Errorf("merge duplicates: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, results)
				}
				printMerges(cmd, results)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Merge the groups instead of listing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}

func printGroups(cmd *cobra.Command, groups []suppliers.DuplicateGroup) {
	if len(groups) == 0 {
		cmd.Println("No duplicate suppliers found.")
		return
	}
	for _, g := range groups {
		names := make([]string, 0, len(g.Dupes))
		for _, d := range g.Dupes {
			names = append(names, fmt.Sprintf("#%d %s", d.ID, d.Name))
		}
		cmd.Printf("%q: keep #%d %s, merge %s\n", g.Key, g.Keep.ID, g.Keep.Name, strings.Join(names, ", "))
	}
	cmd.Printf("%d group(s). Re-run with --apply to merge.\n", len(groups))
}

func printMerges(cmd *cobra.Command, results []suppliers.MergeResult) {
	if len(results) == 0 {
		cmd.Println("No duplicate suppliers found.")
		return
	}
	removed := 0
	for _, r := range results {
		removed += len(r.Removed)
		cmd.Printf("%q: kept #%d, removed %v\n", r.Key, r.KeptID, r.Removed)
	}
	cmd.Printf("Merged %d group(s), removed %d supplier(s).\n", len(results), removed)
}

const importExample = `  # Import new suppliers, leaving existing ones untouched
  posadminctl suppliers import suppliers.xlsx

  # Update suppliers that match by code or name
  posadminctl suppliers import suppliers.csv --mode update`

func newImportCmd(load Loader) *cobra.Command {
	var mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "import <file>",
		Short:   "Import suppliers from a CSV, XLSX or XLS file",
		Example: importExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != suppliers.ImportSkip && mode != suppliers.ImportUpdate {
				return fmt.Errorf("--mode must be %s or %s", suppliers.ImportSkip, suppliers.ImportUpdate)
			}
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.Size() > suppliers.MaxImportBytes {
				return suppliers.ErrImportTooLarge
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return withEnv(cmd, load, func(env *Env) error {
				if env.Suppliers == nil {
					return errNotConfigured
				}
				res, err := env.Suppliers.Import(cmd.Context(), actorFrom(cmd), filepath.Base(path), data, mode)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				if asJSON {
					return writeJSON(cmd, res)
				}
				cmd.Println(res.Summary())
				for _, rowErr := range res.Errors {
					cmd.Printf("  line %d: %s\n", rowErr.Line, rowErr.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", suppliers.ImportSkip, "How to treat existing suppliers: skip or update")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON output")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
