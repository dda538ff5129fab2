package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollforge/internal/app"
	"github.com/roach88/rollforge/internal/portable"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	All      bool
	Encoding string
	Output   string
}

// ExportResult is the JSON response when export writes a file.
type ExportResult struct {
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
	Bytes    int    `json:"bytes"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [id]",
		Short: "Export characters to a portable document",
		Long: `Export one character, or every character with --all, as a portable
JSON or YAML document. The document carries a digest that import verifies.

Example:
  rollforge export 0192f3b4-... --encoding yaml -o vex.yaml
  rollforge export --all -o party.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "export every character as one bundle")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", "json", "document encoding (json|yaml)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runExport(opts *ExportOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	enc, err := portable.ParseEncoding(opts.Encoding)
	if err != nil {
		return failWith(f, ErrCodeUsage, ExitCommandError, err)
	}
	if opts.All == (len(args) == 1) {
		return failWith(f, ErrCodeUsage, ExitCommandError, fmt.Errorf("give either a character id or --all"))
	}

	return withManager(opts.RootOptions, cmd, f, func(ctx context.Context, m *app.Manager) error {
		var data []byte
		var err error
		if opts.All {
			data, err = m.ExportAll(enc)
		} else {
			data, err = m.Export(args[0], enc)
		}
		if err != nil {
			return fail(f, err)
		}

		if opts.Output == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return failWith(f, ErrCodeIO, ExitCommandError, err)
		}
		res := ExportResult{Path: opts.Output, Encoding: string(enc), Bytes: len(data)}
		return f.Render(res, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Exported to %s\n", opts.Output)
			return err
		})
	})
}

// ImportResult is the JSON response of the import command.
type ImportResult struct {
	IDs []string `json:"ids"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import characters from a portable document",
		Long: `Import characters from a portable JSON or YAML document ("-" reads
stdin). Every character gets a fresh id. If any character in a bundle is
invalid, nothing is imported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return failWith(f, ErrCodeIO, ExitCommandError, err)
	}

	return withManager(opts, cmd, f, func(ctx context.Context, m *app.Manager) error {
		recs, err := m.Import(ctx, data)
		if err != nil {
			return fail(f, err)
		}
		res := ImportResult{IDs: make([]string, len(recs))}
		for i, r := range recs {
			res.IDs[i] = r.ID
		}
		return f.Render(res, func(w io.Writer) error {
			for _, r := range recs {
				fmt.Fprintf(w, "Imported %s (%s)\n", r.Name, r.ID)
			}
			return nil
		})
	})
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rules",
		Short:         "Show the active ruleset",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withManager(rootOpts, cmd, f, func(ctx context.Context, m *app.Manager) error {
				rs := m.Ruleset()
				return f.Render(rs, func(w io.Writer) error {
					fmt.Fprintf(w, "Ruleset %s\n", rs.Name)
					fmt.Fprintf(w, "Scores %d..%d, levels 1..%d\n\n", rs.MinScore, rs.MaxScore, rs.MaxLevel)
					fmt.Fprintf(w, "%-12s%-4s  %s\n", "CLASS", "HIT", "SAVES")
					for _, c := range rs.Classes {
						saves := make([]string, len(c.SavingThrows))
						for i, a := range c.SavingThrows {
							saves[i] = string(a)
						}
						fmt.Fprintf(w, "%-12sd%-3d  %s\n", c.Name, c.HitDie, strings.Join(saves, " "))
					}
					fmt.Fprintln(w)
					fmt.Fprintf(w, "%-16s%s\n", "SKILL", "ABILITY")
					for _, s := range rs.Skills {
						fmt.Fprintf(w, "%-16s%s\n", s.Name, s.Ability)
					}
					return nil
				})
			})
		},
	}

	return cmd
}
