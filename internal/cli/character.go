package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollforge/internal/app"
	"github.com/roach88/rollforge/internal/character"
	"github.com/roach88/rollforge/internal/rules"
)

// DraftOptions holds the character fields shared by create and update.
type DraftOptions struct {
	*RootOptions
	Name          string
	Class         string
	Level         int
	Scores        map[string]int
	Proficiencies []string
	Portrait      string
	Notes         string
	Items         []string
}

func addDraftFlags(cmd *cobra.Command, opts *DraftOptions) {
	cmd.Flags().StringVar(&opts.Name, "name", "", "character name")
	cmd.Flags().StringVar(&opts.Class, "class", "", "character class (default from rules)")
	cmd.Flags().IntVar(&opts.Level, "level", 1, "character level")
	cmd.Flags().StringToIntVar(&opts.Scores, "score", nil, "ability scores, e.g. --score STR=15,DEX=14")
	cmd.Flags().StringSliceVar(&opts.Proficiencies, "prof", nil, "proficient skills")
	cmd.Flags().StringVar(&opts.Portrait, "portrait", "", "portrait image to copy into the data directory")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringArrayVar(&opts.Items, "item", nil, "inventory item as name or name=quantity (repeatable)")
}

func (o *DraftOptions) scores() map[rules.Ability]int {
	if o.Scores == nil {
		return nil
	}
	out := make(map[rules.Ability]int, len(o.Scores))
	for k, v := range o.Scores {
		out[rules.Ability(strings.ToUpper(strings.TrimSpace(k)))] = v
	}
	return out
}

func (o *DraftOptions) inventory() ([]character.Item, error) {
	items := make([]character.Item, 0, len(o.Items))
	for _, raw := range o.Items {
		name, qty, found := strings.Cut(raw, "=")
		item := character.Item{Name: name, Quantity: 1}
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil {
				return nil, fmt.Errorf("item %q: quantity must be a number", raw)
			}
			item.Quantity = n
		}
		items = append(items, item)
	}
	return items, nil
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a character",
		Long: `Create a character. Every ability score is required.

Example:
  rollforge create --name Vex --class Rogue --level 5 \
    --score STR=8,DEX=16,CON=14,INT=12,WIS=13,CHA=10 --prof Stealth,Perception`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}
	addDraftFlags(cmd, opts)

	return cmd
}

func runCreate(opts *DraftOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	items, err := opts.inventory()
	if err != nil {
		return failWith(f, ErrCodeUsage, ExitCommandError, err)
	}

	return withManager(opts.RootOptions, cmd, f, func(ctx context.Context, m *app.Manager) error {
		d := character.Draft{
			Name:          opts.Name,
			Class:         opts.Class,
			Level:         opts.Level,
			Scores:        opts.scores(),
			Proficiencies: opts.Proficiencies,
			Portrait:      opts.Portrait,
			Notes:         opts.Notes,
			Inventory:     items,
		}
		if d.Class == "" {
			d.Class = m.Ruleset().DefaultClass
		}
		rec, err := m.Create(ctx, d)
		if err != nil {
			return fail(f, err)
		}
		return f.Render(character.ToWire(rec), func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Created %s (%s)\n", rec.Name, rec.ID)
			return err
		})
	})
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DraftOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a character",
		Long: `Change fields of a character. Only the flags given are applied; a
--score flag overrides just the abilities it names.

Example:
  rollforge update 0192f3b4-... --level 6 --score DEX=18`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], cmd)
		},
	}
	addDraftFlags(cmd, opts)

	return cmd
}

func runUpdate(opts *DraftOptions, id string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	p, err := opts.patch(cmd)
	if err != nil {
		return failWith(f, ErrCodeUsage, ExitCommandError, err)
	}

	return withManager(opts.RootOptions, cmd, f, func(ctx context.Context, m *app.Manager) error {
		rec, err := m.Patch(ctx, id, p)
		if err != nil {
			return fail(f, err)
		}
		return f.Render(character.ToWire(rec), func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Updated %s (%s)\n", rec.Name, rec.ID)
			return err
		})
	})
}

// patch builds a patch from the flags that were set on cmd.
func (o *DraftOptions) patch(cmd *cobra.Command) (character.Patch, error) {
	var p character.Patch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &o.Name
	}
	if changed("class") {
		p.Class = &o.Class
	}
	if changed("level") {
		p.Level = &o.Level
	}
	if changed("score") {
		p.Scores = o.scores()
	}
	if changed("prof") {
		p.Proficiencies = &o.Proficiencies
	}
	if changed("portrait") {
		p.Portrait = &o.Portrait
	}
	if changed("notes") {
		p.Notes = &o.Notes
	}
	if changed("item") {
		items, err := o.inventory()
		if err != nil {
			return character.Patch{}, err
		}
		p.Inventory = &items
	}
	return p, nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a character and its stored portrait",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withManager(rootOpts, cmd, f, func(ctx context.Context, m *app.Manager) error {
				rec, err := m.Delete(ctx, args[0])
				if err != nil {
					return fail(f, err)
				}
				return f.Render(map[string]string{"id": rec.ID, "name": rec.Name}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted %s (%s)\n", rec.Name, rec.ID)
					return err
				})
			})
		},
	}

	return cmd
}
