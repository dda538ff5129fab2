package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/rollforge/internal/app"
	"github.com/roach88/rollforge/internal/character"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List characters in creation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withManager(rootOpts, cmd, f, func(ctx context.Context, m *app.Manager) error {
				recs := m.List()
				wires := make([]character.Wire, len(recs))
				for i, r := range recs {
					wires[i] = character.ToWire(r)
				}
				return f.Render(wires, func(w io.Writer) error {
					return writeList(w, recs)
				})
			})
		},
	}

	return cmd
}

func writeList(w io.Writer, recs []*character.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No characters.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCLASS\tLEVEL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.Name, r.Class, r.Level)
	}
	return tw.Flush()
}

// sheetView is the JSON form of the show command.
type sheetView struct {
	Character character.Wire   `json:"character"`
	Sheet     *character.Sheet `json:"sheet"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show a character sheet with derived values",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withManager(rootOpts, cmd, f, func(ctx context.Context, m *app.Manager) error {
				rec, err := m.Get(args[0])
				if err != nil {
					return fail(f, err)
				}
				sheet, err := m.Sheet(rec.ID)
				if err != nil {
					return fail(f, err)
				}
				view := sheetView{Character: character.ToWire(rec), Sheet: sheet}
				return f.Render(view, func(w io.Writer) error {
					return writeSheet(w, rec, sheet)
				})
			})
		},
	}

	return cmd
}

func writeSheet(w io.Writer, rec *character.Record, s *character.Sheet) error {
	fmt.Fprintf(w, "%s (%s %d)\n", rec.Name, rec.Class, rec.Level)
	fmt.Fprintf(w, "id: %s\n", rec.ID)
	if rec.Portrait != "" {
		fmt.Fprintf(w, "portrait: %s\n", rec.Portrait)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-19s%s\n", "Proficiency bonus", signed(s.ProficiencyBonus))
	fmt.Fprintf(w, "%-19s%d\n", "Hit points", s.HitPoints)
	fmt.Fprintf(w, "%-19s%d\n", "Armor class", s.ArmorClass)
	fmt.Fprintf(w, "%-19s%s\n", "Initiative", signed(s.Initiative))
	fmt.Fprintf(w, "%-19s%d\n", "Passive Perception", s.PassivePerception)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-8s%5s%5s%5s\n", "ABILITY", "SCORE", "MOD", "SAVE")
	for _, a := range s.Abilities {
		fmt.Fprintf(w, "%-8s%5d%5s%5s%s\n", a.Ability, a.Score, signed(a.Modifier), signed(a.Save), marker(a.SaveProficient))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-16s%-8s%5s\n", "SKILL", "ABILITY", "BONUS")
	for _, sk := range s.Skills {
		fmt.Fprintf(w, "%-16s%-8s%5s%s\n", sk.Name, sk.Ability, signed(sk.Bonus), marker(sk.Proficient))
	}

	if len(rec.Inventory) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "INVENTORY")
		for _, item := range rec.Inventory {
			fmt.Fprintf(w, "  %s x%d\n", item.Name, item.Quantity)
		}
	}
	if rec.Notes != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "NOTES")
		fmt.Fprintln(w, rec.Notes)
	}
	return nil
}

func signed(n int) string {
	return fmt.Sprintf("%+d", n)
}

// marker flags proficient rows.
func marker(proficient bool) string {
	if proficient {
		return " *"
	}
	return ""
}

// RollOptions holds flags for the roll command.
type RollOptions struct {
	*RootOptions
	Die       int
	Expertise bool
}

// NewRollCommand creates the roll command.
func NewRollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "roll <id> <skill|ability>",
		Short: "Roll an ability or skill check",
		Long: `Roll a d20 ability or skill check for a character.

Use --die to enter the result of a physical die instead of rolling.

Example:
  rollforge roll 0192f3b4-... Stealth --expertise
  rollforge roll 0192f3b4-... DEX --die 14`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoll(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Die, "die", 0, "use this d20 result instead of rolling")
	cmd.Flags().BoolVar(&opts.Expertise, "expertise", false, "apply expertise (classes that allow it, proficient skills only)")

	return cmd
}

func runRoll(opts *RollOptions, id, target string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	var die *int
	if cmd.Flags().Changed("die") {
		die = &opts.Die
	}

	return withManager(opts.RootOptions, cmd, f, func(ctx context.Context, m *app.Manager) error {
		res, err := m.Check(id, target, die, opts.Expertise)
		if err != nil {
			return fail(f, err)
		}
		return f.Render(res, func(w io.Writer) error {
			return writeCheck(w, res)
		})
	})
}

func writeCheck(w io.Writer, res *character.CheckResult) error {
	line := fmt.Sprintf("%s check: %d (d20 %d %s %s", res.Target, res.Total, res.Die, sign(res.AbilityModifier), abs(res.AbilityModifier))
	if res.ProficiencyBonus != 0 {
		line += " + " + strconv.Itoa(res.ProficiencyBonus) + " proficiency"
	}
	if res.ExpertiseBonus != 0 {
		line += " + " + strconv.Itoa(res.ExpertiseBonus) + " expertise"
	}
	_, err := fmt.Fprintln(w, line+")")
	return err
}

func sign(n int) string {
	if n < 0 {
		return "-"
	}
	return "+"
}

func abs(n int) string {
	if n < 0 {
		n = -n
	}
	return strconv.Itoa(n)
}
