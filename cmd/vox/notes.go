package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/monitor"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

func newNoteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "note [text...]",
		Short: "Process a typed note",
		Long: `Process a typed note through the same pipeline as a recording.

Examples:
  vox note "remind me to call mom"
  echo "buy bread and butter" | vox note -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := noteText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.reg.Notes().ProcessText(cmd.Context(), text)
			if err != nil {
				return userError(a.logger, err)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.FormatOutcome(out))
			return nil
		},
	}
}

func noteText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		if f, ok := stdin.(*os.File); ok && len(args) == 0 && isTerminal(f) {
			return "", errNoInput
		}
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	return strings.Join(args, " "), nil
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		typ    string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		Long: `List entities, newest first.

Examples:
  vox list
  vox list --type todo
  vox list --status completed --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.Filter{Limit: limit}
			if typ != "" {
				t, err := entity.ParseType(typ)
				if err != nil {
					return err
				}
				f.Type = t
			}
			if status != "" {
				switch st := entity.Status(strings.ToLower(status)); st {
				case entity.StatusActive, entity.StatusCompleted, entity.StatusCancelled:
					f.Status = st
				default:
					return fmt.Errorf("unknown status %q", status)
				}
			}

			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			es, err := a.reg.Store().List(cmd.Context(), f)
			if err != nil {
				return userError(a.logger, err)
			}
			return printEntities(cmd.OutOrStdout(), g, es)
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "entity type (todo, reminder, event, shopping, idea, note)")
	cmd.Flags().StringVar(&status, "status", string(entity.StatusActive), "status (active, completed, cancelled); empty for all")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "maximum entities")
	return cmd
}

func newUpcomingCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show active todos, reminders and events by date",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			es, err := a.reg.Store().QueryUpcoming(cmd.Context(), limit)
			if err != nil {
				return userError(a.logger, err)
			}
			return printEntities(cmd.OutOrStdout(), g, es)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultUpcomingLimit, "maximum entities")
	return cmd
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search entity content and transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			es, err := a.reg.Store().Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return userError(a.logger, err)
			}
			return printEntities(cmd.OutOrStdout(), g, es)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultSearchLimit, "maximum entities")
	return cmd
}

func newCompleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an entity completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reg.Store().MarkComplete(cmd.Context(), args[0]); err != nil {
				return userError(a.logger, err)
			}
			e, err := a.reg.Store().Get(cmd.Context(), args[0])
			if err != nil {
				return userError(a.logger, err)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), e)
			}
			fmt.Fprintln(cmd.OutOrStdout(), monitor.FormatEntity(e))
			return nil
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reg.Store().Delete(cmd.Context(), args[0]); err != nil {
				return userError(a.logger, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printEntities(w io.Writer, g *globalFlags, es []entity.Entity) error {
	if g.jsonOut {
		if es == nil {
			es = []entity.Entity{}
		}
		return writeJSON(w, es)
	}
	_, err := fmt.Fprintln(w, monitor.FormatEntities(es))
	return err
}

var errNoInput = errors.New("no note text given")

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
