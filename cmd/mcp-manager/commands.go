package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/config"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/engine"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/history"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

// ErrHistoryDisabled is returned by the history command when preferences
// turn the audit log off.
var ErrHistoryDisabled = errors.New("history is disabled in preferences")

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp runs fn against a freshly loaded engine.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	a.warnOnErrors(cmd.ErrOrStderr())
	if _, err := a.eng.ReloadAll(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func newListCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List MCP servers in both scopes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entries, err := a.eng.ListEntries(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				printEntries(cmd.OutOrStdout(), entries, a.eng.Paths())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printEntries(w io.Writer, entries []mcpconfig.ServerView, paths map[mcpconfig.Scope]string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No MCP servers found. Checked paths:")
		for _, scope := range mcpconfig.Scopes {
			fmt.Fprintf(w, "  %s\n", paths[scope])
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tNAME\tTYPE\tSTATE\tCOMMAND")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Scope, e.Name, e.Type, onOff(e.Enabled), e.CommandPreview)
	}
	tw.Flush()
}

func onOff(enabled bool) string {
	if enabled {
		return "ON"
	}
	return "OFF"
}

func parseTarget(args []string) (mcpconfig.Scope, string, error) {
	scope, err := mcpconfig.ParseScope(args[0])
	if err != nil {
		return "", "", err
	}
	return scope, args[1], nil
}

func reportResult(w io.Writer, scope mcpconfig.Scope, name string, res engine.Result) error {
	if !res.OK {
		return fmt.Errorf("%s/%s: %s", scope, name, res.Message)
	}
	fmt.Fprintf(w, "%s/%s: %s (%s)\n", scope, name, onOff(res.Enabled), res.Message)
	return nil
}

// change applies or previews one enabled-flag change.
type change struct {
	apply   func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (engine.Result, error)
	preview func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (mcpconfig.Preview, bool, error)
}

func newChangeCmd(opts *options, use, short string, c change) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   use + " <global|local> <name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, name, err := parseTarget(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if dryRun {
					p, found, err := c.preview(ctx, a.eng, scope, name)
					if err != nil {
						return err
					}
					if !found {
						return fmt.Errorf("%s/%s: %s", scope, name, engine.MsgNothingToToggle)
					}
					printPreview(cmd.OutOrStdout(), scope, name, p)
					return nil
				}
				res, err := c.apply(ctx, a.eng, scope, name)
				if err != nil {
					return err
				}
				return reportResult(cmd.OutOrStdout(), scope, name, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the diff that would be written without saving")
	return cmd
}

func printPreview(w io.Writer, scope mcpconfig.Scope, name string, p mcpconfig.Preview) {
	if !p.Changed() {
		fmt.Fprintf(w, "%s/%s: %s, no changes to %s\n", scope, name, onOff(p.Enabled), p.Path)
		return
	}
	fmt.Fprint(w, p.Diff)
	fmt.Fprintf(w, "%s/%s: %s would change %s (+%d -%d)\n", scope, name, onOff(p.Enabled), p.Path, p.Added, p.Removed)
}

func newToggleCmd(opts *options) *cobra.Command {
	return newChangeCmd(opts, "toggle", "Flip a server's enabled flag", change{
		apply: func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (engine.Result, error) {
			return eng.Toggle(ctx, scope, name)
		},
		preview: func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (mcpconfig.Preview, bool, error) {
			return eng.PreviewToggle(ctx, scope, name)
		},
	})
}

func newSetCmd(opts *options, use string, value bool) *cobra.Command {
	return newChangeCmd(opts, use, strings.ToUpper(use[:1])+use[1:]+" a server", change{
		apply: func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (engine.Result, error) {
			return eng.SetEnabled(ctx, scope, name, value)
		},
		preview: func(ctx context.Context, eng *engine.Engine, scope mcpconfig.Scope, name string) (mcpconfig.Preview, bool, error) {
			return eng.PreviewSet(ctx, scope, name, value)
		},
	})
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent enable/disable changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefs, err := opts.preferences()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
			}
			if !prefs.History.Enabled {
				return ErrHistoryDisabled
			}
			initLogging(opts, prefs)
			defer logging.Shutdown()

			store, err := history.Open(prefs.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Recent(commandContext(cmd), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			printHistory(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "Number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printHistory(w io.Writer, events []history.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No changes recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSCOPE\tNAME\tSET\tRESULT")
	for _, ev := range events {
		result := "saved"
		if !ev.OK {
			result = "failed: " + ev.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.At.Local().Format(time.DateTime), ev.Scope, ev.Name, onOff(ev.Enabled), result)
	}
	tw.Flush()
}

func newPathsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show the files this tool reads and writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prefs, err := opts.preferences()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (using defaults)\n", err)
			}
			global, local, err := opts.paths(prefs)
			if err != nil {
				return err
			}
			prefsPath := config.PreferencesPath()
			if opts.prefsPath != "" {
				prefsPath = config.ExpandPath(opts.prefsPath)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "global\t%s\n", global)
			fmt.Fprintf(tw, "local\t%s\n", local)
			fmt.Fprintf(tw, "preferences\t%s\n", prefsPath)
			fmt.Fprintf(tw, "history\t%s\n", prefs.HistoryPath())
			fmt.Fprintf(tw, "locks\t%s\n", config.LockDir())
			fmt.Fprintf(tw, "log\t%s/%s\n", config.StateDir(), logging.LogFileName)
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opencode-mcp-manager v%s\n", Version)
		},
	}
}
