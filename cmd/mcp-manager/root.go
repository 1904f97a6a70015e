package main

import (
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/engine"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/ui"
)

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mcp-manager",
		Short: "Enable and disable opencode MCP servers",
		Long: `mcp-manager lists the MCP servers declared in the global and local
opencode.json files and flips their "enabled" flag in place. Everything
else in the files is preserved. External edits are picked up while the
interface is open.

Run without a subcommand to open the interactive view.`,
		Example: `  mcp-manager                         # Interactive view
  mcp-manager list                    # Print every server
  mcp-manager toggle global github    # Flip one server
  mcp-manager disable local postgres  # Force a value
  mcp-manager history --limit 5       # Recent changes`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.globalPath, "global", "", "Global opencode.json (default ~/.config/opencode/opencode.json)")
	pf.StringVar(&opts.localPath, "local", "", "Local opencode.json (default ./opencode.json)")
	pf.StringVar(&opts.prefsPath, "config", "", "Preferences file (default ~/.config/opencode-mcp-manager/config.toml)")
	pf.BoolVar(&opts.debug, "debug", false, "Write debug logs to the state directory")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetVersionTemplate("opencode-mcp-manager v{{.Version}}\n")

	cmd.AddCommand(
		newListCmd(opts),
		newToggleCmd(opts),
		newSetCmd(opts, "enable", true),
		newSetCmd(opts, "disable", false),
		newHistoryCmd(opts),
		newPathsCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// ErrNoTerminal is returned when the interactive view is started without a
// terminal on stdin and stdout.
var ErrNoTerminal = errors.New("the interactive view needs a terminal; try \"mcp-manager list\"")

func runTUI(cmd *cobra.Command, opts *options) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNoTerminal
	}
	ctx := commandContext(cmd)

	a, err := openApp(ctx, opts, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	initColorProfile()
	ui.InitTheme(a.prefs.Theme)

	p := tea.NewProgram(
		ui.New(a.eng, Version),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	a.eng.OnStatusChange(func(st engine.Status) {
		p.Send(ui.StatusMsg(st))
	})

	_, err = p.Run()
	return err
}
