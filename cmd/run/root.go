package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/qsp-runtime/native"
	"github.com/wippyai/qsp-runtime/settings"
	"github.com/wippyai/qsp-runtime/state"
)

// options holds global flags for all commands.
type options struct {
	settingsPath string
	enginesDir   string
	logPath      string
	engine       string
	memoryPages  uint32
	debug        bool
	noAudio      bool
	plain        bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "qsp-run [game.qsp]",
		Short:        "Play QSP quests in the terminal",
		Long:         "Runs a quest on one of the WebAssembly interpreter builds and drives it from a terminal UI.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain := opts.plain || !term.IsTerminal(int(os.Stdin.Fd()))
			return play(cmd.Context(), opts, args[0], plain, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.settingsPath, "settings", defaultSettingsPath(), "settings file")
	flags.StringVar(&opts.enginesDir, "engines", "engines", "directory holding byte.wasm, sonnix.wasm and seedharta.wasm")
	flags.StringVar(&opts.logPath, "log", "", "log file (default: no logging)")
	flags.BoolVar(&opts.debug, "debug", false, "debug logging")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "engine variant overriding settings (byte|sonnix|seedharta)")
	cmd.Flags().Uint32Var(&opts.memoryPages, "memory-pages", 4096, "guest memory limit in 64KiB pages")
	cmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "track sounds without playing them")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "line mode instead of the full-screen UI")

	cmd.AddCommand(newEnginesCommand(opts))
	cmd.AddCommand(newSettingsCommand(opts))
	return cmd
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "qsp-settings.yaml"
	}
	return filepath.Join(dir, "qsp-runtime", "settings.yaml")
}

func newEnginesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "Check which engine modules are present and loadable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modules, err := native.LoadModules(opts.enginesDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, sel := range state.Selectors {
				wasm, ok := modules[sel]
				if !ok {
					fmt.Fprintf(out, "%-10s missing\n", sel)
					continue
				}
				if err := native.Check(cmd.Context(), native.Variants[sel], wasm); err != nil {
					fmt.Fprintf(out, "%-10s %s\n", sel, errorStyle.Render(err.Error()))
					continue
				}
				fmt.Fprintf(out, "%-10s ok (%d bytes)\n", sel, len(wasm))
			}
			return nil
		},
	}
}

func newSettingsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := settings.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(store.Value().Load())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", store.Path(), data)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "engine <byte|sonnix|seedharta>",
		Short: "Select the engine variant used for new games",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			sel, err := state.ParseSelector(args[0])
			if err != nil {
				return err
			}
			store, err := settings.Open(opts.settingsPath)
			if err != nil {
				return err
			}
			return store.Update(func(s state.Settings) state.Settings {
				s.Engine = sel
				return s
			})
		},
	})
	return cmd
}
