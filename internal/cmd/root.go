package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/charmbracelet/vlist/internal/log"
	"github.com/charmbracelet/vlist/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	addDemoFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   "vlist",
	Short: "Virtualized list engine for the terminal",
	Long: heredoc.Doc(`
		vlist renders very long lists of variable-height entries by only
		keeping the entries near the viewport alive. Run without a command
		to open the interactive demo.
	`),
	Example: heredoc.Doc(`
		# Browse ten thousand generated entries
		vlist

		# Browse a smaller list and reload settings as they change
		vlist demo --items 500 --watch

		# Replay a scripted scenario
		vlist simulate scenario.yaml --format yaml
	`),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd)
	},
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// setup resolves the working directory, loads the configuration and starts
// logging.
func setup(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cwd, debug)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.LogFile(), cfg.Options.Level())
	slog.Debug("Configuration loaded", "files", cfg.LoadedFrom(), "version", version.Version)
	return cfg, nil
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		if err := os.Chdir(cwd); err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
