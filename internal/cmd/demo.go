package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MakeNowJust/heredoc"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/vlist/internal/config"
	"github.com/charmbracelet/vlist/internal/log"
	"github.com/charmbracelet/vlist/internal/tui/exp/list"
	"github.com/charmbracelet/vlist/internal/virt"
	"github.com/spf13/cobra"
)

func init() {
	addDemoFlags(demoCmd)
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Browse a generated list",
	Long: heredoc.Doc(`
		Open a full screen list of generated sections and paragraphs.
		Paragraph heights depend on the terminal width and are measured as
		they scroll into view.
	`),
	Example: heredoc.Doc(`
		# Use a fixed seed
		vlist demo --seed 42

		# Disable cell recycling
		vlist demo --a11y
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd)
	},
}

func addDemoFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("items", "n", 0, "Number of entries to generate")
	cmd.Flags().Uint64("seed", 0, "Seed for the generated entries")
	cmd.Flags().Bool("a11y", false, "Accessibility mode, no cell recycling (remembered for later runs)")
	cmd.Flags().BoolP("watch", "w", false, "Reload the configuration when it changes")
}

func runDemo(cmd *cobra.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	items := cfg.Demo.Items
	if cmd.Flags().Changed("items") {
		items, _ = cmd.Flags().GetInt("items")
	}
	seed := cfg.Demo.Seed
	if cmd.Flags().Changed("seed") {
		seed, _ = cmd.Flags().GetUint64("seed")
	}
	a11y := cfg.Demo.Accessibility
	if cmd.Flags().Changed("a11y") {
		a11y, _ = cmd.Flags().GetBool("a11y")
		if err := cfg.SetAccessibility(a11y); err != nil {
			slog.Warn("Failed to save accessibility setting", "error", err)
		}
	}
	watch, _ := cmd.Flags().GetBool("watch")

	model, err := list.New(
		list.Generate(items, seed),
		list.WithScrollSize(cfg.Demo.MouseWheelStep),
		list.WithAccessibility(a11y),
		list.WithEngineOptions(virt.WithConfig(cfg.EngineConfig())),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	program := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithMouseCellMotion(),
	)

	if watch {
		go func() {
			defer log.RecoverPanic("config-watch", cancel)
			err := config.Watch(ctx, cfg, func(next *config.Config) {
				program.Send(list.ConfigChangedMsg{Config: next.EngineConfig()})
			})
			if err != nil {
				slog.Error("Config watcher stopped", "error", err)
			}
		}()
	}

	slog.Info("Starting demo", "items", items, "seed", seed, "accessibility", a11y)
	if _, err := program.Run(); err != nil {
		slog.Error("Demo exited with error", "error", err)
		return fmt.Errorf("demo error: %v", err)
	}
	return nil
}
