package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/vlist/internal/sim"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario.yaml]",
	Short: "Replay a scripted scenario",
	Long: heredoc.Doc(`
		Run a YAML scenario against the engine with a recording host and
		print the engine state after every step. Reads the scenario from
		stdin when no file is given.
	`),
	Example: heredoc.Doc(`
		# Print a line per step
		vlist simulate testdata/scroll.yaml

		# Full snapshots as JSON
		cat scenario.yaml | vlist simulate --format json
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(cmd); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")

		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open scenario: %w", err)
			}
			defer f.Close()
			in = f
		}

		sc, err := sim.Parse(in)
		if err != nil {
			return err
		}
		runner, err := sim.NewRunner(sc)
		if err != nil {
			return err
		}
		frames, runErr := runner.Run(cmd.Context())
		if err := formatFrames(cmd.OutOrStdout(), frames, format); err != nil {
			return err
		}
		return runErr
	},
}

func formatFrames(w io.Writer, frames []sim.Frame, format string) error {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(frames, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(frames)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case "text":
		return sim.WriteText(w, frames)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
