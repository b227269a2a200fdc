package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration",
	Long: heredoc.Doc(`
		Print the configuration after merging every configuration file and
		applying environment overrides, followed by the engine settings it
		resolves to.
	`),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		view := struct {
			Files  []string `json:"files" yaml:"files"`
			Config any      `json:"config" yaml:"config"`
			Engine any      `json:"engine" yaml:"engine"`
		}{cfg.LoadedFrom(), cfg, cfg.EngineConfig()}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			data, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		case "yaml":
			data, err := yaml.Marshal(view)
			if err != nil {
				return fmt.Errorf("failed to marshal YAML: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
		default:
			return fmt.Errorf("unsupported format: %s", format)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: heredoc.Doc(`
		Write a single value to the data configuration file. Keys use dots to
		reach nested fields. Values are parsed as JSON and fall back to plain
		strings.
	`),
	Example: heredoc.Doc(`
		# Keep fewer cells around for reuse
		vlist config set engine.pool_capacity 20

		# Turn on accessibility mode for the demo
		vlist config set demo.accessibility true
	`),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		var value any
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			value = args[1]
		}
		if err := cfg.SetConfigField(args[0], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s to %v\n", args[0], value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configShowCmd.Flags().StringP("format", "f", "json", "Output format (json, yaml)")
}
