package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"teststand/internal/config"
)

// newConfigCmd creates the command that prints the effective configuration.
func newConfigCmd() *cobra.Command {
	var (
		configPath string
		helpValues bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective station configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpValues {
				for _, doc := range config.KeyHelp() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-26s %-7s %s\n", doc.Key, doc.Type, doc.Description)
				}
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the station config file")
	cmd.Flags().BoolVar(&helpValues, "help-values", false, "document every configuration key")
	return cmd
}
