package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/addrverify/internal/config"
)

const redacted = "[redacted]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := renderConfig(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

// renderConfig marshals c as YAML with credentials masked.
func renderConfig(c *config.Config) ([]byte, error) {
	shown := *c
	if shown.Google.APIKey != "" {
		shown.Google.APIKey = redacted
	}
	if shown.Google.ValidationAPIKey != "" {
		shown.Google.ValidationAPIKey = redacted
	}
	if shown.Monitoring.WebhookURL != "" {
		shown.Monitoring.WebhookURL = redacted
	}
	if shown.Store.Driver == "postgres" && shown.Store.DatabaseURL != "" {
		shown.Store.DatabaseURL = redacted
	}
	out, err := yaml.Marshal(shown)
	if err != nil {
		return nil, eris.Wrap(err, "config: marshal")
	}
	return out, nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
