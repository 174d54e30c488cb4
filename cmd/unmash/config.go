package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration a run would use: .unmash/config.yml with
defaults applied. Credentials are only reported as set or unset.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

// ConfigResponse wraps the effective configuration.
type ConfigResponse struct {
	Config      map[string]any  `json:"config"`
	Credentials map[string]bool `json:"credentials"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)

	creds := map[string]bool{
		"access_token":        cfg.Credentials.AccessToken != "",
		"crossref_mailto":     cfg.Credentials.CrossrefMailto != "",
		"crossref_plus_token": cfg.Credentials.CrossrefPlusToken != "",
		"s2_api_key":          cfg.Credentials.S2APIKey != "",
	}

	// Round-trip through YAML so keys match config.yml.
	data, err := yaml.Marshal(cfg)
	if err != nil {
		exitWithError(ExitError, "encoding config: %v", err)
	}

	if humanOutput {
		outputHuman("%s\n", data)
		for _, k := range sortedKeys(creds) {
			state := "unset"
			if creds[k] {
				state = "set"
			}
			outputHuman("# %s: %s\n", k, state)
		}
		return nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(data, &fields); err != nil {
		exitWithError(ExitError, "encoding config: %v", err)
	}
	outputJSON(ConfigResponse{Config: fields, Credentials: creds})
	return nil
}
