package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/theme"
)

var configForce bool

// configCmd manages the configuration file
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to the config file",
	Long: `Write the current settings (defaults merged with DEEPSEEK_* variables) to the
configuration file given by --config. The API key is never written.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(cfgPath); err == nil && !configForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", cfgPath)
	}
	if err := model.SaveConfig(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), theme.TipStyle.Render("Configuration written to "+cfgPath))
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	resolveAPIKey(cfg)
	printConfig(cmd.OutOrStdout(), cfgPath, cfg)
	return nil
}

// printConfig writes c as aligned key/value lines.
func printConfig(w io.Writer, path string, c *model.AppConfig) {
	apiKey := "(not set)"
	if c.APIKey != "" {
		apiKey = maskKey(c.APIKey)
	}

	rows := [][2]string{
		{"config file", path},
		{"api key", apiKey},
		{"base url", c.API.BaseURL},
		{"model", c.API.Model},
		{"temperature", fmt.Sprintf("%.2f", c.API.Temperature)},
		{"max tokens", fmt.Sprint(c.API.MaxTokens)},
		{"timeout", c.Timeout().String()},
		{"retry attempts", fmt.Sprint(c.Retry.MaxAttempts)},
		{"retry base delay", c.BaseDelay().String()},
		{"max questions", fmt.Sprint(c.TaskFinisher.MaxQuestions)},
		{"log level", c.Log.Level},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-18s %s\n", r[0]+":", r[1])
	}
}
