package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/deepseek-json/internal/console"
	"github.com/nhle/deepseek-json/internal/credential"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/theme"
)

// authCmd manages the API key stored in the system keyring
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the DeepSeek API key in the system keyring",
	Long: `Store, remove or inspect the DeepSeek API key kept in the system keyring.

The key is used when DEEPSEEK_API_KEY is not set in the environment or .env.`,
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Prompt for an API key and store it in the keyring",
	Args:  cobra.NoArgs,
	RunE:  runAuthSetKey,
}

var authDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Remove the stored API key",
	Args:  cobra.NoArgs,
	RunE:  runAuthDeleteKey,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key is taken from",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func runAuthSetKey(cmd *cobra.Command, _ []string) error {
	con := console.New(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

	key, err := con.ReadSecret(cmd.Context(), "DeepSeek API key:")
	if errors.Is(err, io.EOF) {
		return errors.New("no API key entered")
	}
	if err != nil {
		return err
	}

	if err := credential.Set(credential.APIKeyName, key); err != nil {
		return err
	}
	con.Println(theme.TipStyle.Render("API key saved to the system keyring."))
	return nil
}

func runAuthDeleteKey(cmd *cobra.Command, _ []string) error {
	err := credential.Delete(credential.APIKeyName)
	if credential.IsNotFound(err) {
		fmt.Fprintln(cmd.OutOrStdout(), theme.HelpStyle.Render("No API key stored."))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), theme.TipStyle.Render("API key removed from the system keyring."))
	return nil
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, authSource(os.Getenv(model.EnvPrefix+"_API_KEY"), credential.LookupAPIKey()))
	return nil
}

// authSource describes which API key a run would use.
func authSource(envKey, storedKey string) string {
	switch {
	case envKey != "":
		return "API key: " + model.EnvPrefix + "_API_KEY (" + maskKey(envKey) + ")"
	case storedKey != "":
		return "API key: system keyring (" + maskKey(storedKey) + ")"
	default:
		return "API key: not configured. Run 'deepseek-json auth set-key' or set " +
			model.EnvPrefix + "_API_KEY."
	}
}

// maskKey keeps only the last four characters of key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
