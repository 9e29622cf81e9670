package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-match/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-match/internal/app"
	"github.com/custodia-labs/sercha-match/internal/core/domain"
)

// redacted replaces secrets in config show.
const redacted = "********"

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Prints the settings after applying the file and SERCHA_MATCH_*
environment overrides. Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func settingsStore() (*file.SettingsStore, error) {
	if configPath != "" {
		return file.NewSettingsStoreFile(configPath), nil
	}
	return file.NewSettingsStore("")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	store, err := settingsStore()
	if err != nil {
		return err
	}

	_, err = os.Stat(store.Path())
	switch {
	case err == nil && !configForce:
		return fmt.Errorf("%s already exists, use --force to overwrite", store.Path())
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return err
	}

	if err := store.Save(domain.DefaultSettings()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	cmd.Printf("Settings written to %s\n", store.Path())
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings, err := app.LoadSettings(configPath)
	if err != nil {
		return err
	}

	if settings.Server.UpdateToken != "" {
		settings.Server.UpdateToken = redacted
	}
	if settings.Fetch.S3SecretKey != "" {
		settings.Fetch.S3SecretKey = redacted
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	cmd.Print(string(data))
	return nil
}
