package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/permscope/permscope/internal/cache"
	"github.com/permscope/permscope/internal/config"
	"github.com/permscope/permscope/internal/directory"
	"github.com/permscope/permscope/internal/resolver"
)

// Global configuration instance
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "permscope",
	Short: "Resolve effective Entra ID permissions",
	Long: `Resolve the complete set of effective permissions for a directory
principal: direct role assignments, role assignments inherited through
nested security-group membership, and API permissions.

If no config file is specified, permscope will look for config files in
the following locations:
  - ./config.yaml
  - ./config/config.yaml
  - /etc/permscope/config.yaml
  - ~/.config/permscope/config.yaml`,
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err == nil && verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	return nil
}

// buildResolver wires the directory client, cache store and resolution
// engine from the loaded configuration.
func buildResolver() (*resolver.Resolver, error) {
	cred, err := directory.CreateCredential(cfg.Azure)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credentials: %w", err)
	}

	client, err := directory.NewAzureDirectory(cred, cfg.Azure.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory client: %w", err)
	}

	store, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	return resolver.New(client, store, cfg.Resolver), nil
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (optional)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("Failed to execute command: %v", err)
	}
}
