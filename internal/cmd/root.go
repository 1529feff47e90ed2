// Package cmd defines the packflow command-line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/packflow/packflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "packflow",
	Short: "Multi-agent feature execution coordinator",
	Long: `Packflow coordinates the parallel execution of a feature plan:
disjoint work packages run concurrently under resource locks, failures
trip a circuit breaker that cancels downstream work, and the
integration package is held until every slice is complete and reviewed.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/packflow/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PACKFLOW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PACKFLOW_RUN_MAX_PARALLEL for run.max_parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
