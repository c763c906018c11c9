package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/pkg/core/config"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var (
	cfgFile string
	verbose bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "krishi",
	Short: "KrishiSaathi - multilingual voice assistant for farmers",
	Long: `KrishiSaathi is a voice conversation client for the farming assistant
backend. Ask in English or one of nine Indian languages, by voice or by
keyboard; replies are shown and spoken in the selected language.

Configuration is read from --config, $KRISHI_CONFIG or the default
locations (./configs/config.toml, ~/.config/krishisaathi/config.toml).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		appConfig = cfg

		level := cfg.General.LogLevel
		if verbose {
			level = "debug"
		}
		logging.Configure(level, cfg.General.LogFormat, os.Stderr)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $KRISHI_CONFIG or ./configs/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadFromEnv()
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
