package cmd

import (
	"fmt"
	"os"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/spf13/cobra"
)

// Version is stamped at build time
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "bgbye",
	Short:        "Background removal front-end",
	Long:         `bgbye submits images and videos to background-removal back-ends, tracks their results and renders downloads.`,
	Version:      Version,
	SilenceUsage: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
}

func initConfig() {
	// Load configuration
	if err := config.LoadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
}
