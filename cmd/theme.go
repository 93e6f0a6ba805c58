package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/bgbye/bgbye/pkg/utils"
	"github.com/spf13/cobra"
)

var themeToggle bool

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show or toggle the persisted theme",
	Args:  cobra.NoArgs,
	RunE:  themeRun,
}

func init() {
	themeCmd.Flags().BoolVarP(&themeToggle, "toggle", "t", false, "switch between light and dark")
	rootCmd.AddCommand(themeCmd)
}

func themeRun(cmd *cobra.Command, args []string) error {
	logInstance := logger.NewNop()
	components, err := initializeComponents(config.AppConfig, utils.GenerateInstanceID("cli"), logInstance, componentOptions{inProcess: true})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		components.Close(ctx, logInstance)
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc := components.service

	dark, err := svc.Theme(ctx)
	if themeToggle && err == nil {
		dark, err = svc.ToggleTheme(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), themeName(dark))
	return nil
}

func themeName(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}
