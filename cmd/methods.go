package cmd

import (
	"fmt"

	"github.com/bgbye/bgbye/internal/config"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/spf13/cobra"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List background-removal methods and their back-ends",
	Args:  cobra.NoArgs,
	RunE:  methodsRun,
}

func init() {
	rootCmd.AddCommand(methodsCmd)
}

func methodsRun(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	catalogue := models.DefaultMethods()
	registry := models.NewRegistry(catalogue, cfg.BaseURLs(catalogue))

	defaults := make(map[models.Method]bool)
	for _, m := range cfg.DefaultSelection(registry) {
		defaults[m] = true
	}

	rows := make([][]string, 0, len(catalogue))
	for _, m := range registry.Methods() {
		info, _ := registry.Lookup(m)
		url, err := registry.BaseURL(m)
		if err != nil {
			url = "-"
		}
		def := ""
		if defaults[m] {
			def = "yes"
		}
		rows = append(rows, []string{string(info.Name), info.DisplayName, info.ShortName, url, def})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Method", "Model", "Short", "Back-end", "Default"},
		rows,
		nil,
	))
	return nil
}
