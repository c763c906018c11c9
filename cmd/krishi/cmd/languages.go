package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the conversation languages",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New("languages")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		catalog := loadCatalog(ctx, appConfig, newBackendClient(appConfig, logger), logger)

		fmt.Printf("%-12s %-8s %-8s %s\n", "ID", "FAMILY", "LOCALE", "NAME")
		for _, l := range catalog.List() {
			marker := ""
			if l.ID == appConfig.Catalog.DefaultLanguage {
				marker = " *"
			}
			fmt.Printf("%-12s %-8s %-8s %s%s\n", l.ID, l.LocaleFamily, l.LocaleTag, l.DisplayName, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}
