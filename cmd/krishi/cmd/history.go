package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the stored conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(cmd.Context(), appConfig, logging.New("history"))
		if err != nil {
			return err
		}
		defer store.Close()

		printMessages(store.List())
		return nil
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the conversation down to the greeting",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openHistory(ctx, appConfig, logging.New("history"))
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.Reset(ctx); err != nil {
			return err
		}
		fmt.Printf("Conversation %q reset\n", store.ConversationID())
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyResetCmd)
	rootCmd.AddCommand(historyCmd)
}

func printMessages(msgs []history.Message) {
	for _, m := range msgs {
		who := "You"
		if m.Sender == history.SenderAssistant {
			who = "KrishiSaathi"
		}
		fmt.Printf("[%s] %s", m.CreatedAt.Local().Format("2006-01-02 15:04"), who)
		if m.SourceLanguage != "" {
			fmt.Printf(" (%s)", m.SourceLanguage)
		}
		fmt.Printf(":\n  %s\n", m.Text)
		if m.IsTranslated() {
			fmt.Printf("  EN: %s\n", m.OriginalText)
		}
	}
}
