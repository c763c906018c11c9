package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/internal/tui/voicechat"
	"github.com/msto63/krishisaathi/pkg/core/logging"
)

var (
	chatLanguage string
	chatNoVoice  bool
	chatNoMic    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive voice chat",
	Long: `Starts the terminal voice chat.

Keys:
  Enter    send typed text
  Ctrl+R   speak (microphone)
  Esc      stop speaking or listening
  Ctrl+L   choose language
  Ctrl+N   start a new conversation
  Ctrl+C   quit

Examples:
  krishi chat
  krishi chat --language hindi
  krishi chat --no-voice --no-mic`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "", "conversation language id (default: catalog.default_language)")
	chatCmd.Flags().BoolVar(&chatNoVoice, "no-voice", false, "show replies without speaking them")
	chatCmd.Flags().BoolVar(&chatNoMic, "no-mic", false, "disable speech input")
}

func runChat(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; logs go to a file in the data dir
	logPath := filepath.Join(appConfig.General.DataDir, "krishi.log")
	if err := os.MkdirAll(appConfig.General.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	level := appConfig.General.LogLevel
	if verbose {
		level = "debug"
	}
	logging.Configure(level, "json", logFile)

	a, err := newApp(context.Background(), appConfig, appOptions{
		language: chatLanguage,
		noVoice:  chatNoVoice,
		noMic:    chatNoMic,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return voicechat.Run(a.ctrl)
}
