package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/internal/history"
	"github.com/msto63/krishisaathi/internal/session"
)

var (
	askLanguage string
	askNoVoice  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Ask one question and print the reply",
	Long: `Sends one typed question through the session, prints the reply and
speaks it unless --no-voice is set. The turn is stored in the history.

Examples:
  krishi ask "When should I sow wheat?"
  krishi ask -l hindi "गेहूं कब बोना चाहिए?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askLanguage, "language", "l", "", "conversation language id")
	askCmd.Flags().BoolVar(&askNoVoice, "no-voice", false, "print the reply without speaking it")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, appConfig, appOptions{language: askLanguage, noVoice: askNoVoice, noMic: true})
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := askOnce(ctx, a.ctrl, strings.Join(args, " "), appConfig.Backend.Timeout.Duration+2*time.Minute)
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	if reply.IsTranslated() {
		fmt.Printf("\n(EN) %s\n", reply.OriginalText)
	}
	return nil
}

// askOnce submits text and waits until the session is idle again,
// returning the assistant message of the turn
func askOnce(ctx context.Context, ctrl *session.Controller, text string, timeout time.Duration) (history.Message, error) {
	var (
		reply    = make(chan history.Message, 1)
		finished = make(chan struct{})
		once     sync.Once
		mu       sync.Mutex
		notices  []string
	)
	cancel := ctrl.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventMessageAppended:
			if ev.Message.Sender == history.SenderAssistant {
				select {
				case reply <- ev.Message:
				default:
				}
			}
		case session.EventNotice:
			mu.Lock()
			notices = append(notices, ev.Notice)
			mu.Unlock()
		case session.EventStateChanged:
			if ev.State == session.StateIdle && ev.Previous != session.StateIdle {
				once.Do(func() { close(finished) })
			}
		}
	})
	defer cancel()

	if err := ctrl.SubmitText(text); err != nil {
		return history.Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-finished:
	case <-ctx.Done():
		ctrl.Stop()
		return history.Message{}, ctx.Err()
	case <-timer.C:
		return history.Message{}, errors.New("no reply in time")
	}

	mu.Lock()
	defer mu.Unlock()
	select {
	case msg := <-reply:
		for _, n := range notices {
			fmt.Fprintln(os.Stderr, n)
		}
		return msg, nil
	default:
		return history.Message{}, fmt.Errorf("no reply: %s", strings.Join(notices, "; "))
	}
}
