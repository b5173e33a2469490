package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/protocol"
	"github.com/teslashibe/go-waiter/pkg/session"
)

func init() {
	rootCmd.AddCommand(talkCmd)
}

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Run one voice session in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runTalk,
}

func runTalk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, session.EventFunc(printEvent), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := startTalk(ctx, st.voice, logger); err != nil {
		return err
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if st.voice.State() == session.StateIdle {
				return nil
			}
		}
	}
}

// voiceStarter is the part of the coordinator talk drives.
type voiceStarter interface {
	StartSession(ctx context.Context) error
	StartListening(ctx context.Context) error
}

// startTalk opens the session and the microphone. Without a microphone
// the session stays up so spoken replies can still be heard.
func startTalk(ctx context.Context, v voiceStarter, logger *slog.Logger) error {
	if err := v.StartSession(ctx); err != nil {
		return err
	}
	if err := v.StartListening(ctx); err != nil {
		logger.Warn("continuing without microphone", "error", err)
		return nil
	}
	fmt.Fprintln(os.Stdout, "🎤 Speak to place an order. Ctrl-C to quit.")
	return nil
}

// printEvent renders session events as a transcript.
func printEvent(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeStatus:
		if d, err := msg.GetStatusData(); err == nil {
			fmt.Printf("ℹ️  %s\n", d.Message)
		}
	case protocol.TypeUserInput:
		if d, err := msg.GetTextData(); err == nil {
			fmt.Printf("[%s] 🗣️  %s\n", d.Timestamp, d.Text)
		}
	case protocol.TypeBotResponse:
		if d, err := msg.GetTextData(); err == nil {
			fmt.Printf("[%s] 🤖 %s\n", d.Timestamp, d.Text)
		}
	case protocol.TypeFunctionCall:
		if d, err := msg.GetFunctionCallData(); err == nil {
			fmt.Printf("[%s] 🔧 %s %v\n", d.Timestamp, d.FunctionName, d.Arguments)
		}
	case protocol.TypeFunctionResult:
		if d, err := msg.GetFunctionResultData(); err == nil {
			fmt.Printf("[%s] ✅ %s\n", d.Timestamp, d.FunctionName)
		}
	case protocol.TypeFunctionError:
		if d, err := msg.GetFunctionErrorData(); err == nil {
			fmt.Printf("[%s] ❌ %s: %s\n", d.Timestamp, d.FunctionName, d.Error)
		}
	}
}
