package main

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-waiter/internal/log"
)

type fakeStarter struct {
	startErr  error
	listenErr error
	listened  bool
}

func (f *fakeStarter) StartSession(ctx context.Context) error { return f.startErr }

func (f *fakeStarter) StartListening(ctx context.Context) error {
	f.listened = true
	return f.listenErr
}

func TestStartTalk(t *testing.T) {
	ctx := context.Background()

	t.Run("microphone failure keeps the session", func(t *testing.T) {
		v := &fakeStarter{listenErr: errors.New("no capture device")}
		if err := startTalk(ctx, v, log.Discard()); err != nil {
			t.Errorf("startTalk = %v, want nil", err)
		}
		if !v.listened {
			t.Error("microphone never tried")
		}
	})

	t.Run("connect failure", func(t *testing.T) {
		connErr := errors.New("dial refused")
		v := &fakeStarter{startErr: connErr}
		if err := startTalk(ctx, v, log.Discard()); !errors.Is(err, connErr) {
			t.Errorf("startTalk = %v, want %v", err, connErr)
		}
		if v.listened {
			t.Error("listened without a session")
		}
	})
}
