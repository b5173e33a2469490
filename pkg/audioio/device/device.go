// Package device registers the host microphone and speaker as the
// audioio "device" backend. Capture goes through miniaudio (malgo) and
// playback through oto.
//
// Import it for side effects:
//
//	import _ "github.com/teslashibe/go-waiter/pkg/audioio/device"
package device

import (
	"log/slog"

	"github.com/teslashibe/go-waiter/pkg/audioio"
)

func init() {
	audioio.Register(audioio.BackendDevice,
		func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
			return NewMicrophone(cfg, logger), nil
		},
		func(cfg audioio.Config, logger *slog.Logger) (audioio.Sink, error) {
			return NewSpeaker(cfg, logger), nil
		},
	)
}
