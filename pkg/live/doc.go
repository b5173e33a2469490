// Package live defines the client contract for a bidirectional voice
// session with a remote speech/LLM endpoint such as Gemini Live.
//
// A Client opens a Stream. The Stream carries PCM audio and function
// results up, and yields a lazy sequence of Units down: audio, text,
// transcripts, function calls and turn boundaries.
//
// # Backends
//
// Backends register themselves by name:
//
//	import _ "github.com/teslashibe/go-waiter/pkg/live/gemini"    // raw websocket
//	import _ "github.com/teslashibe/go-waiter/pkg/live/genailive" // google.golang.org/genai
//
//	client, err := live.New("ws", live.Options{APIKey: key})
//	stream, err := client.Connect(ctx, "models/gemini-2.0-flash-live-001", cfg)
//	for {
//	    unit, err := stream.Receive(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
//
// A Mock client is included for tests.
package live
