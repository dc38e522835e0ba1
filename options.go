package wsroom

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// SocketOptions configures the socket behavior
type SocketOptions struct {
	// Origin is the page origin the endpoint is derived from when NewSocket
	// is given no explicit URL, e.g. "https://example.net".
	Origin string

	// Dialer opens transports (default: &WebSocketDialer{})
	Dialer Dialer

	// ReconnectAfter returns the delay before the given reconnect attempt
	// (default: BackoffDelay)
	ReconnectAfter func(attempt int) time.Duration

	// MaxReconnectAttempts limits consecutive reconnection attempts (0 = unlimited)
	MaxReconnectAttempts int

	// Logger for lifecycle and handler failures
	Logger *slog.Logger

	// Metrics receives socket and room counters (nil = disabled)
	Metrics *Metrics
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// defaultLogger is silent unless WSROOM_DEBUG is set
func defaultLogger() *slog.Logger {
	if os.Getenv("WSROOM_DEBUG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})).With(slog.String("component", "wsroom"))
	}
	return discardLogger
}

// setDefaultOptions sets default values for unspecified options
func setDefaultOptions(options *SocketOptions) {
	if options.Dialer == nil {
		options.Dialer = &WebSocketDialer{}
	}
	if options.ReconnectAfter == nil {
		options.ReconnectAfter = BackoffDelay
	}
	if options.Logger == nil {
		options.Logger = defaultLogger()
	}
}
