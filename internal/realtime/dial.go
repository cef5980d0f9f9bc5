package realtime

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/ride-client/internal/observability"
)

type DialConfig struct {
	SocketURL string
	EventsURL string
	// HTTP is used by the polling fallback; its cookie jar also
	// authenticates the websocket handshake.
	HTTP   *http.Client
	Logger *slog.Logger
}

// Dial opens a websocket transport and falls back to long polling when the
// upgrade fails.
func Dial(ctx context.Context, cfg DialConfig) (*Channel, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var jar http.CookieJar
	if cfg.HTTP != nil {
		jar = cfg.HTTP.Jar
	}
	if cfg.SocketURL != "" {
		ws, err := DialWebSocket(ctx, cfg.SocketURL, jar)
		if err == nil {
			observability.ChannelDials.WithLabelValues("websocket", "ok").Inc()
			logger.Info("channel connected", "mode", "websocket", "url", cfg.SocketURL)
			return NewChannel(ws, logger), nil
		}
		observability.ChannelDials.WithLabelValues("websocket", "error").Inc()
		if cfg.EventsURL == "" {
			return nil, err
		}
		logger.Warn("websocket dial failed, falling back to polling", "error", err)
	}
	observability.ChannelDials.WithLabelValues("polling", "ok").Inc()
	logger.Info("channel connected", "mode", "polling", "url", cfg.EventsURL)
	return NewChannel(NewPollTransport(cfg.EventsURL, cfg.HTTP), logger), nil
}
