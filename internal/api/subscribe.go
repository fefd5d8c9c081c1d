package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/websocket"

	"github.com/gridhouse/sheetsync/internal/wire"
)

// Subscriber attaches to a project's websocket push stream and delivers
// the decoded events on a channel the session can Pump from.
type Subscriber struct {
	base    string
	project string
	tokens  TokenSource
}

// NewSubscriber creates a subscriber for the given service base URL and
// project. The base URL uses the http scheme; it is rewritten to ws.
func NewSubscriber(baseURL, project string, tokens TokenSource) *Subscriber {
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Subscriber{
		base:    strings.TrimRight(baseURL, "/"),
		project: project,
		tokens:  tokens,
	}
}

// Subscribe opens the stream and returns a channel of events. The
// channel closes when the connection drops or the context is cancelled;
// reconnecting is the caller's decision.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan wire.Event, error) {
	streamURL, err := s.streamURL()
	if err != nil {
		return nil, err
	}

	cfg, err := websocket.NewConfig(streamURL, s.base+"/")
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	token, err := s.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if token != "" {
		cfg.Header.Set("Authorization", "Bearer "+token)
	}

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	events := make(chan wire.Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()

		// Close the connection when the context ends so the blocked
		// Receive below returns.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			var ev wire.Event
			if err := websocket.JSON.Receive(conn, &ev); err != nil {
				if ctx.Err() == nil {
					slog.Warn("push stream closed", "project", s.project, "error", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (s *Subscriber) streamURL() (string, error) {
	u, err := url.Parse(s.base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/sheet/projects/" + url.PathEscape(s.project) + "/stream"
	return u.String(), nil
}
