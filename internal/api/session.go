package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gridhouse/sheetsync/internal/engine"
	"github.com/gridhouse/sheetsync/internal/store"
)

// Open starts a live session against the service: it fetches the
// canonical state, attaches the push stream, and runs the single-writer
// loop. The returned stop function detaches the stream and drains the
// loop; after it returns the session accepts no more work.
func Open(ctx context.Context, baseURL, project string, tokens TokenSource, sink engine.RenderSink) (*engine.Session, func(), error) {
	client := NewClient(baseURL, project, tokens)
	session := engine.New(store.New(), client, sink, engine.UUIDv7Generator{})

	if err := session.Bootstrap(ctx); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := NewSubscriber(baseURL, project, tokens).Subscribe(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		session.Pump(ctx, events)
	}()
	go func() {
		defer wg.Done()
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("session loop stopped", "project", project, "error", err)
		}
	}()

	stop := func() {
		cancel()
		session.Stop()
		wg.Wait()
	}
	return session, stop, nil
}
