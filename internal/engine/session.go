package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// Persistence is the remote service surface the session talks to.
// Implementations must be safe for concurrent use: the session issues
// calls from short-lived goroutines so the loop never blocks on I/O.
type Persistence interface {
	FetchColumns(ctx context.Context) ([]string, error)
	FetchRows(ctx context.Context) ([]sheet.RowRecord, error)
	FetchStyles(ctx context.Context) (map[sheet.CellKey]sheet.StylePayload, error)
	AddColumn(ctx context.Context, name string) error
	RemoveColumn(ctx context.Context, name string) error
	AddRow(ctx context.Context, fields map[string]string) (string, error)
	RemoveRows(ctx context.Context, identities []string) error
	SetCell(ctx context.Context, identity, field, value string) error
	SetStyle(ctx context.Context, identity, field string, style sheet.StylePayload) error
}

// RenderSink receives the projected grid after every processed message
// and user-facing notifications for rejected mutations.
// Called only from the Run loop goroutine.
type RenderSink interface {
	Render(view project.View)
	Notify(err error)
}

// Session is the single-writer sync loop for one open sheet.
//
// The session processes messages (local mutations, persistence acks and
// nacks, pushed deltas, re-fetch results) in FIFO order and applies them
// to the canonical store.
//
// CRITICAL: All store mutations happen in the single Run loop goroutine.
// External callers submit work with Do, AddRow, and the session-local
// control methods; persistence I/O runs in short-lived goroutines that
// report back through the same queue.
//
// Thread-safety model:
//   - Do, AddRow, EnqueueRemote, control methods: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// ERROR HANDLING: On message processing failure, the error is logged with
// full message context and processing continues. This "log and continue"
// behavior keeps one bad delta from wedging the whole stream.
type Session struct {
	store   *store.Store
	queue   *messageQueue
	persist Persistence
	sink    RenderSink
	idGen   IdentityGenerator
}

// New creates a Session around the given store and persistence layer.
func New(st *store.Store, persist Persistence, sink RenderSink, idGen IdentityGenerator) *Session {
	return &Session{
		store:   st,
		queue:   newMessageQueue(),
		persist: persist,
		sink:    sink,
		idGen:   idGen,
	}
}

// Store exposes the canonical store for read paths that run on the loop
// goroutine (the formula shim, exports driven from the loop).
func (s *Session) Store() *store.Store {
	return s.store
}

// Bootstrap seeds the store from a full fetch. Call before Run.
func (s *Session) Bootstrap(ctx context.Context) error {
	headers, err := s.persist.FetchColumns(ctx)
	if err != nil {
		return fmt.Errorf("fetch columns: %w", err)
	}
	rows, err := s.persist.FetchRows(ctx)
	if err != nil {
		return fmt.Errorf("fetch rows: %w", err)
	}
	if err := s.store.Seed(headers, rows); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}
	styles, err := s.persist.FetchStyles(ctx)
	if err != nil {
		return fmt.Errorf("fetch styles: %w", err)
	}
	for key, payload := range styles {
		err := s.store.ApplyRemote(sheet.SetStyle{Identity: key.Identity, Header: key.Header, Style: payload})
		if sheet.IsNotFound(err) {
			slog.Warn("dropping style for missing cell", "identity", key.Identity, "header", key.Header)
			continue
		}
		if err != nil {
			return fmt.Errorf("apply style %s/%s: %w", key.Identity, key.Header, err)
		}
	}
	s.sink.Render(project.Build(s.store.Snapshot()))
	return nil
}

// Do submits a local mutation for optimistic application and async
// persistence. Thread-safe: may be called from any goroutine.
//
// Returns false if the session has been stopped. Validation errors
// surface through the sink's Notify, not the return value: the mutation
// is checked on the loop goroutine where the canonical state lives.
func (s *Session) Do(m sheet.Mutation) bool {
	return s.queue.Enqueue(Message{
		Type:     MessageTypeLocal,
		Request:  s.idGen.Generate(),
		Mutation: m,
	})
}

// AddRow submits a row addition and returns the placeholder identity the
// new row is keyed by until the service assigns the authoritative one.
func (s *Session) AddRow() (string, bool) {
	placeholder := s.idGen.Generate()
	ok := s.queue.Enqueue(Message{
		Type:     MessageTypeLocal,
		Request:  s.idGen.Generate(),
		Mutation: sheet.AddRow{Identity: placeholder},
	})
	return placeholder, ok
}

// EnqueueRemote submits a pushed delta for reconciliation.
// Thread-safe: may be called from any goroutine.
func (s *Session) EnqueueRemote(ev wire.Event) bool {
	return s.queue.Enqueue(Message{Type: MessageTypeRemote, Event: &ev})
}

// Pump forwards events from a push subscription into the session until
// the channel closes or the context is cancelled. Run it in its own
// goroutine next to Run.
func (s *Session) Pump(ctx context.Context, events <-chan wire.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !s.EnqueueRemote(ev) {
				return
			}
		}
	}
}

// Run starts the single-writer message loop.
// Blocks until the context is cancelled or Stop is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("session starting")

	for {
		msg, ok := s.queue.TryDequeue()
		if ok {
			if err := s.processMessage(ctx, msg); err != nil {
				logMessageError(msg, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("session stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			if s.queue.Len() == 0 {
				slog.Info("session stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the session.
// Closes the message queue, which causes Run to return.
func (s *Session) Stop() {
	s.queue.Close()
}

// QueueLen returns the current number of pending messages.
func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// processMessage routes a message to the appropriate handler.
// CRITICAL: Called only from the Run goroutine.
func (s *Session) processMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageTypeLocal:
		return s.processLocal(ctx, msg)
	case MessageTypeAck:
		return s.processAck(msg)
	case MessageTypeNack:
		return s.processNack(msg)
	case MessageTypeRemote:
		return s.processRemote(ctx, msg)
	case MessageTypeRefetch:
		return s.processRefetch(msg)
	case MessageTypeControl:
		return s.processControl(msg)
	default:
		return fmt.Errorf("unknown message type: %d", msg.Type)
	}
}

// processLocal applies a local mutation optimistically, renders, and
// starts the persistence call.
func (s *Session) processLocal(ctx context.Context, msg Message) error {
	if msg.Mutation == nil {
		return fmt.Errorf("local message missing mutation")
	}

	slog.Debug("processing local mutation",
		"request", msg.Request,
		"mutation", sheet.Describe(msg.Mutation),
	)

	if err := s.store.ApplyLocal(msg.Mutation); err != nil {
		s.sink.Notify(err)
		return fmt.Errorf("apply local %s: %w", msg.Mutation.Kind(), err)
	}
	if msg.Formula != "" {
		if sc, ok := msg.Mutation.(sheet.SetCell); ok {
			if err := s.store.SetFormula(sc.Identity, sc.Header, msg.Formula); err != nil {
				slog.Warn("formula overlay rejected",
					"request", msg.Request,
					"error", err,
				)
			}
		}
	}
	s.render()

	go func() {
		newIdentity, err := s.persistMutation(ctx, msg.Mutation)
		if err != nil {
			s.queue.Enqueue(Message{
				Type:     MessageTypeNack,
				Request:  msg.Request,
				Mutation: msg.Mutation,
				Err:      err,
			})
			return
		}
		s.queue.Enqueue(Message{
			Type:        MessageTypeAck,
			Request:     msg.Request,
			Mutation:    msg.Mutation,
			NewIdentity: newIdentity,
		})
	}()

	return nil
}

func (s *Session) processAck(msg Message) error {
	if msg.Mutation == nil {
		return fmt.Errorf("ack message missing mutation")
	}

	slog.Debug("processing ack",
		"request", msg.Request,
		"mutation", sheet.Describe(msg.Mutation),
		"new_identity", msg.NewIdentity,
	)

	if err := s.store.Acknowledge(msg.Mutation, msg.NewIdentity); err != nil {
		return fmt.Errorf("acknowledge %s: %w", msg.Mutation.Kind(), err)
	}
	s.render()
	return nil
}

// processNack rolls the optimistic mutation back and tells the user.
func (s *Session) processNack(msg Message) error {
	if msg.Mutation == nil {
		return fmt.Errorf("nack message missing mutation")
	}

	slog.Warn("mutation rejected by service",
		"request", msg.Request,
		"mutation", sheet.Describe(msg.Mutation),
		"error", msg.Err,
	)

	if err := s.store.Rollback(msg.Mutation); err != nil {
		return fmt.Errorf("rollback %s: %w", msg.Mutation.Kind(), err)
	}
	s.sink.Notify(msg.Err)
	s.render()
	return nil
}

// processRemote reconciles one pushed delta. A rowAdded delta also
// starts a full row re-fetch, because the event carries identities only.
func (s *Session) processRemote(ctx context.Context, msg Message) error {
	if msg.Event == nil {
		return fmt.Errorf("remote message missing event")
	}

	slog.Debug("processing remote event",
		"kind", msg.Event.Kind,
		"seq", msg.Event.Seq,
	)

	mutations, refetch, err := eventMutations(msg.Event)
	if err != nil {
		return fmt.Errorf("map event seq %d: %w", msg.Event.Seq, err)
	}

	for _, m := range mutations {
		if err := s.store.ApplyRemote(m); err != nil {
			// A single stale delta must not stop the rest of the batch.
			slog.Warn("remote mutation dropped",
				"kind", msg.Event.Kind,
				"seq", msg.Event.Seq,
				"mutation", sheet.Describe(m),
				"error", err,
			)
		}
	}
	s.render()

	if refetch {
		go func() {
			rows, err := s.persist.FetchRows(ctx)
			s.queue.Enqueue(Message{Type: MessageTypeRefetch, Rows: rows, Err: err})
		}()
	}
	return nil
}

func (s *Session) processRefetch(msg Message) error {
	if msg.Err != nil {
		return fmt.Errorf("row re-fetch: %w", msg.Err)
	}
	if err := s.store.ReplaceRows(msg.Rows); err != nil {
		return fmt.Errorf("replace rows: %w", err)
	}
	s.render()
	return nil
}

func (s *Session) processControl(msg Message) error {
	if msg.Control == nil {
		return fmt.Errorf("control message missing op")
	}
	if err := msg.Control(s.store); err != nil {
		s.sink.Notify(err)
		return fmt.Errorf("control op: %w", err)
	}
	s.render()
	return nil
}

// persistMutation dispatches one mutation to the persistence layer.
// Runs on a short-lived goroutine, never on the loop.
func (s *Session) persistMutation(ctx context.Context, m sheet.Mutation) (string, error) {
	switch m := m.(type) {
	case sheet.AddColumn:
		return "", s.persist.AddColumn(ctx, m.Name)
	case sheet.RemoveColumn:
		return "", s.persist.RemoveColumn(ctx, m.Name)
	case sheet.AddRow:
		return s.persist.AddRow(ctx, nil)
	case sheet.RemoveRows:
		return "", s.persist.RemoveRows(ctx, m.Identities)
	case sheet.SetCell:
		return "", s.persist.SetCell(ctx, m.Identity, m.Header, m.Value)
	case sheet.SetStyle:
		return "", s.persist.SetStyle(ctx, m.Identity, m.Header, m.Style)
	default:
		return "", fmt.Errorf("unpersistable mutation kind %q", m.Kind())
	}
}

func (s *Session) render() {
	s.sink.Render(project.Build(s.store.Snapshot()))
}

// logMessageError logs a message processing failure with full context.
func logMessageError(msg Message, err error) {
	switch msg.Type {
	case MessageTypeLocal, MessageTypeAck, MessageTypeNack:
		desc := ""
		if msg.Mutation != nil {
			desc = sheet.Describe(msg.Mutation)
		}
		slog.Error("message processing failed",
			"error", err,
			"type", msg.Type,
			"request", msg.Request,
			"mutation", desc,
		)
	case MessageTypeRemote:
		if msg.Event != nil {
			slog.Error("remote event processing failed",
				"error", err,
				"kind", msg.Event.Kind,
				"seq", msg.Event.Seq,
			)
		} else {
			slog.Error("remote event processing failed",
				"error", err,
				"note", "event data was nil",
			)
		}
	default:
		slog.Error("message processing failed",
			"error", err,
			"type", msg.Type,
		)
	}
}
