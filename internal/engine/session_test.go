package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/store"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// fakePersistence is an in-memory Persistence double. Error injection is
// per-operation via the fail map.
type fakePersistence struct {
	mu           sync.Mutex
	columns      []string
	rows         []sheet.RowRecord
	styles       map[sheet.CellKey]sheet.StylePayload
	nextIdentity string
	fail         map[string]error
	calls        []string
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		columns: []string{"id", "name", "price"},
		rows: []sheet.RowRecord{
			{Identity: "r1", Fields: map[string]string{"name": "A", "price": "10"}},
			{Identity: "r2", Fields: map[string]string{"name": "B", "price": "20"}},
		},
		styles:       make(map[sheet.CellKey]sheet.StylePayload),
		nextIdentity: "srv-1",
		fail:         make(map[string]error),
	}
}

func (f *fakePersistence) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakePersistence) FetchColumns(ctx context.Context) ([]string, error) {
	if err := f.record("fetchColumns"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.columns...), nil
}

func (f *fakePersistence) FetchRows(ctx context.Context) ([]sheet.RowRecord, error) {
	if err := f.record("fetchRows"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sheet.RowRecord, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakePersistence) FetchStyles(ctx context.Context) (map[sheet.CellKey]sheet.StylePayload, error) {
	if err := f.record("fetchStyles"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[sheet.CellKey]sheet.StylePayload, len(f.styles))
	for k, v := range f.styles {
		out[k] = v
	}
	return out, nil
}

func (f *fakePersistence) AddColumn(ctx context.Context, name string) error {
	return f.record("addColumn")
}

func (f *fakePersistence) RemoveColumn(ctx context.Context, name string) error {
	return f.record("removeColumn")
}

func (f *fakePersistence) AddRow(ctx context.Context, fields map[string]string) (string, error) {
	if err := f.record("addRow"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextIdentity, nil
}

func (f *fakePersistence) RemoveRows(ctx context.Context, identities []string) error {
	return f.record("removeRows")
}

func (f *fakePersistence) SetCell(ctx context.Context, identity, field, value string) error {
	return f.record("setCell")
}

func (f *fakePersistence) SetStyle(ctx context.Context, identity, field string, style sheet.StylePayload) error {
	return f.record("setStyle")
}

// recorderSink captures every render and notification.
type recorderSink struct {
	mu    sync.Mutex
	views []project.View
	errs  []error
}

func (r *recorderSink) Render(v project.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorderSink) Notify(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorderSink) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recorderSink) lastView() project.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func (r *recorderSink) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newTestSession(t *testing.T, persist Persistence, ids ...string) (*Session, *recorderSink) {
	t.Helper()
	sink := &recorderSink{}
	var gen IdentityGenerator = UUIDv7Generator{}
	if len(ids) > 0 {
		gen = NewFixedGenerator(ids...)
	}
	s := New(store.New(), persist, sink, gen)
	require.NoError(t, s.Bootstrap(context.Background()))
	return s, sink
}

// drainOne waits for the next queued message. Persistence results arrive
// from short-lived goroutines, so a small wait is unavoidable.
func drainOne(t *testing.T, s *Session) Message {
	t.Helper()
	var m Message
	require.Eventually(t, func() bool {
		var ok bool
		m, ok = s.queue.TryDequeue()
		return ok
	}, time.Second, 2*time.Millisecond)
	return m
}

func TestSession_BootstrapSeedsAndRenders(t *testing.T) {
	s, sink := newTestSession(t, newFakePersistence())

	snap := s.Store().Snapshot()
	assert.Equal(t, "id", snap.IdentityHeader())
	assert.Len(t, snap.Rows, 2)

	require.Equal(t, 1, sink.renderCount())
	v := sink.lastView()
	assert.Equal(t, []string{"id", "name", "price"}, v.Headers)
	assert.Equal(t, []string{"r1", "A", "10"}, v.Rows[0])
}

func TestSession_BootstrapAppliesPersistedStyles(t *testing.T) {
	persist := newFakePersistence()
	persist.styles[sheet.CellKey{Identity: "r1", Header: "price"}] = sheet.StylePayload{Color: "#ff0000", Bold: true}
	// Styles for rows the row fetch no longer knows about are skipped,
	// not fatal.
	persist.styles[sheet.CellKey{Identity: "gone", Header: "price"}] = sheet.StylePayload{Color: "#00ff00"}

	s, _ := newTestSession(t, persist)

	snap := s.Store().Snapshot()
	rec, ok := snap.Styles[sheet.CellKey{Identity: "r1", Header: "price"}]
	require.True(t, ok)
	assert.Equal(t, "#ff0000", rec.Style.Color)
	assert.True(t, rec.Style.Bold)
	_, ok = snap.Styles[sheet.CellKey{Identity: "gone", Header: "price"}]
	assert.False(t, ok)
}

func TestSession_LocalEditOptimisticThenAck(t *testing.T) {
	ctx := context.Background()
	s, sink := newTestSession(t, newFakePersistence(), "req-1")

	require.True(t, s.Do(sheet.SetCell{Identity: "r1", Header: "price", Value: "12"}))

	local := drainOne(t, s)
	require.Equal(t, MessageTypeLocal, local.Type)
	require.NoError(t, s.processMessage(ctx, local))

	// Optimistic: rendered immediately, marked pending.
	v := sink.lastView()
	assert.Equal(t, "12", v.Rows[0][2])
	assert.True(t, s.Store().Snapshot().PendingCells[sheet.CellKey{Identity: "r1", Header: "price"}])

	ack := drainOne(t, s)
	require.Equal(t, MessageTypeAck, ack.Type)
	require.NoError(t, s.processMessage(ctx, ack))

	snap := s.Store().Snapshot()
	assert.Empty(t, snap.PendingCells)
	val, _ := snap.Value("r1", "price")
	assert.Equal(t, "12", val)
}

func TestSession_NackRollsBackAndNotifies(t *testing.T) {
	ctx := context.Background()
	persist := newFakePersistence()
	persist.fail["setCell"] = errors.New("conflict: row was deleted")
	s, sink := newTestSession(t, persist, "req-1")

	require.True(t, s.Do(sheet.SetCell{Identity: "r1", Header: "price", Value: "12"}))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))

	nack := drainOne(t, s)
	require.Equal(t, MessageTypeNack, nack.Type)
	require.NoError(t, s.processMessage(ctx, nack))

	val, _ := s.Store().Snapshot().Value("r1", "price")
	assert.Equal(t, "10", val, "rolled back to the pre-edit value")
	require.Equal(t, 1, sink.errCount())
}

func TestSession_ValidationErrorNotifiesWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	persist := newFakePersistence()
	s, sink := newTestSession(t, persist, "req-1")

	require.True(t, s.Do(sheet.SetCell{Identity: "r1", Header: "id", Value: "x"}))
	err := s.processMessage(ctx, drainOne(t, s))
	require.Error(t, err)

	assert.Equal(t, 1, sink.errCount())
	assert.True(t, sheet.IsInvariant(sink.errs[0]))

	// No ack/nack arrives: the persistence call never started.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, s.QueueLen())
}

func TestSession_AddRowAckAdoptsServerIdentity(t *testing.T) {
	ctx := context.Background()
	persist := newFakePersistence()
	persist.nextIdentity = "srv-9"
	s, _ := newTestSession(t, persist, "ph-1", "req-1")

	placeholder, ok := s.AddRow()
	require.True(t, ok)
	assert.Equal(t, "ph-1", placeholder)

	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))
	assert.NotEqual(t, -1, s.Store().Snapshot().RowIndex("ph-1"))

	ack := drainOne(t, s)
	require.Equal(t, MessageTypeAck, ack.Type)
	require.Equal(t, "srv-9", ack.NewIdentity)
	require.NoError(t, s.processMessage(ctx, ack))

	snap := s.Store().Snapshot()
	assert.Equal(t, -1, snap.RowIndex("ph-1"))
	assert.NotEqual(t, -1, snap.RowIndex("srv-9"))
}

func TestSession_RemoteEchoDeferredUntilAck(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, newFakePersistence(), "req-1")

	require.True(t, s.Do(sheet.SetCell{Identity: "r1", Header: "price", Value: "12"}))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))

	// Hold the ack so the echo can be interleaved ahead of it.
	ackMsg := drainOne(t, s)
	require.Equal(t, MessageTypeAck, ackMsg.Type)

	// The service's echo of our own change arrives before the ack.
	require.True(t, s.EnqueueRemote(wire.Event{
		Kind:  wire.KindCellsChanged,
		Cells: []wire.CellChange{{Identity: "r1", Field: "price", OldValue: "10", NewValue: "11"}},
	}))
	remote := drainOne(t, s)
	require.Equal(t, MessageTypeRemote, remote.Type)
	require.NoError(t, s.processMessage(ctx, remote))

	val, _ := s.Store().Snapshot().Value("r1", "price")
	assert.Equal(t, "12", val, "pending local edit wins over the echo")

	require.NoError(t, s.processMessage(ctx, ackMsg))
	val, _ = s.Store().Snapshot().Value("r1", "price")
	assert.Equal(t, "11", val, "cached remote value applies on ack")

	// A later delta applies directly.
	require.True(t, s.EnqueueRemote(wire.Event{
		Kind:  wire.KindCellsChanged,
		Cells: []wire.CellChange{{Identity: "r1", Field: "price", OldValue: "11", NewValue: "13"}},
	}))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))
	val, _ = s.Store().Snapshot().Value("r1", "price")
	assert.Equal(t, "13", val)
}

func TestSession_RowAddedDeltaTriggersRefetch(t *testing.T) {
	ctx := context.Background()
	persist := newFakePersistence()
	s, _ := newTestSession(t, persist)

	// The service now also knows a third row.
	persist.mu.Lock()
	persist.rows = append(persist.rows, sheet.RowRecord{
		Identity: "r3",
		Fields:   map[string]string{"name": "C", "price": "30"},
	})
	persist.mu.Unlock()

	require.True(t, s.EnqueueRemote(wire.Event{Kind: wire.KindRowAdded, Identities: []string{"r3"}}))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))

	// The delta alone yields an empty-fielded row.
	val, _ := s.Store().Snapshot().Value("r3", "name")
	assert.Equal(t, "", val)

	refetch := drainOne(t, s)
	require.Equal(t, MessageTypeRefetch, refetch.Type)
	require.NoError(t, s.processMessage(ctx, refetch))

	val, _ = s.Store().Snapshot().Value("r3", "name")
	assert.Equal(t, "C", val, "re-fetch fills the new row's fields")
}

func TestSession_CommitCellKeepsFormulaOverlay(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, newFakePersistence(), "req-1")

	require.True(t, s.CommitCell("r1", "price", "30", "=B1*3"))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))

	val, _ := s.Store().Snapshot().Value("r1", "price")
	assert.Equal(t, "30", val)
	raw, ok := s.Store().Formula("r1", "price")
	require.True(t, ok)
	assert.Equal(t, "=B1*3", raw)
}

func TestSession_ControlOpsApplyAndRender(t *testing.T) {
	ctx := context.Background()
	s, sink := newTestSession(t, newFakePersistence())
	before := sink.renderCount()

	require.True(t, s.ToggleRowChecked("r1"))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))
	assert.True(t, s.Store().Snapshot().Selection.CheckedRows["r1"])

	require.True(t, s.ToggleVisibility("price"))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))
	assert.Equal(t, []string{"id", "name"}, sink.lastView().Headers)

	require.True(t, s.SelectColumn(1))
	require.NoError(t, s.processMessage(ctx, drainOne(t, s)))
	assert.Equal(t, 1, s.Store().Snapshot().Selection.SelectedColumn)

	assert.Equal(t, before+3, sink.renderCount())
}

func TestSession_RunProcessesEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := newTestSession(t, newFakePersistence())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Do(sheet.SetCell{Identity: "r2", Header: "name", Value: "Bee"}))

	require.Eventually(t, func() bool {
		snap := s.Store().Snapshot()
		val, _ := snap.Value("r2", "name")
		return val == "Bee" && len(snap.PendingCells) == 0
	}, time.Second, 5*time.Millisecond, "edit applied and acknowledged")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_StopClosesQueue(t *testing.T) {
	s, _ := newTestSession(t, newFakePersistence())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.False(t, s.Do(sheet.AddColumn{Name: "late"}))
}

func TestSession_PumpForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := newTestSession(t, newFakePersistence())

	events := make(chan wire.Event, 1)
	go s.Pump(ctx, events)

	events <- wire.Event{
		Kind:  wire.KindCellsChanged,
		Cells: []wire.CellChange{{Identity: "r1", Field: "name", NewValue: "Ay"}},
	}

	msg := drainOne(t, s)
	require.Equal(t, MessageTypeRemote, msg.Type)
	require.NoError(t, s.processMessage(ctx, msg))

	val, _ := s.Store().Snapshot().Value("r1", "name")
	assert.Equal(t, "Ay", val)
	close(events)
}
