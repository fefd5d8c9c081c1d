package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/api"
	"github.com/gridhouse/sheetsync/internal/server/storage"
	"github.com/gridhouse/sheetsync/internal/sheet"
	"github.com/gridhouse/sheetsync/internal/wire"
)

// newTestService spins up the full stack: sqlite storage, server,
// httptest listener, and an api.Client pointed at it.
func newTestService(t *testing.T, opts ...Option) (*Server, *httptest.Server, *api.Client) {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/sheets.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateProject(context.Background(), "demo", []string{"id", "name", "price"}))

	srv := New(store, opts...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return srv, ts, api.NewClient(ts.URL, "demo", nil)
}

func TestService_ColumnLifecycle(t *testing.T) {
	_, _, client := newTestService(t)
	ctx := context.Background()

	cols, err := client.FetchColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price"}, cols)

	require.NoError(t, client.AddColumn(ctx, "stock"))
	cols, err = client.FetchColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price", "stock"}, cols)

	err = client.AddColumn(ctx, "stock")
	assert.True(t, sheet.IsInvariant(err), "duplicate: %v", err)

	require.NoError(t, client.RemoveColumn(ctx, "stock"))
	err = client.RemoveColumn(ctx, "id")
	assert.True(t, sheet.IsInvariant(err), "identity column: %v", err)
}

func TestService_RowAndCellLifecycle(t *testing.T) {
	counter := 0
	_, _, client := newTestService(t, WithIdentityFunc(func() string {
		counter++
		return fmt.Sprintf("row-%d", counter)
	}))
	ctx := context.Background()

	id, err := client.AddRow(ctx, map[string]string{"name": "Widget"})
	require.NoError(t, err)
	assert.Equal(t, "row-1", id)

	require.NoError(t, client.SetCell(ctx, id, "price", "10"))
	err = client.SetCell(ctx, "ghost", "price", "1")
	assert.True(t, sheet.IsNotFound(err), "unknown row: %v", err)

	rows, err := client.FetchRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Widget", rows[0].Fields["name"])
	assert.Equal(t, "10", rows[0].Fields["price"])
	assert.Equal(t, "row-1", rows[0].Fields["id"])

	require.NoError(t, client.RemoveRows(ctx, []string{id}))
	rows, err = client.FetchRows(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestService_MutationsBroadcastDeltas(t *testing.T) {
	srv, _, client := newTestService(t, WithIdentityFunc(func() string { return "row-9" }))
	ctx := context.Background()

	ch := srv.Hub().Subscribe("demo")
	defer srv.Hub().Unsubscribe("demo", ch)

	require.NoError(t, client.AddColumn(ctx, "stock"))
	id, err := client.AddRow(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, client.SetCell(ctx, id, "stock", "5"))
	require.NoError(t, client.SetStyle(ctx, id, "stock", sheet.StylePayload{Color: "red"}))

	want := []string{
		wire.KindColumnAdded,
		wire.KindRowAdded,
		wire.KindCellsChanged,
		wire.KindStyleChanged,
	}
	var got []wire.Event
	for range want {
		select {
		case ev := <-ch:
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("missing event, have %d of %d", len(got), len(want))
		}
	}

	for i, kind := range want {
		assert.Equal(t, kind, got[i].Kind, "event %d", i)
		assert.Equal(t, int64(i+1), got[i].Seq, "stream seq is dense and ordered")
		assert.Equal(t, "demo", got[i].Project)
	}
	assert.Equal(t, []string{"row-9"}, got[1].Identities)
	require.Len(t, got[2].Cells, 1)
	assert.Equal(t, wire.CellChange{Identity: "row-9", Field: "stock", OldValue: "", NewValue: "5"}, got[2].Cells[0])
	require.NotNil(t, got[3].Style)
	assert.Equal(t, "red", got[3].Style.Color)
}

func TestService_StreamDeliversOverWebsocket(t *testing.T) {
	srv, ts, client := newTestService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sub := api.NewSubscriber(ts.URL, "demo", nil)
	events, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	// Wait for the stream handler to register its hub listener before
	// mutating.
	require.Eventually(t, func() bool {
		return srv.Hub().ListenerCount("demo") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.AddColumn(ctx, "stock"))

	select {
	case ev := <-events:
		assert.Equal(t, wire.KindColumnAdded, ev.Kind)
		assert.Equal(t, "stock", ev.Column)
		assert.Equal(t, int64(1), ev.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived on the websocket")
	}
}

func TestService_TokenEnforcement(t *testing.T) {
	store, err := storage.Open(t.TempDir() + "/sheets.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.CreateProject(context.Background(), "demo", []string{"id"}))

	ts := httptest.NewServer(New(store, WithToken("hunter2")).Router())
	t.Cleanup(ts.Close)

	ctx := context.Background()

	noAuth := api.NewClient(ts.URL, "demo", nil)
	_, err = noAuth.FetchColumns(ctx)
	require.Error(t, err)
	assert.True(t, sheet.IsPersistence(err), "401 maps to persistence error: %v", err)

	authed := api.NewClient(ts.URL, "demo", api.StaticToken("hunter2"))
	cols, err := authed.FetchColumns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, cols)
}

func TestService_UnknownProjectIs404(t *testing.T) {
	_, ts, _ := newTestService(t)
	client := api.NewClient(ts.URL, "nope", nil)

	_, err := client.FetchColumns(context.Background())
	assert.True(t, sheet.IsNotFound(err), "got %v", err)
}
