package api

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridhouse/sheetsync/internal/engine"
	"github.com/gridhouse/sheetsync/internal/project"
	"github.com/gridhouse/sheetsync/internal/server"
	"github.com/gridhouse/sheetsync/internal/server/storage"
	"github.com/gridhouse/sheetsync/internal/sheet"
)

type recordingSink struct {
	mu     sync.Mutex
	views  []project.View
	errors []error
}

func (r *recordingSink) Render(v project.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingSink) Notify(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingSink) lastHeaders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return nil
	}
	return r.views[len(r.views)-1].Headers
}

var _ engine.RenderSink = (*recordingSink)(nil)

func newLiveService(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.CreateProject(ctx, "demo", []string{"id", "name"}))
	require.NoError(t, store.AddRow(ctx, "demo", "r1", map[string]string{"name": "Widget"}))

	srv := server.New(store)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestOpen_BootstrapsAndFollowsRemoteDeltas(t *testing.T) {
	srv, ts := newLiveService(t)
	sink := &recordingSink{}

	session, stop, err := Open(context.Background(), ts.URL, "demo", nil, sink)
	require.NoError(t, err)
	defer stop()

	assert.Equal(t, []string{"id", "name"}, sink.lastHeaders())

	require.Eventually(t, func() bool {
		return srv.Hub().ListenerCount("demo") == 1
	}, 2*time.Second, 10*time.Millisecond)

	other := NewClient(ts.URL, "demo", nil)
	require.NoError(t, other.AddColumn(context.Background(), "price"))

	require.Eventually(t, func() bool {
		headers := sink.lastHeaders()
		return len(headers) == 3 && headers[2] == "price"
	}, 2*time.Second, 10*time.Millisecond)

	snap := session.Store().Snapshot()
	assert.Equal(t, 3, len(snap.Headers))
}

func TestOpen_LocalMutationPersists(t *testing.T) {
	_, ts := newLiveService(t)
	sink := &recordingSink{}

	session, stop, err := Open(context.Background(), ts.URL, "demo", nil, sink)
	require.NoError(t, err)
	defer stop()

	require.True(t, session.Do(sheet.SetCell{Identity: "r1", Header: "name", Value: "Gadget"}))

	reader := NewClient(ts.URL, "demo", nil)
	require.Eventually(t, func() bool {
		rows, err := reader.FetchRows(context.Background())
		return err == nil && len(rows) == 1 && rows[0].Fields["name"] == "Gadget"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOpen_UnknownProjectFails(t *testing.T) {
	_, ts := newLiveService(t)

	_, _, err := Open(context.Background(), ts.URL, "missing", nil, &recordingSink{})
	require.Error(t, err)
	assert.True(t, sheet.IsNotFound(err))
}
