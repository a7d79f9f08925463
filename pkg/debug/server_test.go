package debug

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/xorbits-io/xorbits/pkg/actor"
	"github.com/xorbits-io/xorbits/pkg/subtask"
)

func newTestPool(t *testing.T) *actor.MainPool {
	t.Helper()
	cfg := actor.NewActorPoolConfig()
	cfg.AddPoolConfig(actor.PoolConfig{
		ProcessIndex:    200,
		Label:           "worker",
		InternalAddress: actor.GenInternalAddress(200, "127.0.0.1:0"),
		ExternalAddress: []string{actor.GenInternalAddress(200, "127.0.0.1:0")},
	})
	pool := actor.NewMainPool(cfg, actor.AutoRecoverNone)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, pool.StartSubPools(ctx))
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	return pool
}

func TestHandlePoolsReturnsSummaries(t *testing.T) {
	pool := newTestPool(t)
	srv := NewServer(pool, func(string) (*subtask.Graph, bool) { return nil, false })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/pools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var event PoolHealthEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	require.Len(t, event.Pools, 1)
	require.Equal(t, "worker", event.Pools[0].Label)
	require.Equal(t, "running", event.Pools[0].Status)
}

func TestHandleSubtaskGraphNotFound(t *testing.T) {
	pool := newTestPool(t)
	srv := NewServer(pool, func(string) (*subtask.Graph, bool) { return nil, false })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/subtaskgraph/missing-task")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleSubtaskGraphRendersDOT(t *testing.T) {
	pool := newTestPool(t)
	g := buildTestGraph()
	srv := NewServer(pool, func(taskID string) (*subtask.Graph, bool) {
		if taskID == "t1" {
			return g, true
		}
		return nil, false
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/subtaskgraph/t1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	require.True(t, strings.HasPrefix(string(body[:n]), "digraph subtaskgraph"))
}

func TestHandlePoolsWebSocketStreamsSnapshot(t *testing.T) {
	pool := newTestPool(t)
	srv := NewServer(pool, func(string) (*subtask.Graph, bool) { return nil, false })

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/pools/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var event PoolHealthEvent
	require.NoError(t, conn.ReadJSON(&event))
	require.Len(t, event.Pools, 1)
}
