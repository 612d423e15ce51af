package toolserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LY-Tri/Spider2/pkg/bench"
)

func newClientFixture(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	server := newTestServer(t, Options{}, echoDef())

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", server.handleExecute)
	mux.HandleFunc("/health", server.handleHealth)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return NewClient(ts.URL), ts
}

func TestClientDispatch(t *testing.T) {
	client, _ := newClientFixture(t)

	obs, err := client.Dispatch(context.Background(), bench.ToolInvocation{
		Name:      "echo",
		Arguments: map[string]interface{}{"text": "over the wire"},
	})
	require.NoError(t, err)
	assert.Equal(t, bench.ObservationOK, obs.Status)
	assert.Contains(t, obs.Text, "over the wire")
}

func TestClientDispatchErrorObservation(t *testing.T) {
	client, _ := newClientFixture(t)

	obs, err := client.Dispatch(context.Background(), bench.ToolInvocation{Name: "missing"})
	require.NoError(t, err)
	assert.Equal(t, bench.ObservationError, obs.Status)
	assert.Contains(t, obs.Text, "unknown tool")
}

func TestClientDispatchServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	_, err := client.Dispatch(context.Background(), bench.ToolInvocation{Name: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClientDispatchUnreachableServer(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	_, err := client.Dispatch(context.Background(), bench.ToolInvocation{Name: "echo"})
	assert.Error(t, err)
}

func TestClientWaitReady(t *testing.T) {
	client, _ := newClientFixture(t)
	assert.NoError(t, client.WaitReady(context.Background(), time.Second))
}

func TestClientWaitReadyTimeout(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	err := client.WaitReady(context.Background(), 200*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}
