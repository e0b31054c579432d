package http_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/gateway/config"
)

type fakeKeys struct {
	data    map[string][]byte
	lastTTL time.Duration
	err     error
	topo    domain.Topology
}

func (f *fakeKeys) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKeys) Set(_ context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.data[key] = value
	f.lastTTL = ttl
	return uint64(len(f.data)), nil
}

func (f *fakeKeys) Delete(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.data[key]
	delete(f.data, key)
	return ok, nil
}

func (f *fakeKeys) Topology() domain.Topology {
	return f.topo
}

func newTestServer() (*Server, *fakeKeys) {
	cfg := config.DefaultConfig()
	cfg.Server.AccessLog = false
	keys := &fakeKeys{data: map[string][]byte{}}
	return NewServer(cfg, keys), keys
}

func do(t *testing.T, s *Server, method, target, body string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

func TestServer_KeyLifecycle(t *testing.T) {
	s, keys := newTestServer()

	resp, body := do(t, s, http.MethodPut, "/keys/user:1?ttl=30", "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, 30*time.Second, keys.lastTTL)

	var set struct {
		Version uint64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &set))
	assert.Equal(t, uint64(1), set.Version)

	resp, body = do(t, s, http.MethodGet, "/keys/user:1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)

	resp, body = do(t, s, http.MethodDelete, "/keys/user:1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"existed":true`)

	resp, _ = do(t, s, http.MethodGet, "/keys/user:1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RejectsBadTTL(t *testing.T) {
	s, _ := newTestServer()
	resp, _ := do(t, s, http.MethodPut, "/keys/k?ttl=soon", "v")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid key", domain.ErrInvalidKey, http.StatusBadRequest},
		{"unavailable", fmt.Errorf("%w: key %q", domain.ErrUnavailable, "k"), http.StatusServiceUnavailable},
		{"capacity", &domain.CapacityExceededError{Key: "k"}, http.StatusInsufficientStorage},
		{"replication timeout", &domain.ReplicationTimeoutError{Key: "k", Version: 7, Acked: 1, Required: 2}, http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, keys := newTestServer()
			keys.err = tt.err
			resp, body := do(t, s, http.MethodPut, "/keys/k", "v")
			assert.Equal(t, tt.status, resp.StatusCode, body)
		})
	}
}

func TestServer_ReplicationTimeoutCarriesVersion(t *testing.T) {
	s, keys := newTestServer()
	keys.err = &domain.ReplicationTimeoutError{Key: "k", Version: 7, Acked: 1, Required: 2}

	_, body := do(t, s, http.MethodPut, "/keys/k", "v")
	var out struct {
		Version  uint64 `json:"version"`
		Acked    int    `json:"acked"`
		Required int    `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, uint64(7), out.Version)
	assert.Equal(t, 1, out.Acked)
	assert.Equal(t, 2, out.Required)
}

func TestServer_Topology(t *testing.T) {
	s, keys := newTestServer()
	keys.topo = domain.Topology{Epoch: 4, VirtualNodes: 16, Members: []domain.NodeDescriptor{
		{NodeID: "A", Address: "a:7000", State: domain.StateActive},
	}}

	resp, body := do(t, s, http.MethodGet, "/cluster/topology", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var topo domain.Topology
	require.NoError(t, json.Unmarshal([]byte(body), &topo))
	assert.Equal(t, keys.topo, topo)
}
