package tokenapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d3v3l0/waiter/pkg/clustercalc"
	"github.com/d3v3l0/waiter/pkg/registry"
	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenkv"
)

type fixedCalculator struct{ cluster string }

func (f fixedCalculator) Default() string                  { return f.cluster }
func (f fixedCalculator) Calculate(r *http.Request) string { return f.cluster }

var _ clustercalc.Calculator = fixedCalculator{}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := tokenkv.OpenBolt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := tokenkv.NewStore(db, 64)

	start := time.Unix(1_700_000_000, 0).UTC()
	clock := func() time.Time { start = start.Add(time.Second); return start }

	authz := tokenauthz.NewRoleGate([]string{"root"})
	reg := registry.New(store, authz, fixedCalculator{cluster: "test-cluster"}, clock, nil, nil, registry.Config{HistoryLimit: 5})

	return NewServer(reg, fixedCalculator{cluster: "test-cluster"}, NewHeaderHostResolver("", nil), NewHeaderUserResolver(""))
}

func doJSON(t *testing.T, h http.Handler, method, target string, body map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPostThenGetToken(t *testing.T) {
	s := newTestServer(t)
	h := s.GetHandler()

	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512), "run-as-user": "alice"}
	w := doJSON(t, h, http.MethodPost, "/token", body, map[string]string{"X-Authenticated-User": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	assert.NotEmpty(t, etag)

	w2 := doJSON(t, h, http.MethodGet, "/token?token=t1", nil, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, etag, w2.Header().Get("ETag"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &got))
	assert.Equal(t, "run.sh", got["cmd"])
}

func TestGetMissingTokenIs404(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.GetHandler(), http.MethodGet, "/token?token=nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostWithoutAuthenticatedUserIs400(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512)}
	w := doJSON(t, s.GetHandler(), http.MethodPost, "/token", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostStalePreconditionIs412(t *testing.T) {
	s := newTestServer(t)
	h := s.GetHandler()
	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512), "run-as-user": "alice"}
	doJSON(t, h, http.MethodPost, "/token", body, map[string]string{"X-Authenticated-User": "alice"})

	body2 := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(2), "mem": float64(512), "run-as-user": "alice"}
	w := doJSON(t, h, http.MethodPost, "/token", body2, map[string]string{
		"X-Authenticated-User": "alice",
		"If-Match":             "not-the-real-hash",
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestDeleteThenListExcludesDeleted(t *testing.T) {
	s := newTestServer(t)
	h := s.GetHandler()
	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512), "run-as-user": "alice"}
	doJSON(t, h, http.MethodPost, "/token", body, map[string]string{"X-Authenticated-User": "alice"})

	w := doJSON(t, h, http.MethodDelete, "/token?token=t1", nil, map[string]string{"X-Authenticated-User": "alice"})
	require.Equal(t, http.StatusOK, w.Code)

	w2 := doJSON(t, h, http.MethodGet, "/tokens?owner=alice", nil, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &entries))
	assert.Empty(t, entries)

	w3 := doJSON(t, h, http.MethodGet, "/tokens?owner=alice&include=deleted", nil, nil)
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestTokenOwnersAndReindex(t *testing.T) {
	s := newTestServer(t)
	h := s.GetHandler()
	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512), "run-as-user": "alice"}
	doJSON(t, h, http.MethodPost, "/token", body, map[string]string{"X-Authenticated-User": "alice"})

	w := doJSON(t, h, http.MethodGet, "/token-owners", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dir map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dir))
	assert.Contains(t, dir, "alice")

	w2 := doJSON(t, h, http.MethodPost, "/tokens/reindex", nil, nil)
	require.Equal(t, http.StatusOK, w2.Code)

	w3 := doJSON(t, h, http.MethodGet, "/tokens?owner=alice", nil, nil)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(w3.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
}

func TestPeerRefreshInvalidatesCache(t *testing.T) {
	s := newTestServer(t)
	h := s.GetHandler()
	body := map[string]any{"token": "t1", "cmd": "run.sh", "cpus": float64(1), "mem": float64(512), "run-as-user": "alice"}
	doJSON(t, h, http.MethodPost, "/token", body, map[string]string{"X-Authenticated-User": "alice"})

	w := doJSON(t, h, http.MethodPost, "/tokens/refresh", map[string]any{"token": "t1"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMethodNotAllowedOnToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/token?token=t1", nil)
	w := httptest.NewRecorder()
	s.GetHandler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
