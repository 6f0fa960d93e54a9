package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/htlvc/internal/engine"
	"github.com/danmuck/htlvc/internal/profile"
	"github.com/danmuck/htlvc/internal/protocol"
	"github.com/danmuck/htlvc/internal/protocol/frame"
	"github.com/danmuck/htlvc/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinks struct {
	attached map[protocol.TransferMethod]bool
}

func (f fakeLinks) Attached(m protocol.TransferMethod) bool { return f.attached[m] }
func (f fakeLinks) BreakerState(protocol.TransferMethod) string { return "closed" }

type sink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *sink) send(b []byte, _ protocol.TransferMethod) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	return len(b), nil
}

func newTestServer(t *testing.T) (*Server, *sink, *profile.Registers) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	out := &sink{}
	table := []engine.Entry{
		{Tag: 0x10, Name: "threshold", Handler: engine.Echo},
		{Tag: 0x01, Name: "ping", Handler: engine.Echo},
	}
	e, err := engine.NewRegistrar(engine.DefaultConfig()).Register(table, out.send)
	require.NoError(t, err)

	regs := profile.NewRegisters()
	links := fakeLinks{attached: map[protocol.TransferMethod]bool{1: true}}
	methods := []Method{{Name: "stream", Method: 1}, {Name: "websocket", Method: 2}}
	return New(Config{DeviceID: "dev-1"}, e, links, methods, regs), out, regs
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newTestServer(t)

	rec, body := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "dev-1", body["device"])

	rec, body = do(t, s, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])
	links := body["links"].([]any)
	require.Len(t, links, 2)
	assert.Equal(t, true, links[0].(map[string]any)["attached"])
	assert.Equal(t, false, links[1].(map[string]any)["attached"])
}

func TestReadyWithoutEngine(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New(Config{DeviceID: "dev-0"}, nil, nil, nil, nil)
	rec, body := do(t, s, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["ready"])

	rec, _ = do(t, s, http.MethodPost, "/reports/1", `{"value":"01"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newTestServer(t)
	do(t, s, http.MethodGet, "/health", "")
	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "htlvc_http_requests_total")
}

func TestTagsSorted(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newTestServer(t)
	rec, body := do(t, s, http.MethodGet, "/tags", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tags := body["tags"].([]any)
	require.Len(t, tags, 2)
	assert.Equal(t, "0x01", tags[0].(map[string]any)["tag"])
	assert.Equal(t, "threshold", tags[1].(map[string]any)["name"])
}

func TestRegisters(t *testing.T) {
	testlog.Start(t)
	s, _, regs := newTestServer(t)
	regs.Set("threshold", []byte{0x2A})
	rec, body := do(t, s, http.MethodGet, "/registers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2a", body["registers"].(map[string]any)["threshold"])
}

func TestPostReport(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newTestServer(t)
	rec, body := do(t, s, http.MethodPost, "/reports/0x30", `{"value":"0102","method":1}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "0x30", body["tag"])

	require.Len(t, out.frames, 1)
	fr, err := frame.Decode(out.frames[0], 1)
	require.NoError(t, err)
	assert.Equal(t, protocol.HeaderReport, fr.Header)
	assert.Equal(t, byte(0x30), fr.Record.Tag)
	assert.Equal(t, []byte{1, 2}, fr.Record.Value)
}

func TestPostReportErrors(t *testing.T) {
	testlog.Start(t)
	s, out, _ := newTestServer(t)
	big := strings.Repeat("00", protocol.MaxValueLen+1)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "bad tag", path: "/reports/zz", body: `{"value":""}`, want: http.StatusBadRequest},
		{name: "tag too wide", path: "/reports/256", body: `{"value":""}`, want: http.StatusBadRequest},
		{name: "bad json", path: "/reports/1", body: `{`, want: http.StatusBadRequest},
		{name: "bad hex", path: "/reports/1", body: `{"value":"x"}`, want: http.StatusBadRequest},
		{name: "too large", path: "/reports/1", body: `{"value":"` + big + `"}`, want: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := do(t, s, http.MethodPost, tc.path, tc.body)
			require.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Empty(t, out.frames)

	out.err = errors.New("link down")
	rec, _ := do(t, s, http.MethodPost, "/reports/1", `{"value":"01"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestParseTag(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]byte{"1": 1, "0x1f": 0x1f, "255": 0xFF} {
		got, err := parseTag(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseTag("-1")
	require.ErrorIs(t, err, ErrBadTag)
}

func TestCORSPreflight(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/tags", bytes.NewReader(nil))
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReportsRequireToken(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	out := &sink{}
	e, err := engine.NewRegistrar(engine.DefaultConfig()).Register(nil, out.send)
	require.NoError(t, err)
	s := New(Config{DeviceID: "dev-2", Token: "secret"}, e, nil, nil, nil)

	post := func(auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/reports/1", strings.NewReader(`{"value":"01"}`))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("Bearer wrong"))
	assert.Equal(t, http.StatusUnauthorized, post("secret"))
	assert.Equal(t, http.StatusAccepted, post("Bearer secret"))
	assert.Len(t, out.frames, 1)

	rec, _ := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticToken(t *testing.T) {
	testlog.Start(t)
	require.ErrorIs(t, StaticToken("").Validate(""), ErrUnauthorized)
	require.ErrorIs(t, StaticToken("a").Validate("b"), ErrUnauthorized)
	require.NoError(t, StaticToken("a").Validate("a"))
}
