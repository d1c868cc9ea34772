package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/nuxlab/internal/app"
	"github.com/michaelbrown/nuxlab/internal/config"
	"github.com/michaelbrown/nuxlab/internal/logging"
	"github.com/michaelbrown/nuxlab/internal/nuagex"
	"github.com/michaelbrown/nuxlab/internal/nuagex/nuagextest"
	"github.com/michaelbrown/nuxlab/internal/reconcile"
	"github.com/michaelbrown/nuxlab/internal/server"
	"github.com/michaelbrown/nuxlab/internal/storage"
)

type fixture struct {
	fake *nuagextest.Server
	app  *app.App
	http *httptest.Server
}

func setup(t *testing.T, journal bool, password string) *fixture {
	t.Helper()
	return setupWith(t, journal, password, nil)
}

func setupWith(t *testing.T, journal bool, password string, tweak func(*config.Config)) *fixture {
	t.Helper()
	fake := nuagextest.NewServer(
		nuagex.Template{ID: "t2", Name: "zeta"},
		nuagex.Template{ID: "t1", Name: "alpha"},
	)
	t.Cleanup(fake.Close)

	cfg := &config.Config{
		Auth: config.AuthConfig{Username: nuagextest.Username, Password: password},
		API:  config.APIConfig{URL: fake.APIURL(), Timeout: 5 * time.Second},
		Wait: config.WaitConfig{Attempts: 5, Interval: time.Millisecond},
	}
	if journal {
		cfg.Journal = config.JournalConfig{Enabled: true, DBPath: filepath.Join(t.TempDir(), "runs.db")}
	}
	if tweak != nil {
		tweak(cfg)
	}

	a, err := app.New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ts := httptest.NewServer(server.New(a).Handler())
	t.Cleanup(ts.Close)

	return &fixture{fake: fake, app: a, http: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestEnsurePresentThenAbsent(t *testing.T) {
	f := setup(t, false, nuagextest.Password)

	resp, body := f.do(t, http.MethodPut, "/api/labs/demo", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var res reconcile.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, reconcile.ActionCreate, res.Action)
	assert.Equal(t, "alpha", res.Template)
	assert.Equal(t, nuagex.StatusStarted, res.Status)

	resp, body = f.do(t, http.MethodPut, "/api/labs/demo", `{"template":"alpha"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Changed)

	resp, body = f.do(t, http.MethodGet, "/api/labs/demo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var md reconcile.Metadata
	require.NoError(t, json.Unmarshal(body, &md))
	assert.Equal(t, "demo", md.Name)
	assert.NotEmpty(t, md.Address)

	resp, body = f.do(t, http.MethodDelete, "/api/labs/demo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, reconcile.ActionDelete, res.Action)
	assert.Empty(t, f.fake.Labs())

	resp, _ = f.do(t, http.MethodGet, "/api/labs/demo", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckModeOverHTTP(t *testing.T) {
	f := setup(t, false, nuagextest.Password)

	resp, body := f.do(t, http.MethodPut, "/api/labs/demo", `{"check":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res reconcile.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Changed)
	assert.Equal(t, 0, f.fake.Creates)

	f.fake.AddLab(nuagex.Lab{Name: "demo", Status: nuagex.StatusStarted, Template: "t1"})
	resp, _ = f.do(t, http.MethodDelete, "/api/labs/demo?check=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.fake.Deletes)
}

func TestErrorStatuses(t *testing.T) {
	f := setup(t, false, nuagextest.Password)

	resp, body := f.do(t, http.MethodPut, "/api/labs/demo", `{"template":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	resp, _ = f.do(t, http.MethodPut, "/api/labs/demo", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.fake.FailLabs = http.StatusInternalServerError
	resp, _ = f.do(t, http.MethodPut, "/api/labs/demo", `{}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	bad := setup(t, false, "wrong")
	resp, body = bad.do(t, http.MethodGet, "/api/templates", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "Invalid NuageX credentials")
}

func TestWaitTimeoutStatus(t *testing.T) {
	f := setup(t, false, nuagextest.Password)
	f.fake.StartAfter = 100

	resp, _ := f.do(t, http.MethodPut, "/api/labs/demo", `{}`)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestListTemplatesSorted(t *testing.T) {
	f := setup(t, false, nuagextest.Password)

	resp, body := f.do(t, http.MethodGet, "/api/templates", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []struct{ ID, Name string }
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].Name)
	assert.Equal(t, "zeta", out[1].Name)
}

func TestListRuns(t *testing.T) {
	f := setup(t, false, nuagextest.Password)
	resp, body := f.do(t, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	j := setup(t, true, nuagextest.Password)
	j.do(t, http.MethodPut, "/api/labs/one", `{}`)
	j.do(t, http.MethodPut, "/api/labs/two", `{}`)

	resp, body = j.do(t, http.MethodGet, "/api/runs?lab=two", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []storage.Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "two", runs[0].LabName)
	assert.Equal(t, reconcile.ActionCreate, runs[0].Action)
}

func TestConcurrentEnsureCreatesOnce(t *testing.T) {
	f := setup(t, false, nuagextest.Password)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPut, f.http.URL+"/api/labs/shared", strings.NewReader(`{}`))
			resp, err := http.DefaultClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.fake.Creates)
	assert.Len(t, f.fake.Labs(), 1)
}

type wsMessage struct {
	Type    string            `json:"type"`
	Content string            `json:"content"`
	Attempt int               `json:"attempt"`
	Status  string            `json:"status"`
	Result  *reconcile.Result `json:"result"`
}

func dial(t *testing.T, f *fixture, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/labs/" + name + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketStreamsPolls(t *testing.T) {
	f := setup(t, false, nuagextest.Password)
	f.fake.StartAfter = 2
	conn := dial(t, f, "demo")

	require.NoError(t, conn.WriteJSON(map[string]any{"state": "present", "template": "zeta"}))

	var polls []wsMessage
	var final wsMessage
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "poll" {
			polls = append(polls, msg)
			continue
		}
		final = msg
		break
	}

	require.Equal(t, "result", final.Type, final.Content)
	require.NotNil(t, final.Result)
	assert.True(t, final.Result.Changed)
	assert.Equal(t, "zeta", final.Result.Template)
	require.NotEmpty(t, polls)
	assert.Equal(t, 1, polls[0].Attempt)
	assert.Equal(t, nuagex.StatusStarted, polls[len(polls)-1].Status)
}

func TestWebSocketRejectsBadState(t *testing.T) {
	f := setup(t, false, nuagextest.Password)
	conn := dial(t, f, "demo")

	require.NoError(t, conn.WriteJSON(map[string]any{"state": "running"}))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "value of state must be one of")

	// The connection stays usable after a bad request.
	require.NoError(t, conn.WriteJSON(map[string]any{"state": "absent"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "result", msg.Type)
	assert.False(t, msg.Result.Changed)
}

func TestWebSocketDisconnectStopsWait(t *testing.T) {
	f := setupWith(t, false, nuagextest.Password, func(cfg *config.Config) {
		// Unlimited attempts: only cancellation ends the wait.
		cfg.Wait = config.WaitConfig{Attempts: 0, Interval: 5 * time.Millisecond}
	})
	f.fake.StartAfter = 1 << 30
	conn := dial(t, f, "demo")

	require.NoError(t, conn.WriteJSON(map[string]any{"state": "present"}))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "poll", msg.Type)
	require.NoError(t, conn.Close())

	// The lab lock must be released once the client has gone, so another
	// request for the same lab gets through.
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequest(http.MethodPut, f.http.URL+"/api/labs/demo", strings.NewReader(`{"check":true}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.fake.Creates)
}

func TestWebSocketRejectsConcurrentRequest(t *testing.T) {
	f := setupWith(t, false, nuagextest.Password, func(cfg *config.Config) {
		cfg.Wait = config.WaitConfig{Attempts: 0, Interval: 5 * time.Millisecond}
	})
	f.fake.StartAfter = 1 << 30
	conn := dial(t, f, "demo")

	require.NoError(t, conn.WriteJSON(map[string]any{"state": "present"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"state": "absent"}))

	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "poll" {
			continue
		}
		assert.Equal(t, "error", msg.Type)
		assert.Contains(t, msg.Content, "already running")
		break
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t, false, nuagextest.Password)
	f.do(t, http.MethodPut, "/api/labs/demo", `{}`)

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "nuxlab_reconcile_total")
	assert.Contains(t, string(body), "nuxlab_nuagex_requests_total")
}

func TestLabLocks(t *testing.T) {
	l := server.NewLabLocks()
	unlock := l.Lock("a")
	assert.Equal(t, 1, l.Len())

	acquired := make(chan struct{})
	go func() {
		u := l.Lock(" a ")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock returned while the first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
}
