package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowtrack/internal/backend"
	"snowtrack/internal/log"
	"snowtrack/internal/services"
	"snowtrack/internal/session"
)

type testClient struct {
	t      *testing.T
	base   string
	client *http.Client
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil), Component: "test"})
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	factory, err := backend.NewFactory(backend.Config{Type: backend.MemoryBackend}, nil)
	require.NoError(t, err)

	logger := quietLogger()
	manager := session.NewManager(factory, time.Hour, time.Hour, logger)
	tracker := services.NewTrackerService(nil, logger)
	if opts.Logger == nil {
		opts.Logger = logger
	}
	opts.SessionSecret = strings.Repeat("k", 32)

	srv := NewServer(":0", tracker, manager, opts)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(t.Context())
		manager.Close()
	})
	return srv, ts
}

func newClient(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{t: t, base: ts.URL, client: &http.Client{Jar: jar}}
}

func (c *testClient) do(method, path, contentType, body string) (int, map[string]any) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (c *testClient) insert(customer, month, consumption string) (int, map[string]any) {
	c.t.Helper()
	body, err := json.Marshal(map[string]string{
		"customer":       customer,
		"month":          month,
		"consumption":    consumption,
		"project_status": "On Track",
		"region":         "US East",
		"notes":          "",
	})
	require.NoError(c.t, err)
	return c.do(http.MethodPost, "/api/records", "application/json", string(body))
}

func records(t *testing.T, body map[string]any, key string) []map[string]any {
	t.Helper()
	raw, ok := body[key].([]any)
	require.True(t, ok, "missing %s in %v", key, body)
	out := make([]map[string]any, len(raw))
	for i, v := range raw {
		out[i] = v.(map[string]any)
	}
	return out
}

func TestHealthReadyMetrics(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	code, body := c.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = c.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
	assert.Contains(t, string(raw), "active_sessions")
}

func TestInsertAndListRecords(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	code, body := c.insert("Acme", "2024-01", "100")
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Acme - 2024-01", body["display_id"])
	assert.Equal(t, "OnTrack", body["project_status"])
	assert.Equal(t, "On Track", body["project_status_display"])
	assert.NotEmpty(t, body["id"])

	code, _ = c.insert("Globex", "2024-02", "50")
	require.Equal(t, http.StatusCreated, code)

	code, body = c.do(http.MethodGet, "/api/records", "", "")
	require.Equal(t, http.StatusOK, code)
	list := records(t, body, "records")
	require.Len(t, list, 2)
	assert.Equal(t, "Acme", list[0]["customer"])
	assert.Equal(t, "Globex", list[1]["customer"])

	code, body = c.do(http.MethodGet, "/api/records?customer=Globex", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, records(t, body, "records"), 1)
}

func TestInsertFormEncoded(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	form := url.Values{
		"customer":       {"Acme"},
		"month":          {"2024-03-15"},
		"consumption":    {"12,5"},
		"project_status": {"AtRisk"},
		"region":         {"canada west"},
	}
	code, body := c.do(http.MethodPost, "/api/records", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "2024-03", body["month"])
	assert.Equal(t, "12.5", body["consumption"])
	assert.Equal(t, "Canada West", body["region"])
}

func TestInsertValidation(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	tests := []struct {
		name        string
		customer    string
		month       string
		consumption string
		field       string
	}{
		{name: "missing customer", customer: "", month: "2024-01", consumption: "1", field: "customer"},
		{name: "negative consumption", customer: "Acme", month: "2024-01", consumption: "-5", field: "consumption"},
		{name: "bad month", customer: "Acme", month: "January", consumption: "1", field: "month"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := c.insert(tt.customer, tt.month, tt.consumption)
			require.Equal(t, http.StatusUnprocessableEntity, code)
			errBody := body["error"].(map[string]any)
			assert.Contains(t, errBody["details"], tt.field)
		})
	}

	code, body := c.insert("   ", "2024-01", "1")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Request validation failed", body["error"].(map[string]any)["message"])

	code, body = c.do(http.MethodGet, "/api/records", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, records(t, body, "records"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAPILogsCarryTrackerComponent(t *testing.T) {
	out := &syncBuffer{}
	logger := log.New(log.Config{Handler: slog.NewTextHandler(out, nil), Component: "test"})
	_, ts := newTestServer(t, Options{Logger: logger})
	c := newClient(t, ts)

	code, _ := c.insert("", "2024-01", "1")
	require.Equal(t, http.StatusUnprocessableEntity, code)

	var line string
	for _, l := range strings.Split(out.String(), "\n") {
		if strings.Contains(l, "Request rejected") {
			line = l
		}
	}
	require.NotEmpty(t, line, out.String())
	assert.Contains(t, line, "component=tracker")
	assert.Equal(t, 1, strings.Count(line, "component="))
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	code, _ := c.do(http.MethodPost, "/api/records", "application/json", `{"customer":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDeleteByDisplayIDAndRecordID(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	_, first := c.insert("Acme", "2024-01", "100")
	c.insert("Acme", "2024-01", "110")
	_, other := c.insert("Acme", "2024-02", "120")

	code, body := c.do(http.MethodDelete, "/api/records", "application/json", `{"ids":["Acme - 2024-01"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["deleted"])

	code, body = c.do(http.MethodDelete, "/api/records", "application/json", `{"ids":["Acme - 2024-01"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["deleted"])

	code, _ = c.do(http.MethodDelete, "/api/records", "application/json", `{"ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = c.do(http.MethodDelete, "/api/records/"+first["id"].(string), "", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = c.do(http.MethodDelete, "/api/records/"+other["id"].(string), "", "")
	assert.Equal(t, http.StatusNoContent, code)

	_, body = c.do(http.MethodGet, "/api/records", "", "")
	assert.Empty(t, records(t, body, "records"))
}

func TestMoMAbsoluteAndPercentage(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	// Inserted out of order; the table is sorted by month
	c.insert("Acme", "2024-03", "120")
	c.insert("Acme", "2024-01", "100")
	c.insert("Acme", "2024-02", "150")

	code, body := c.do(http.MethodGet, "/api/mom", "", "")
	require.Equal(t, http.StatusOK, code)
	rows := records(t, body, "rows")
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"0", "50", "-30"}, []any{rows[0]["change"], rows[1]["change"], rows[2]["change"]})
	assert.Equal(t, "50.00", rows[1]["change_display"])

	code, body = c.do(http.MethodGet, "/api/mom?mode=percentage", "", "")
	require.Equal(t, http.StatusOK, code)
	rows = records(t, body, "rows")
	assert.Equal(t, []any{"0.00%", "50.00%", "-20.00%"},
		[]any{rows[0]["change_display"], rows[1]["change_display"], rows[2]["change_display"]})

	code, _ = c.do(http.MethodGet, "/api/mom?mode=ratio", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestMoMCacheFollowsMutations(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	c.insert("Acme", "2024-01", "100")
	_, body := c.do(http.MethodGet, "/api/mom", "", "")
	assert.Len(t, records(t, body, "rows"), 1)
	_, body = c.do(http.MethodGet, "/api/mom", "", "")
	assert.Len(t, records(t, body, "rows"), 1)
	assert.EqualValues(t, 1, srv.momCache.Stats().Hits)

	c.insert("Acme", "2024-02", "200")
	_, body = c.do(http.MethodGet, "/api/mom", "", "")
	assert.Len(t, records(t, body, "rows"), 2)
}

func TestMoMSeries(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	c.insert("Globex", "2024-01", "10")
	c.insert("Acme", "2024-01", "100")
	c.insert("Acme", "2024-02", "150")

	code, body := c.do(http.MethodGet, "/api/mom/series", "", "")
	require.Equal(t, http.StatusOK, code)
	series := records(t, body, "series")
	require.Len(t, series, 2)
	assert.Equal(t, "Acme", series[0]["customer"])
	assert.Len(t, series[0]["points"], 2)
	assert.Equal(t, "Globex", series[1]["customer"])
}

func TestCompleteCustomerArchives(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	c.insert("Acme Corp", "2024-01", "100")
	c.insert("Globex", "2024-01", "10")
	c.insert("Acme Corp", "2024-02", "150")

	code, body := c.do(http.MethodGet, "/api/customers", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"Acme Corp", "Globex"}, body["customers"])

	code, body = c.do(http.MethodPost, "/api/customers/"+url.PathEscape("Acme Corp")+"/complete", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["archived"])

	code, body = c.do(http.MethodPost, "/api/customers/Nobody/complete", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["archived"])

	_, body = c.do(http.MethodGet, "/api/archive", "", "")
	archived := records(t, body, "records")
	require.Len(t, archived, 2)
	assert.Equal(t, "2024-01", archived[0]["month"])
	assert.Equal(t, "2024-02", archived[1]["month"])

	_, body = c.do(http.MethodGet, "/api/customers", "", "")
	assert.Equal(t, []any{"Globex"}, body["customers"])
}

func TestCompleteCustomerNamesNeedingEscapes(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	for _, name := range []string{"Acme%41", "North/South", "A"} {
		code, _ := c.insert(name, "2024-01", "1")
		require.Equal(t, http.StatusCreated, code)
	}

	// Literal percent sequences are not decoded twice
	code, body := c.do(http.MethodPost, "/api/customers/"+url.PathEscape("Acme%41")+"/complete", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["archived"])

	code, body = c.do(http.MethodPost, "/api/customers/"+url.PathEscape("North/South")+"/complete", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["archived"])

	_, body = c.do(http.MethodGet, "/api/customers", "", "")
	assert.Equal(t, []any{"A"}, body["customers"])
}

func TestSessionsAreIsolated(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	alice := newClient(t, ts)
	bob := newClient(t, ts)

	alice.insert("Acme", "2024-01", "100")

	_, body := bob.do(http.MethodGet, "/api/records", "", "")
	assert.Empty(t, records(t, body, "records"))
	_, body = alice.do(http.MethodGet, "/api/records", "", "")
	assert.Len(t, records(t, body, "records"), 1)
}

func TestEndSessionDiscardsRecords(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	c.insert("Acme", "2024-01", "100")
	code, _ := c.do(http.MethodDelete, "/api/session", "", "")
	require.Equal(t, http.StatusNoContent, code)

	_, body := c.do(http.MethodGet, "/api/records", "", "")
	assert.Empty(t, records(t, body, "records"))
}

func TestMutationsAreRateLimited(t *testing.T) {
	_, ts := newTestServer(t, Options{RateLimitPerMinute: 2})
	c := newClient(t, ts)

	for i := 0; i < 2; i++ {
		code, _ := c.insert("Acme", "2024-01", "1")
		require.Equal(t, http.StatusCreated, code)
	}
	code, _ := c.insert("Acme", "2024-01", "1")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Reads are not limited
	code, _ = c.do(http.MethodGet, "/api/records", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestUnknownRoute(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	c := newClient(t, ts)

	code, _ := c.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = c.do(http.MethodPut, "/api/records", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
