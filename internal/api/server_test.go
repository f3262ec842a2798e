package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/fsutil"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/testutil"
	"github.com/jaynair0405/sub-spm/internal/timeutil"
)

type testServer struct {
	*Server
	db      *db.DB
	files   *fsutil.MemoryFileSystem
	handler http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := db.OpenDB(copyTemplateDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	store.SetClock(clock)

	m := corridor.NewManager(testutil.ReferenceDir(t))
	require.NoError(t, m.LoadAll())
	a := analysis.NewAnalyzer(m, nil)
	a.SetClock(clock)

	files := fsutil.NewMemoryFileSystem()
	s := NewServer(store, a,
		WithArchive(fsutil.NewArchive(files, "/uploads")),
		WithClock(clock),
		WithCORSOrigins([]string{"https://spm.example"}),
	)
	return &testServer{Server: s, db: store, files: files, handler: s.Router()}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(path string) *httptest.ResponseRecorder {
	return ts.do(testutil.NewTestRequest(http.MethodGet, path))
}

// uploadRequest builds a multipart POST /api/runs. An empty body leaves the
// file part out.
func uploadRequest(t *testing.T, body string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if body != "" {
		fw, err := mw.CreateFormFile("file", "97002 run.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func journeyFields() map[string]string {
	return map[string]string{"train_number": testutil.TrainNumber, "staff_id": "LP-42", "notes": "peak"}
}

type uploaded struct {
	RunID      string                   `json:"run_id"`
	Corridor   *corridor.Info           `json:"corridor_info"`
	Ordered    []string                 `json:"ordered_stations"`
	Warnings   []string                 `json:"warnings"`
	Trace      []monitoring.TraceEvent  `json:"trace"`
	Summary    analysis.Summary         `json:"summary"`
	Markers    []analysis.StationMarker `json:"station_markers"`
	Violations json.RawMessage          `json:"violations_summary"`
}

func (ts *testServer) upload(t *testing.T, fields map[string]string) uploaded {
	t.Helper()
	w := ts.do(uploadRequest(t, testutil.JourneyCSV(), fields))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var got uploaded
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	w := ts.get("/health")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, 1.0, body["corridors"])
	assert.Equal(t, "2026-03-02T12:00:00Z", body["timestamp"])

	ts.db.Close()
	w = ts.get("/health")
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
	assert.Equal(t, "disconnected", decode[map[string]any](t, w)["database"])
}

func TestUploadRun(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	got := ts.upload(t, journeyFields())

	assert.Len(t, got.RunID, 36)
	require.NotNil(t, got.Corridor)
	assert.Equal(t, "UPSLOWLOCALS", got.Corridor.Corridor)
	assert.Equal(t, []string{"A", "B", "C"}, got.Ordered)
	assert.Empty(t, got.Warnings)
	assert.Empty(t, got.Trace, "trace is only kept with debug=1")
	assert.Equal(t, 3, got.Summary.MatchedHalts)
	assert.Len(t, got.Markers, 3)
	assert.Equal(t, 1, ts.files.Len(), "upload archived")

	run, err := ts.db.GetRun(context.Background(), got.RunID)
	require.NoError(t, err)
	assert.Equal(t, "97002_run.csv", run.Filename)
	assert.Equal(t, "LP-42", run.StaffID)
	assert.Equal(t, "peak", run.Notes)
}

func TestUploadRun_Debug(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	fields := journeyFields()
	fields["debug"] = "1"
	got := ts.upload(t, fields)
	assert.NotEmpty(t, got.Trace)
}

func TestUploadRun_Duplicate(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	first := ts.upload(t, journeyFields())

	w := ts.do(uploadRequest(t, testutil.JourneyCSV(), journeyFields()))
	testutil.AssertStatusCode(t, w.Code, http.StatusConflict)
	body := decode[map[string]string](t, w)
	assert.Equal(t, first.RunID, body["run_id"])
	assert.Contains(t, body["error"], "already stored")

	fields := journeyFields()
	fields["replace"] = "true"
	second := ts.upload(t, fields)
	assert.NotEqual(t, first.RunID, second.RunID)

	testutil.AssertStatusCode(t, ts.get("/api/runs/"+first.RunID).Code, http.StatusNotFound)
	assert.Equal(t, 1, ts.files.Len(), "the replaced upload is removed")

	runs, err := ts.db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestUploadRun_WithoutTrainSkipsDuplicateCheck(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	a := ts.upload(t, nil)
	b := ts.upload(t, nil)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Nil(t, a.Corridor)
	assert.NotEmpty(t, a.Warnings)
}

func TestUploadRun_Errors(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantErr    string
	}{
		{"not multipart", httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader("x")), http.StatusBadRequest, "invalid multipart form"},
		{"missing file", uploadRequest(t, "", journeyFields()), http.StatusBadRequest, "missing file"},
		{"missing columns", uploadRequest(t, "foo,bar\n1,2\n", nil), http.StatusBadRequest, "missing required columns"},
		{"no usable rows", uploadRequest(t, "Date,Time,Speed,Distance\n2026-03-02,10:00:00,x,y\n", nil), http.StatusUnprocessableEntity, "no valid samples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.req)
			testutil.AssertStatusCode(t, w.Code, tt.wantStatus)
			assert.Contains(t, decode[map[string]string](t, w)["error"], tt.wantErr)
		})
	}
	assert.Zero(t, ts.files.Len())
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	id := ts.upload(t, journeyFields()).RunID

	w := ts.get("/api/runs")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	runs := decode[[]db.Run](t, w)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "2026-03-02", runs[0].RunDate)

	testutil.AssertStatusCode(t, ts.get("/api/runs?limit=0").Code, http.StatusBadRequest)

	w = ts.get("/api/runs/" + id)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	detail := decode[db.RunDetail](t, w)
	assert.Equal(t, "UPSLOWLOCALS", detail.Corridor)
	require.Len(t, detail.StationWindows, 1)
	assert.Equal(t, "B", detail.StationWindows[0].Station)

	w = ts.get("/api/runs/" + id + "/points")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	points := decode[[]db.Point](t, w)
	assert.Equal(t, detail.Rows, len(points))

	w = ts.do(testutil.NewTestRequest(http.MethodDelete, "/api/runs/"+id))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, id, decode[map[string]string](t, w)["deleted"])
	assert.Zero(t, ts.files.Len())

	for _, path := range []string{"/api/runs/" + id, "/api/runs/" + id + "/points", "/api/runs/" + id + "/chart"} {
		testutil.AssertStatusCode(t, ts.get(path).Code, http.StatusNotFound)
	}
	testutil.AssertStatusCode(t, ts.do(testutil.NewTestRequest(http.MethodDelete, "/api/runs/"+id)).Code, http.StatusNotFound)
}

func TestRunChart(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	id := ts.upload(t, journeyFields()).RunID

	w := ts.get("/api/runs/" + id + "/chart")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "SPM run 97002 A to C")
}

func TestRunSource(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	id := ts.upload(t, journeyFields()).RunID

	w := ts.get("/api/runs/" + id + "/source")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, testutil.JourneyCSV(), w.Body.String())
	assert.Equal(t, `attachment; filename="97002_run.csv"`, w.Header().Get("Content-Disposition"))

	bare := NewServer(ts.db, ts.analyzer).Router()
	rec := httptest.NewRecorder()
	bare.ServeHTTP(rec, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+id+"/source"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestCorridors(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	w := ts.get("/api/corridors")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	got := decode[[]corridor.Summary](t, w)
	assert.Equal(t, []corridor.Summary{{Name: "UPSLOWLOCALS", StationCount: 3, RecordCount: 1, First: "A", Last: "C"}}, got)
}

func TestTrainInfo(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	tests := []struct {
		train        string
		wantStatus   int
		wantCorridor string
		wantLoaded   bool
	}{
		{"97002", http.StatusOK, "UPSLOWLOCALS", true},
		{"97 001", http.StatusOK, "", false},
		{"12345", http.StatusNotFound, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.train, func(t *testing.T) {
			w := ts.get("/api/trains/" + strings.ReplaceAll(tt.train, " ", "%20") + "/info")
			testutil.AssertStatusCode(t, w.Code, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[trainInfoResponse](t, w)
			assert.Equal(t, strings.ReplaceAll(tt.train, " ", ""), got.TrainNumber)
			assert.Equal(t, tt.wantLoaded, got.CorridorLoaded)
			if tt.wantCorridor != "" {
				require.NotNil(t, got.Corridor)
				assert.Equal(t, tt.wantCorridor, got.Corridor.Corridor)
			}
		})
	}
}

func TestStationBraking(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	id := ts.upload(t, journeyFields()).RunID

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 1},
		{"?direction=up&from=2026-03-01&to=2026-03-02", http.StatusOK, 1},
		{"?direction=DN", http.StatusOK, 0},
		{"?from=2026-03-03", http.StatusOK, 0},
		{"?from=03/02/2026", http.StatusBadRequest, 0},
		{"?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("query %q", tt.query), func(t *testing.T) {
			w := ts.get("/api/stations/b/braking" + tt.query)
			testutil.AssertStatusCode(t, w.Code, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[[]db.BrakingRecord](t, w)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, id, got[0].RunID)
				assert.Equal(t, 60.0, got[0].EntrySpeed)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	ts := setupTestServer(t)
	req := testutil.NewTestRequest(http.MethodOptions, "/api/runs")
	req.Header.Set("Origin", "https://spm.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := ts.do(req)
	assert.Equal(t, "https://spm.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = testutil.NewTestRequest(http.MethodGet, "/health")
	req.Header.Set("Origin", "https://elsewhere.example")
	w = ts.do(req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddleware(t *testing.T) {
	// Swaps the package logger; not parallel.
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	h := LoggingMiddleware(clock)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(1500 * time.Microsecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), testutil.NewTestRequest(http.MethodGet, "/api/runs?limit=5"))

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], statusCodeColor(http.StatusTeapot))
	assert.Contains(t, lines[0], "GET")
	assert.Contains(t, lines[0], "/api/runs?limit=5")
	assert.Contains(t, lines[0], "1.5ms")
}

func TestStatusCodeColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeColor(tt.code))
	}
}
