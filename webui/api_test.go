package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"srdash/artifacts"
	"srdash/db"
	"srdash/enhance"
	"srdash/pages"
	"srdash/simulation"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// stubEnhancer returns a 4x upscaled PNG for every request.
type stubEnhancer struct {
	mu    sync.Mutex
	image []byte
	err   error
	calls int
}

func (s *stubEnhancer) Enhance(ctx context.Context, u enhance.Upload, scale int) (*enhance.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &enhance.Result{Image: s.image, Scale: scale, ElapsedSeconds: 1.5}, nil
}

func (s *stubEnhancer) SuperResolve(ctx context.Context, u enhance.Upload) (*enhance.Result, error) {
	return s.Enhance(ctx, u, 4)
}

type stubBackend struct{ state enhance.HealthState }

func (b stubBackend) State() enhance.HealthState { return b.state }

type stubHistory struct {
	records []db.StoredEnhancement
	err     error
	page    string
	limit   int
}

func (h *stubHistory) ListEnhancements(ctx context.Context, page string, limit int) ([]db.StoredEnhancement, error) {
	h.page, h.limit = page, limit
	return h.records, h.err
}

func (h *stubHistory) Stats(ctx context.Context) (db.EnhancementStats, error) {
	return db.EnhancementStats{Total: int64(len(h.records))}, h.err
}

type apiFixture struct {
	t        *testing.T
	mux      *http.ServeMux
	manager  *pages.Manager
	store    *artifacts.Store
	enhancer *stubEnhancer
	history  *stubHistory
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		t:        t,
		store:    artifacts.NewStore(0),
		enhancer: &stubEnhancer{image: testPNG(t, 32, 32)},
		history:  &stubHistory{},
	}
	mgr, err := pages.NewManager(pages.Config{
		Pipelines: simulation.DefaultPipelines(),
		Store:     f.store,
		Enhancer:  f.enhancer,
		Clock:     simulation.NewManualClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Seed:      7,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(mgr.Close)
	f.manager = mgr

	api := NewDashboardAPI(DashboardAPIConfig{
		Manager:   mgr,
		Store:     f.store,
		Pipelines: simulation.DefaultPipelines(),
		Backend:   stubBackend{enhance.HealthState{Status: enhance.StatusOnline}},
		History:   f.history,
		Clients:   func() int { return 3 },
	})
	f.mux = http.NewServeMux()
	api.RegisterRoutes(f.mux)
	return f
}

func (f *apiFixture) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(page, name, contentType string, data []byte) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="image"; filename="` + name + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		f.t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return f.do(http.MethodPost, "/api/pages/"+page+"/upload", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandleStatus(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[StatusResponse](t, rec)
	if resp.Health != "ok" || resp.Pages != 4 || resp.Clients != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Backend.Status != enhance.StatusOnline {
		t.Errorf("backend = %v", resp.Backend.Status)
	}
}

func TestHandlePagesAndPipelines(t *testing.T) {
	f := newAPIFixture(t)

	resp := decode[struct {
		Pages []PageSummary `json:"pages"`
		Count int           `json:"count"`
	}](t, f.do(http.MethodGet, "/api/pages", nil, ""))
	if resp.Count != 4 {
		t.Fatalf("count = %d, want 4", resp.Count)
	}
	byName := map[pages.Name]PageSummary{}
	for _, p := range resp.Pages {
		byName[p.Name] = p
	}
	if p := byName[pages.Upload]; p.Simulation || !p.Uploads {
		t.Errorf("upload page = %+v", p)
	}
	if p := byName[pages.ModelPipeline]; !p.Simulation || !p.Uploads {
		t.Errorf("model-pipeline page = %+v", p)
	}
	if p := byName[pages.Training]; !p.Simulation || p.Uploads {
		t.Errorf("training page = %+v", p)
	}

	pl := decode[struct {
		Count int `json:"count"`
	}](t, f.do(http.MethodGet, "/api/pipelines", nil, ""))
	if pl.Count != 3 {
		t.Errorf("pipelines count = %d, want 3", pl.Count)
	}
}

func TestHandlePageUnknown(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/api/pages/nope", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Message != "unknown page: nope" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestHandleSimulationTransitions(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/pages/training/simulation/"

	tests := []struct {
		action string
		want   int
	}{
		{"pause", http.StatusConflict},
		{"start", http.StatusOK},
		{"start", http.StatusConflict},
		{"pause", http.StatusOK},
		{"resume", http.StatusOK},
		{"reset", http.StatusOK},
		{"explode", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := f.do(http.MethodPost, base+tt.action, nil, ""); rec.Code != tt.want {
			t.Errorf("%s status = %d, want %d (%s)", tt.action, rec.Code, tt.want, rec.Body.String())
		}
	}

	if rec := f.do(http.MethodPost, "/api/pages/upload/simulation/start", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("upload page start = %d, want 409", rec.Code)
	}
}

func TestHandleLogs(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(http.MethodPost, "/api/pages/training/simulation/start", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}

	all := decode[LogsResponse](t, f.do(http.MethodGet, "/api/pages/training/logs", nil, ""))
	if all.Count == 0 || all.Count != all.Total {
		t.Fatalf("logs = %+v", all)
	}

	one := decode[LogsResponse](t, f.do(http.MethodGet, "/api/pages/training/logs?limit=1", nil, ""))
	if one.Count != 1 || one.Entries[0].ID != all.Entries[len(all.Entries)-1].ID {
		t.Errorf("limit=1 = %+v, want newest entry", one)
	}

	if rec := f.do(http.MethodDelete, "/api/pages/training/logs", nil, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", rec.Code)
	}
	cleared := decode[LogsResponse](t, f.do(http.MethodGet, "/api/pages/training/logs", nil, ""))
	if cleared.Total != 0 || cleared.Entries == nil {
		t.Errorf("after clear = %+v", cleared)
	}
}

func TestHandlePreviewSeries(t *testing.T) {
	f := newAPIFixture(t)
	if rec := f.do(http.MethodGet, "/api/pages/training/preview-series", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("training preview = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/pages/upload/preview-series", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("upload preview = %d, want 404", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/pages/training/metrics", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestHandleUploadAndProcess(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/api/pages/upload/process", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("process without input = %d, want 400", rec.Code)
	}

	rec = f.upload("upload", "photo.png", "image/png", testPNG(t, 8, 8))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d (%s)", rec.Code, rec.Body.String())
	}
	input := decode[artifacts.Artifact](t, rec)
	if input.Width != 8 || input.Height != 8 {
		t.Errorf("input artifact = %+v", input)
	}

	if rec := f.do(http.MethodPost, "/api/pages/upload/process?scale=3", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("scale=3 = %d, want 400", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/pages/upload/process?scale=x", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("scale=x = %d, want 400", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/pages/upload/process?scale=2", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process = %d (%s)", rec.Code, rec.Body.String())
	}
	task := decode[pages.UploadTask](t, rec)
	if task.Status != pages.TaskPending || task.Scale != 2 || task.Endpoint != pages.EndpointEnhance {
		t.Errorf("task = %+v", task)
	}

	ws, _ := f.manager.Get(pages.Upload)
	ws.Wait()

	state := decode[pages.State](t, f.do(http.MethodGet, "/api/pages/upload", nil, ""))
	if state.Task == nil || state.Task.Status != pages.TaskResolved {
		t.Fatalf("task after settle = %+v", state.Task)
	}
	if state.Output == nil {
		t.Fatal("no output artifact")
	}

	rec = f.do(http.MethodGet, "/api/artifacts/"+state.Output.ID, nil, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("artifact = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = f.do(http.MethodGet, "/api/artifacts/"+state.Output.ID+"?thumb=8", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("thumb = %d", rec.Code)
	}
	thumb, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("thumb is not a PNG: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() > 8 || b.Dy() > 8 {
		t.Errorf("thumb bounds = %v", b)
	}

	if rec := f.do(http.MethodGet, "/api/artifacts/"+state.Output.ID+"?thumb=-1", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("thumb=-1 = %d, want 400", rec.Code)
	}

	if rec := f.do(http.MethodDelete, "/api/pages/upload/upload", nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("clear upload = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/artifacts/"+state.Output.ID, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("released artifact = %d, want 404", rec.Code)
	}
}

func TestHandleUploadRejections(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.upload("upload", "notes.txt", "text/plain", []byte("hello"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("text upload = %d, want 422", rec.Code)
	}
	if resp := decode[ErrorResponse](t, rec); resp.Message != enhance.MsgUnsupportedType {
		t.Errorf("message = %q", resp.Message)
	}

	rec = f.do(http.MethodPost, "/api/pages/upload/upload", bytes.NewBufferString("x"), "text/plain")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", rec.Code)
	}

	rec = f.upload("training", "photo.png", "image/png", testPNG(t, 4, 4))
	if rec.Code != http.StatusConflict {
		t.Errorf("upload to training = %d, want 409", rec.Code)
	}
}

func TestHandleProcessFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.enhancer.err = &enhance.RequestError{Message: "Server error: 500"}

	if rec := f.upload("model-pipeline", "in.png", "image/png", testPNG(t, 8, 8)); rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/pages/model-pipeline/process", nil, ""); rec.Code != http.StatusAccepted {
		t.Fatalf("process = %d", rec.Code)
	}
	ws, _ := f.manager.Get(pages.ModelPipeline)
	ws.Wait()

	state := decode[pages.State](t, f.do(http.MethodGet, "/api/pages/model-pipeline", nil, ""))
	if state.Task == nil || state.Task.Status != pages.TaskRejected {
		t.Errorf("task = %+v", state.Task)
	}
	if state.Error == "" {
		t.Error("expected inline error")
	}
}

func TestHandleEnhancements(t *testing.T) {
	f := newAPIFixture(t)
	f.history.records = []db.StoredEnhancement{{ID: 1}, {ID: 2}}

	rec := f.do(http.MethodGet, "/api/enhancements?page=upload&limit=1000", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[EnhancementsResponse](t, rec)
	if resp.Count != 2 || resp.Stats.Total != 2 || resp.Limit != 500 {
		t.Errorf("resp = %+v", resp)
	}
	if f.history.page != "upload" || f.history.limit != 500 {
		t.Errorf("query = page %q limit %d", f.history.page, f.history.limit)
	}

	f.history.err = errors.New("disk on fire")
	if rec := f.do(http.MethodGet, "/api/enhancements", nil, ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failing history = %d, want 500", rec.Code)
	}
}

func TestHandleEnhancementsDisabled(t *testing.T) {
	mgr, err := pages.NewManager(pages.Config{Pipelines: simulation.DefaultPipelines()})
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	mux := http.NewServeMux()
	NewDashboardAPI(DashboardAPIConfig{Manager: mgr, Store: artifacts.NewStore(0)}).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/enhancements", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{simulation.ErrAlreadyRunning, http.StatusConflict},
		{pages.ErrTaskPending, http.StatusConflict},
		{pages.ErrNoPreview, http.StatusNotFound},
		{pages.ErrNoInput, http.StatusBadRequest},
		{enhance.ErrInvalidScale, http.StatusBadRequest},
		{&enhance.ValidationError{Field: "image", Message: "bad"}, http.StatusUnprocessableEntity},
		{artifacts.ErrBudgetExceeded, http.StatusInsufficientStorage},
		{pages.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query  string
		want   int
		wantOK bool
	}{
		{"", 50, false},
		{"?limit=10", 10, true},
		{"?limit=0", 50, false},
		{"?limit=abc", 50, false},
		{"?limit=9999", 500, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/enhancements"+tt.query, nil)
		got, ok := parseLimit(r, 50, 500)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseLimit(%q) = %d, %v; want %d, %v", tt.query, got, ok, tt.want, tt.wantOK)
		}
	}
}
