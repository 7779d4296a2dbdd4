package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/jobs"
	"github.com/you/uvian/internal/server"
	"github.com/you/uvian/internal/storage"
	"github.com/you/uvian/internal/ws"
)

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (http.Handler, *jobs.Manager) {
	t.Helper()
	mgr := jobs.NewManager(storage.NewMemStore(), nopQueue{}, bus.NewMemory(), zap.NewNop())
	srv := server.New(mgr, ws.NewHub(zap.NewNop()), zap.NewNop())
	return srv.Routes(), mgr
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: bad response body %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestCreateJob(t *testing.T) {
	h, _ := newTestServer(t)

	rec, body := doJSON(t, h, http.MethodPost, "/jobs", `{"type":"summarize","input":{"docId":"d1"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}
	if body["id"] == "" {
		t.Error("id should be set")
	}
}

func TestCreateJobValidation(t *testing.T) {
	h, _ := newTestServer(t)

	rec, _ := doJSON(t, h, http.MethodPost, "/jobs", `{"input":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing type: status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/jobs", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec, _ := doJSON(t, h, http.MethodGet, "/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelConflicts(t *testing.T) {
	h, mgr := newTestServer(t)
	ctx := context.Background()

	j, _ := mgr.Create(ctx, "echo", nil)
	if _, err := mgr.MarkProcessing(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.MarkCompleted(ctx, j.ID, nil); err != nil {
		t.Fatal(err)
	}

	rec, _ := doJSON(t, h, http.MethodPost, "/jobs/"+j.ID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel completed: status = %d, want 409", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/jobs/missing/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel missing: status = %d, want 404", rec.Code)
	}
}

func TestCancelAndRetryFlow(t *testing.T) {
	h, mgr := newTestServer(t)
	ctx := context.Background()

	j, _ := mgr.Create(ctx, "echo", nil)
	if _, err := mgr.MarkProcessing(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.MarkFailed(ctx, j.ID, "boom"); err != nil {
		t.Fatal(err)
	}

	rec, body := doJSON(t, h, http.MethodPost, "/jobs/"+j.ID+"/retry", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("retry failed job: status = %d", rec.Code)
	}
	if body["status"] != "queued" {
		t.Errorf("status = %v, want queued", body["status"])
	}
	if body["error_message"] != nil {
		t.Errorf("error_message = %v, want null", body["error_message"])
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/jobs/"+j.ID+"/retry", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("retry queued job: status = %d, want 409", rec.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	h, mgr := newTestServer(t)
	ctx := context.Background()

	j, _ := mgr.Create(ctx, "echo", nil)
	if _, err := mgr.MarkProcessing(ctx, j.ID); err != nil {
		t.Fatal(err)
	}

	rec, _ := doJSON(t, h, http.MethodDelete, "/jobs/"+j.ID, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("delete processing: status = %d, want 409", rec.Code)
	}

	if _, err := mgr.MarkCompleted(ctx, j.ID, nil); err != nil {
		t.Fatal(err)
	}
	rec, _ = doJSON(t, h, http.MethodDelete, "/jobs/"+j.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete completed: status = %d, want 204", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/jobs/"+j.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	h, mgr := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := mgr.Create(ctx, "echo", nil); err != nil {
			t.Fatal(err)
		}
	}

	rec, body := doJSON(t, h, http.MethodGet, "/jobs?page=1&limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["total"].(float64) != 5 {
		t.Errorf("total = %v", body["total"])
	}
	if body["hasMore"] != true {
		t.Errorf("hasMore = %v, want true", body["hasMore"])
	}
	if n := len(body["jobs"].([]any)); n != 2 {
		t.Errorf("jobs len = %d, want 2", n)
	}

	rec, body = doJSON(t, h, http.MethodGet, "/jobs?page=3&limit=2", "")
	if body["hasMore"] != false {
		t.Errorf("last page hasMore = %v, want false", body["hasMore"])
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/jobs?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter: status = %d, want 400", rec.Code)
	}
}

func TestJobMetricsEndpoint(t *testing.T) {
	h, mgr := newTestServer(t)
	ctx := context.Background()

	j, _ := mgr.Create(ctx, "echo", nil)
	if _, err := mgr.Cancel(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Create(ctx, "echo", nil); err != nil {
		t.Fatal(err)
	}

	rec, body := doJSON(t, h, http.MethodGet, "/jobs/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["total"].(float64) != 2 {
		t.Errorf("total = %v", body["total"])
	}
	if body["cancelled"].(float64) != 1 {
		t.Errorf("cancelled = %v", body["cancelled"])
	}
	if body["queued"].(float64) != 1 {
		t.Errorf("queued = %v", body["queued"])
	}
}
