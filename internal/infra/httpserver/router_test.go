package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appsentiment "github.com/Djamsy/veille-uptade-sub000/internal/application/sentiment"
	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
	"github.com/Djamsy/veille-uptade-sub000/internal/infra/db/memory"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	return fmt.Sprintf(`{"sentiment":"neutre","score":0,"summary":%q}`, text), nil
}

func newTestRouter() (http.Handler, *memory.Cache, *memory.Queue) {
	cache := memory.NewCache()
	queue := memory.NewQueue()
	svc := &appsentiment.Service{
		Cache:    cache,
		Queue:    queue,
		Analyzer: stubAnalyzer{},
		Clock:    stubClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
	}
	return NewRouter(svc, Options{}), cache, queue
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAsyncSubmitAndPoll(t *testing.T) {
	h, cache, queue := newTestRouter()

	rec := postJSON(t, h, "/sentiment/async", `{"text":"Guy Losbar annonce un budget"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sentiment/async = %d: %s", rec.Code, rec.Body)
	}
	var submit struct {
		TaskID string          `json:"task_id"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &submit); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submit.Status != "pending" {
		t.Errorf("status = %s, want pending", submit.Status)
	}
	if len(submit.Result) != 0 {
		t.Errorf("result present on non-cached submit: %s", submit.Result)
	}

	rec = get(t, h, "/sentiment/status/"+submit.TaskID)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d: %s", rec.Code, rec.Body)
	}
	var poll struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &poll); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if poll.Status.Status != "pending" && poll.Status.Status != "in_progress" {
		t.Errorf("poll status = %s", poll.Status.Status)
	}

	// Simulate worker completion, then poll again.
	ctx := context.Background()
	payload := `{"sentiment":"positif","score":0.5}`
	queue.ClaimNext(ctx)
	cache.Put(ctx, &domain.CacheEntry{Fingerprint: submit.TaskID, Result: payload, ComputedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)})
	queue.MarkDone(ctx, submit.TaskID, payload, "")

	rec = get(t, h, "/sentiment/status/"+submit.TaskID)
	var donePoll struct {
		Status struct {
			Status string          `json:"status"`
			Result json.RawMessage `json:"result"`
		} `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &donePoll); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if donePoll.Status.Status != "done" {
		t.Errorf("status after completion = %s, want done", donePoll.Status.Status)
	}
	if string(donePoll.Status.Result) != payload {
		t.Errorf("result = %s, want %s", donePoll.Status.Result, payload)
	}

	// The result endpoint serves the payload too.
	rec = get(t, h, "/sentiment/result/"+submit.TaskID)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET result = %d: %s", rec.Code, rec.Body)
	}

	// Re-submitting the same text now reports cached with the payload inline.
	rec = postJSON(t, h, "/sentiment/async", `{"text":"Guy Losbar annonce un budget"}`)
	if err := json.Unmarshal(rec.Body.Bytes(), &submit); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submit.Status != "cached" {
		t.Errorf("re-submit status = %s, want cached", submit.Status)
	}
	if string(submit.Result) != payload {
		t.Errorf("re-submit result = %s, want %s", submit.Result, payload)
	}
}

func TestSyncAnalyze(t *testing.T) {
	h, _, _ := newTestRouter()

	rec := postJSON(t, h, "/sentiment", `{"text":"inauguration du mémorial"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /sentiment = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "done" || len(resp.Result) == 0 {
		t.Errorf("sync response = %+v, want done with result", resp)
	}
}

func TestEmptyTextRejected(t *testing.T) {
	h, _, queue := newTestRouter()

	for _, path := range []string{"/sentiment", "/sentiment/async"} {
		rec := postJSON(t, h, path, `{"text":""}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s with empty text = %d, want 400", path, rec.Code)
		}
	}
	rec := postJSON(t, h, "/sentiment/async", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}

	// No queue entries were created along the way.
	if job, _ := queue.ClaimNext(context.Background()); job != nil {
		t.Errorf("rejected request created a job: %+v", job)
	}
}

func TestResultUnavailable(t *testing.T) {
	h, _, _ := newTestRouter()

	rec := get(t, h, "/sentiment/result/ffffffffffffffffffffffffffffffff")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET unknown result = %d, want 404", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "Résultat non disponible" {
		t.Errorf("body = %q, want %q", got, "Résultat non disponible")
	}
}

func TestStatusUnknownTask(t *testing.T) {
	h, _, _ := newTestRouter()

	rec := get(t, h, "/sentiment/status/ffffffffffffffffffffffffffffffff")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown status = %d, want 404", rec.Code)
	}

	rec = get(t, h, "/sentiment/status/not-a-valid-ref")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET malformed task id = %d, want 400", rec.Code)
	}
}

func TestAnalysesAndSummaryEndpoints(t *testing.T) {
	h, cache, _ := newTestRouter()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	cache.Put(ctx, &domain.CacheEntry{Fingerprint: "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1", Label: domain.LabelPositive, Result: `{"sentiment":"positif"}`, ComputedAt: now})
	cache.Put(ctx, &domain.CacheEntry{Fingerprint: "b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2", Label: domain.LabelNegative, Result: `{"sentiment":"négatif"}`, ComputedAt: now.Add(-time.Hour)})

	rec := get(t, h, "/sentiment/analyses?page=1&page_size=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET analyses = %d: %s", rec.Code, rec.Body)
	}
	var page struct {
		Data  []json.RawMessage `json:"data"`
		Total int64             `json:"totalItems"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || len(page.Data) != 2 {
		t.Errorf("analyses page = total %d, %d rows; want 2/2", page.Total, len(page.Data))
	}

	rec = get(t, h, "/sentiment/summary?days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET summary = %d: %s", rec.Code, rec.Body)
	}
	var sum domain.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 2 || sum.Positive != 1 || sum.Negative != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _, _ := newTestRouter()

	for _, path := range []string{"/health", "/ready", "/live"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestAPIKeyAuth(t *testing.T) {
	cache := memory.NewCache()
	queue := memory.NewQueue()
	svc := &appsentiment.Service{
		Cache:    cache,
		Queue:    queue,
		Analyzer: stubAnalyzer{},
		Clock:    stubClock{now: time.Now()},
	}
	h := NewRouter(svc, Options{APIKeys: []string{"sekret"}})

	rec := postJSON(t, h, "/sentiment/async", `{"text":"coucou"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/sentiment/async", strings.NewReader(`{"text":"coucou"}`))
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key = %d, want 200", rec.Code)
	}

	// Probes stay reachable without credentials.
	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Errorf("GET /health with auth enabled = %d, want 200", rec.Code)
	}
}
