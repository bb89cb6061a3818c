package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/starford/casebook/internal/calendar"
	"github.com/starford/casebook/internal/pipeline"
	"github.com/starford/casebook/internal/resolver"
	"github.com/starford/casebook/internal/store"
	"github.com/starford/casebook/internal/testutil"
)

var t0 = time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)

// testEnv sets up a temp SQLite DB, an engine over a memory calendar, and
// the router. An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string, opts ...pipeline.Option) (*store.DB, *calendar.Memory, http.Handler) {
	t.Helper()
	db := testutil.TestDB(t)
	cal := calendar.NewMemory()
	e, err := pipeline.New(db, testutil.Logger(), append([]pipeline.Option{pipeline.WithCalendar(cal)}, opts...)...)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	router := NewRouter(e, testutil.Tenant, authToken != "", authToken, nil)
	return db, cal, router
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSyncCalendar(t *testing.T) {
	db, cal, router := testEnv(t, "")
	testutil.SeedClient(t, db, "c-chris", "Christopher Balabanick", t0)
	cal.Add(
		calendar.Event{ExternalID: "g1", Title: "Chris Balabanick Appointment", Start: time.Date(2024, 4, 17, 14, 0, 0, 0, time.UTC)},
		calendar.Event{ExternalID: "g2", Title: "Chris Balabanick", Start: time.Date(2024, 5, 2, 14, 0, 0, 0, time.UTC)},
	)

	w := do(t, router, http.MethodPost, "/calendar/sync", SyncRequest{From: "2024-04-01", To: "2024-04-30"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rep pipeline.SyncReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Synced != 1 || rep.Created != 0 {
		t.Errorf("report = %+v", rep)
	}

	// No body syncs everything the provider has.
	w = do(t, router, http.MethodPost, "/calendar/sync", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if w.Code != http.StatusOK || rep.Synced != 1 || rep.Duplicates != 1 {
		t.Errorf("status = %d, report = %+v", w.Code, rep)
	}
}

func TestSyncCalendar_BadRequest(t *testing.T) {
	_, _, router := testEnv(t, "")
	for _, body := range []any{
		SyncRequest{From: "17/04/2024"},
		map[string]string{"since": "2024-01-01"},
	} {
		if w := do(t, router, http.MethodPost, "/calendar/sync", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %+v: status = %d", body, w.Code)
		}
	}
	if w := do(t, router, http.MethodPost, "/calendar/sync", SyncRequest{From: "2024-05-01", To: "2024-04-01"}); w.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d", w.Code)
	}
}

type downCalendar struct{}

func (downCalendar) ListEvents(context.Context, calendar.DateRange) ([]calendar.Event, error) {
	return nil, errors.New("provider timeout")
}

func TestSyncCalendar_SystemicFailureIs503(t *testing.T) {
	_, _, router := testEnv(t, "", pipeline.WithCalendar(downCalendar{}))
	w := do(t, router, http.MethodPost, "/calendar/sync", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestBatchReviewAndContent(t *testing.T) {
	db, _, router := testEnv(t, "")
	testutil.SeedClient(t, db, "c-john", "John Best", t0)
	testutil.SeedSession(t, db, "s-dec5", "c-john", time.Date(2024, 12, 5, 15, 0, 0, 0, time.UTC), t0)

	w := do(t, router, http.MethodPost, "/batches", BatchRequest{Items: []BatchItem{
		{ID: "a", Name: "John Best 12-5-2024.md", Text: "Client was engaged today.\n"},
		{ID: "b", Name: "intake.txt", Text: "Client: John Best\nDate: 2024-11-20\n"},
		{ID: "c", Name: "oops.md", Text: "x", Kind: "invoice"},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rep pipeline.BatchReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Processed != 2 || rep.Linked != 1 || rep.Failed != 1 || rep.Errors[0].Item != "c" {
		t.Fatalf("report = %+v", rep)
	}

	w = do(t, router, http.MethodGet, "/review", nil)
	var review ReviewResponse
	_ = json.Unmarshal(w.Body.Bytes(), &review)
	if w.Code != http.StatusOK || review.Total != 1 || review.Records[0].Source != "intake.txt" {
		t.Errorf("review = %+v", review)
	}

	var linkedID string
	for _, r := range rep.Results {
		if r.Item == "a" {
			linkedID = r.RecordID
		}
	}
	w = do(t, router, http.MethodGet, "/records/"+linkedID+"/content", nil)
	var c ContentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &c)
	if w.Code != http.StatusOK || !c.Available || c.Text != "Client was engaged today.\n" {
		t.Errorf("content = %d %+v", w.Code, c)
	}

	if w := do(t, router, http.MethodGet, "/records/nope/content", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing record: status = %d", w.Code)
	}
}

func TestProcessBatch_Validation(t *testing.T) {
	_, _, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/batches", BatchRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status = %d", w.Code)
	}
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	body := BatchRequest{Items: []BatchItem{{Name: "a.md", Text: "t", ClientName: string(long)}}}
	if w := do(t, router, http.MethodPost, "/batches", body); w.Code != http.StatusBadRequest {
		t.Errorf("long client name: status = %d", w.Code)
	}
}

func TestLinkOrphans(t *testing.T) {
	_, _, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/reconcile/orphans", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestResolveName(t *testing.T) {
	db, _, router := testEnv(t, "")
	testutil.SeedClient(t, db, "c-smith", "Christopher Smith", t0)

	w := do(t, router, http.MethodGet, "/resolve?name="+url.QueryEscape("Chris Smith"), nil)
	var res resolver.Resolution
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusOK || res.Outcome != resolver.Matched || res.ClientID != "c-smith" {
		t.Errorf("resolution = %d %+v", w.Code, res)
	}
	if w := do(t, router, http.MethodGet, "/resolve", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d", w.Code)
	}
}

func TestTenantHeader(t *testing.T) {
	db, _, router := testEnv(t, "")
	testutil.SeedClient(t, db, "c-smith", "Christopher Smith", t0)

	req := httptest.NewRequest(http.MethodGet, "/resolve?name="+url.QueryEscape("Chris Smith"), nil)
	req.Header.Set(TenantHeader, "someone-else")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var res resolver.Resolution
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Outcome != resolver.Created {
		t.Errorf("other tenant sees client: %+v", res)
	}
}

func TestAuth_TokenMode(t *testing.T) {
	_, _, router := testEnv(t, "secret")

	if w := do(t, router, http.MethodGet, "/review", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", w.Code)
	}
}
