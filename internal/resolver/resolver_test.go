package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

type memClients struct {
	mu      sync.Mutex
	clients map[string]models.Client
	creates int
}

func newMemClients() *memClients {
	return &memClients{clients: make(map[string]models.Client)}
}

func (m *memClients) CreateClient(_ context.Context, c *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; ok {
		return fmt.Errorf("duplicate id %s", c.ID)
	}
	m.clients[c.ID] = *c
	m.creates++
	return nil
}

func (m *memClients) GetClient(_ context.Context, _, id string) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var base = time.Date(2023, 1, 1, 9, 0, 0, 0, time.UTC)

func client(id, name string, createdOffset int) models.Client {
	return models.Client{
		ID:             id,
		TenantID:       "t1",
		DisplayName:    name,
		NormalizedName: models.NormalizeName(name),
		Status:         models.ClientActive,
		CreatedAt:      base.Add(time.Duration(createdOffset) * time.Hour),
	}
}

func deleted(c models.Client) models.Client {
	at := c.CreatedAt.Add(time.Hour)
	c.Status = models.ClientDeleted
	c.DeletedAt = &at
	return c
}

func TestResolve_ExactMatch(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", []models.Client{client("c1", "John Best", 0)}, nil)

	res, err := r.Resolve(context.Background(), idx, "  john   BEST ", models.ProvenanceCalendarImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Matched || res.ClientID != "c1" || res.Via != "exact" {
		t.Errorf("res = %+v", res)
	}
	if store.creates != 0 {
		t.Errorf("creates = %d, want 0", store.creates)
	}
}

func TestResolve_NicknameEquivalence(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", []models.Client{client("c1", "Christopher Smith", 0)}, nil)

	res, err := r.Resolve(context.Background(), idx, "Chris Smith", models.ProvenanceCalendarImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Matched || res.ClientID != "c1" || res.Via != "nickname" {
		t.Errorf("res = %+v", res)
	}
	if store.creates != 0 {
		t.Error("nickname match must not create a client")
	}

	// And the other direction.
	idx = NewIndex("t1", []models.Client{client("c2", "Chris Balabanick", 0)}, nil)
	res, _ = r.Resolve(context.Background(), idx, "Christopher Balabanick", models.ProvenanceCalendarImport)
	if res.Outcome != Matched || res.ClientID != "c2" {
		t.Errorf("reverse direction res = %+v", res)
	}
}

func TestResolve_NicknameNeedsSameSurname(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", []models.Client{client("c1", "Christopher Smith", 0)}, nil)

	res, err := r.Resolve(context.Background(), idx, "Chris Jones", models.ProvenanceCalendarImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Created {
		t.Errorf("outcome = %s, want created", res.Outcome)
	}
}

func TestResolve_DeletedClientIsSkipped(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", []models.Client{deleted(client("c1", "Christopher Smith", 0))}, nil)

	for _, name := range []string{"Christopher Smith", "Chris Smith"} {
		res, err := r.Resolve(context.Background(), idx, name, models.ProvenanceCalendarImport)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if res.Outcome != Skipped || res.ClientID != "c1" {
			t.Errorf("Resolve(%q) = %+v, want skipped c1", name, res)
		}
		if res.Linkable() {
			t.Errorf("skipped resolution must not be linkable")
		}
	}
	if store.creates != 0 {
		t.Errorf("deleted client resurrected: %d creates", store.creates)
	}
}

func TestResolve_ActiveWinsOverDeletedNamesake(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", []models.Client{
		deleted(client("old", "John Best", 0)),
		client("new", "John Best", 5),
	}, nil)

	res, _ := r.Resolve(context.Background(), idx, "John Best", models.ProvenanceCalendarImport)
	if res.Outcome != Matched || res.ClientID != "new" {
		t.Errorf("res = %+v, want matched new", res)
	}
}

func TestResolve_Ignored(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", nil, nil)

	for _, raw := range []string{"", "   ", "Lunch", "Staff Meeting", "Reminder: renew license", "Christmas Day", "OOO", "12:30", "Thanksgiving"} {
		res, err := r.Resolve(context.Background(), idx, raw, models.ProvenanceCalendarImport)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", raw, err)
		}
		if res.Outcome != Ignored {
			t.Errorf("Resolve(%q) = %s, want ignored", raw, res.Outcome)
		}
	}
	if store.creates != 0 || idx.Len() != 0 {
		t.Error("ignored names must not create clients")
	}
}

func TestResolve_CreatesOnceAndIsDeterministic(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", nil, nil)

	res, err := r.Resolve(context.Background(), idx, "maria garcia", models.ProvenanceDocumentImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Created || res.ClientID == "" {
		t.Fatalf("res = %+v", res)
	}
	c := store.clients[res.ClientID]
	if c.DisplayName != "Maria Garcia" || c.Provenance != models.ProvenanceDocumentImport || c.Status != models.ClientActive {
		t.Errorf("created client = %+v", c)
	}

	// Same name, same (empty) snapshot: same variant and id.
	other := NewIndex("t1", nil, nil)
	again, err := New(newMemClients(), testLogger()).Resolve(context.Background(), other, "Maria Garcia", models.ProvenanceDocumentImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if again.Outcome != Created || again.ClientID != res.ClientID {
		t.Errorf("not deterministic: %+v vs %+v", again, res)
	}

	// Second resolution against the updated snapshot matches.
	second, _ := r.Resolve(context.Background(), idx, "Maria Garcia", models.ProvenanceDocumentImport)
	if second.Outcome != Matched || second.ClientID != res.ClientID {
		t.Errorf("second = %+v", second)
	}
}

func TestResolve_AdoptsClientMissingFromSnapshot(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())

	first, _ := r.Resolve(context.Background(), NewIndex("t1", nil, nil), "Maria Garcia", models.ProvenanceDocumentImport)

	// A stale snapshot that does not know about the created client.
	stale := NewIndex("t1", nil, nil)
	res, err := r.Resolve(context.Background(), stale, "Maria Garcia", models.ProvenanceDocumentImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Matched || res.ClientID != first.ClientID {
		t.Errorf("res = %+v, want matched %s", res, first.ClientID)
	}
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}
}

func TestResolve_ConcurrentEquivalentNamesCreateOneClient(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", nil, nil)

	names := []string{"Chris Smith", "Christopher Smith", "chris smith", "CHRISTOPHER SMITH"}
	var wg sync.WaitGroup
	results := make([]Resolution, 40)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), idx, names[i%len(names)], models.ProvenanceCalendarImport)
			if err != nil {
				t.Errorf("Resolve: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if store.creates != 1 {
		t.Fatalf("creates = %d, want exactly 1", store.creates)
	}
	for _, res := range results {
		if res.ClientID != results[0].ClientID {
			t.Fatalf("workers resolved to different clients: %+v vs %+v", res, results[0])
		}
	}
}

func TestLookup_DoesNotMutate(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", nil, nil)

	res := r.Lookup(idx, "New Person")
	if res.Outcome != Created || res.ClientID != "" {
		t.Errorf("res = %+v", res)
	}
	if store.creates != 0 || idx.Len() != 0 {
		t.Error("Lookup mutated state")
	}
}

func TestNicknames_KeysAreSymmetric(t *testing.T) {
	n := DefaultNicknames
	a := n.Keys("chris smith")
	b := n.Keys("christopher smith")
	shared := false
	for _, x := range a {
		for _, y := range b {
			if x == y {
				shared = true
			}
		}
	}
	if !shared {
		t.Errorf("no shared key: %v vs %v", a, b)
	}
	if got := n.Keys("zyx smith"); len(got) != 1 || got[0] != "zyx smith" {
		t.Errorf("unknown first name keys = %v", got)
	}
}

func TestBlacklist_Extra(t *testing.T) {
	b, err := NewBlacklist(`\bgroup\b`)
	if err != nil {
		t.Fatalf("NewBlacklist: %v", err)
	}
	if b.Match("Tuesday Group") == "" {
		t.Error("extra pattern not applied")
	}
	if b.Match("John Best") != "" {
		t.Error("client name blacklisted")
	}
	if _, err := NewBlacklist(`(`); err == nil {
		t.Error("invalid pattern should fail")
	}
}

func TestBlacklist_SurnamesThatAreAlsoTitles(t *testing.T) {
	b, err := NewBlacklist()
	if err != nil {
		t.Fatalf("NewBlacklist: %v", err)
	}
	for _, name := range []string{"Holly Christmas", "Mary Easter", "John Doctor", "Anna Leave", "Sam Hold", "Ava Break", "Tom Coffee", "Eid Hassan"} {
		if p := b.Match(name); p != "" {
			t.Errorf("Match(%q) = %s, want no match", name, p)
		}
	}
	for _, title := range []string{"Christmas", "Easter Sunday", "Doctor", "Leave", "Hold", "Merry Christmas!", "Dentist appointment", "Gym", "Sick", "On hold: Mary Easter", "Sick leave"} {
		if b.Match(title) == "" {
			t.Errorf("Match(%q) = no match, want ignored", title)
		}
	}
}

func TestResolve_SurnameLikeHolidayCreatesClient(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())
	idx := NewIndex("t1", nil, nil)

	res, err := r.Resolve(context.Background(), idx, "Holly Christmas", models.ProvenanceCalendarImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Created {
		t.Errorf("res = %+v, want created", res)
	}
}

func TestResolve_SingleFirstNamesStayDistinct(t *testing.T) {
	for _, order := range [][]string{{"Chris", "Christina"}, {"Christina", "Chris"}} {
		store := newMemClients()
		r := New(store, testLogger())
		idx := NewIndex("t1", nil, nil)

		var ids []string
		for _, raw := range order {
			res, err := r.Resolve(context.Background(), idx, raw, models.ProvenanceCalendarImport)
			if err != nil {
				t.Fatalf("%v: Resolve(%q): %v", order, raw, err)
			}
			if res.Outcome != Created {
				t.Fatalf("%v: Resolve(%q) = %+v, want created", order, raw, res)
			}
			ids = append(ids, res.ClientID)
		}
		if ids[0] == ids[1] || store.creates != 2 {
			t.Errorf("%v: ids = %v, creates = %d", order, ids, store.creates)
		}

		// A fresh snapshot over the same store resolves both exactly.
		fresh := NewIndex("t1", []models.Client{store.clients[ids[0]], store.clients[ids[1]]}, nil)
		for n, raw := range order {
			res, _ := r.Resolve(context.Background(), fresh, raw, models.ProvenanceCalendarImport)
			if res.Outcome != Matched || res.ClientID != ids[n] {
				t.Errorf("%v: rerun Resolve(%q) = %+v", order, raw, res)
			}
		}
	}
}

func TestResolve_DerivedIDTakenByOtherName(t *testing.T) {
	store := newMemClients()
	r := New(store, testLogger())

	// A client stored under the id "Ana" would derive, but with another name.
	taken := client(clientID("t1", "ana", nil), "Anabel Ortiz", 0)
	store.clients[taken.ID] = taken

	res, err := r.Resolve(context.Background(), NewIndex("t1", nil, nil), "Ana", models.ProvenanceCalendarImport)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != Created || res.ClientID == taken.ID || res.ClientID == "" {
		t.Errorf("res = %+v", res)
	}
}
