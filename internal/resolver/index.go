package resolver

import (
	"sort"
	"sync"

	"github.com/starford/casebook/internal/models"
)

// Index is an in-memory snapshot of one tenant's clients, loaded once per
// batch. Resolution against it is serialized per equivalence key; a client
// created under a key is added before the key is released, so concurrent
// resolutions of equivalent names observe it.
type Index struct {
	tenantID  string
	nicknames *Nicknames

	mu     sync.RWMutex
	byID   map[string]models.Client
	byName map[string][]string // normalized name -> client ids
	byKey  map[string][]string // equivalence key -> client ids

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewIndex builds an index over clients (deleted ones included).
func NewIndex(tenantID string, clients []models.Client, nicknames *Nicknames) *Index {
	if nicknames == nil {
		nicknames = DefaultNicknames
	}
	idx := &Index{
		tenantID:  tenantID,
		nicknames: nicknames,
		byID:      make(map[string]models.Client, len(clients)),
		byName:    make(map[string][]string, len(clients)),
		byKey:     make(map[string][]string, len(clients)),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, c := range clients {
		idx.addLocked(c)
	}
	return idx
}

// TenantID returns the tenant the snapshot belongs to.
func (idx *Index) TenantID() string {
	return idx.tenantID
}

// Client returns a client by id.
func (idx *Index) Client(id string) (models.Client, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	c, ok := idx.byID[id]
	return c, ok
}

// Len returns the number of clients in the snapshot.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// Add inserts or replaces a client.
func (idx *Index) Add(c models.Client) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(c)
}

func (idx *Index) addLocked(c models.Client) {
	if c.NormalizedName == "" {
		c.NormalizedName = models.NormalizeName(c.DisplayName)
	}
	if _, exists := idx.byID[c.ID]; !exists {
		idx.byName[c.NormalizedName] = append(idx.byName[c.NormalizedName], c.ID)
		for _, k := range idx.nicknames.Keys(c.NormalizedName) {
			idx.byKey[k] = append(idx.byKey[k], c.ID)
		}
	}
	idx.byID[c.ID] = c
}

// exact returns clients whose normalized name equals name.
func (idx *Index) exact(name string) []models.Client {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.collectLocked(idx.byName[name])
}

// equivalent returns clients sharing any equivalence key with keys.
func (idx *Index) equivalent(keys []string) []models.Client {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, k := range keys {
		for _, id := range idx.byKey[k] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return idx.collectLocked(ids)
}

func (idx *Index) collectLocked(ids []string) []models.Client {
	out := make([]models.Client, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.byID[id])
	}
	sortClients(out)
	return out
}

// lock acquires the per-key mutexes for keys in sorted order and returns the
// release function.
func (idx *Index) lock(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	mus := make([]*sync.Mutex, 0, len(sorted))
	idx.locksMu.Lock()
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		m, ok := idx.locks[k]
		if !ok {
			m = &sync.Mutex{}
			idx.locks[k] = m
		}
		mus = append(mus, m)
	}
	idx.locksMu.Unlock()

	for _, m := range mus {
		m.Lock()
	}
	return func() {
		for i := len(mus) - 1; i >= 0; i-- {
			mus[i].Unlock()
		}
	}
}

// sortClients orders clients by creation time, then id.
func sortClients(cs []models.Client) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].CreatedAt.Before(cs[j].CreatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}
