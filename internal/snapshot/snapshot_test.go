package snapshot

import (
	"testing"
	"time"

	"github.com/starford/casebook/internal/models"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestSessions_DeletedAreSkipped(t *testing.T) {
	gone := at(1, 0)
	si := NewSessions([]models.Session{
		{ID: "s1", ClientID: "c1", ScheduledAt: at(4, 10)},
		{ID: "s2", ClientID: "c1", ScheduledAt: at(5, 10), DeletedAt: &gone},
	})
	if si.Len() != 1 {
		t.Errorf("len = %d, want 1", si.Len())
	}
	if _, ok := si.Session("s2"); ok {
		t.Error("deleted session is indexed")
	}
}

func TestSessions_ForClientOrdered(t *testing.T) {
	si := NewSessions([]models.Session{
		{ID: "s3", ClientID: "c1", ScheduledAt: at(6, 9)},
		{ID: "s1", ClientID: "c1", ScheduledAt: at(4, 9)},
		{ID: "s2", ClientID: "c1", ScheduledAt: at(4, 9)},
		{ID: "x", ClientID: "c2", ScheduledAt: at(4, 9)},
	})
	got := si.ForClient("c1")
	if len(got) != 3 || got[0].ID != "s1" || got[1].ID != "s2" || got[2].ID != "s3" {
		t.Errorf("order = %+v", got)
	}
	if len(si.ForClient("nobody")) != 0 {
		t.Error("unknown client has sessions")
	}
}

func TestSessions_LookupByIDOrExternalID(t *testing.T) {
	si := NewSessions(nil)
	si.Add(models.Session{ID: "s1", ClientID: "c1", ExternalEventID: "g-77", ScheduledAt: at(4, 9)})
	si.Add(models.Session{ID: "s1", ClientID: "c1", ExternalEventID: "g-77", ScheduledAt: at(4, 9)})

	if s, ok := si.Lookup("s1"); !ok || s.ID != "s1" {
		t.Errorf("by id: %+v %v", s, ok)
	}
	if s, ok := si.Lookup("g-77"); !ok || s.ID != "s1" {
		t.Errorf("by external id: %+v %v", s, ok)
	}
	if _, ok := si.Lookup("g-78"); ok {
		t.Error("unknown reference found")
	}
	if len(si.ForClient("c1")) != 1 {
		t.Error("re-adding a session duplicated it")
	}
}
