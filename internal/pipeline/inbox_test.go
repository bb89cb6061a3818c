package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/casebook/internal/checksum"
	"github.com/starford/casebook/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestIngestInbox_ArchivesByOutcome(t *testing.T) {
	db := testutil.TestDB(t)
	testutil.SeedClient(t, db, "c-john", "John Best", t0)
	testutil.SeedSession(t, db, "s-dec5", "c-john", time.Date(2024, 12, 5, 15, 0, 0, 0, time.UTC), t0)
	dir, inbox := testutil.TestInbox(t)
	testutil.WriteInboxFile(t, dir, "John Best 12-5-2024.md", []byte("Client was engaged today.\n"))
	testutil.WriteInboxFile(t, dir, "scans/broken.txt", []byte{0xff, 0xfe, 0x00})
	e := newEngine(t, db)

	rep, err := e.IngestInbox(context.Background(), testutil.Tenant, inbox)
	if err != nil {
		t.Fatalf("IngestInbox: %v", err)
	}
	if rep.Processed != 1 || rep.Linked != 1 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !exists(filepath.Join(dir, "processed", "John Best 12-5-2024.md")) {
		t.Error("processed file not archived")
	}
	if !exists(filepath.Join(dir, "failed", "scans", "broken.txt")) {
		t.Error("failed file not archived")
	}
	pending, _ := inbox.List("")
	if len(pending) != 0 {
		t.Errorf("pending = %+v", pending)
	}

	rep, err = e.IngestInbox(context.Background(), testutil.Tenant, inbox)
	if err != nil || rep.Processed+rep.Failed != 0 {
		t.Errorf("empty inbox: %+v, %v", rep, err)
	}
}

func TestIngestInbox_SameFileTwiceIsDuplicate(t *testing.T) {
	db := testutil.TestDB(t)
	dir, inbox := testutil.TestInbox(t)
	e := newEngine(t, db)
	text := []byte("Client: Ana Lopez\nDate: 2024-02-01\n")

	testutil.WriteInboxFile(t, dir, "note.md", text)
	if _, err := e.IngestInbox(context.Background(), testutil.Tenant, inbox); err != nil {
		t.Fatal(err)
	}
	testutil.WriteInboxFile(t, dir, "note.md", text)
	rep, err := e.IngestInbox(context.Background(), testutil.Tenant, inbox)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 1 || !rep.Results[0].Duplicate {
		t.Errorf("report = %+v", rep)
	}
	if !exists(filepath.Join(dir, "processed", "note-1.md")) {
		t.Error("second copy should be archived beside the first")
	}
}

func TestWatchInbox_IngestsNewFiles(t *testing.T) {
	db := testutil.TestDB(t)
	dir, inbox := testutil.TestInbox(t)
	e := newEngine(t, db)

	testutil.WriteInboxFile(t, dir, "early.md", []byte("Client: Ana Lopez\n"))

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var reports []BatchReport
	done := make(chan error, 1)
	go func() {
		done <- e.WatchInbox(ctx, testutil.Tenant, inbox, dir, 50*time.Millisecond, func(rep BatchReport, err error) {
			mu.Lock()
			reports = append(reports, rep)
			mu.Unlock()
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(filepath.Join(dir, "processed", "early.md"))
	}, "file present at start was not ingested")

	late := []byte("Client: Priya Natarajan\nDate: 2024-03-04\n")
	_ = os.MkdirAll(filepath.Join(dir, "sub"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(dir, "sub", "late.md"), late, 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.RecordByChecksum(context.Background(), testutil.Tenant, checksum.Sum(late))
		return err == nil
	}, "new file was not ingested")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return exists(filepath.Join(dir, "processed", "sub", "late.md"))
	}, "new file was not archived")

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 {
		t.Errorf("callbacks = %d, want at least 2", len(reports))
	}
}
