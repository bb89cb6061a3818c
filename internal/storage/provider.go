// Package storage defines the document inbox abstraction.
package storage

import "time"

// Folders that hold files after ingestion. List skips them.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Entry describes one pending inbox file.
type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// Provider is the interface for inbox file operations. Paths are relative to
// the inbox root.
type Provider interface {
	// List returns every pending document under dir, oldest first.
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Archive moves path into folder, keeping its relative location and
	// never overwriting an earlier file. It returns the new path.
	Archive(path, folder string) (string, error)
}
