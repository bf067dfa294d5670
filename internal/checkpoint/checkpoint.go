// Package checkpoint implements the checkpoint store (spec C7): opaque
// archives of pre-change system state, named by a `<name>_<timestamp>` id
// (not by a hash of their content), with FIFO
// retention and a restore path that re-applies what's safe to re-apply and
// logs the rest for manual review.
package checkpoint

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCheckpoint        = errors.New("checkpoint: capture failed")
	ErrNotFound          = errors.New("checkpoint: not found")
	ErrIntegrity         = errors.New("checkpoint: metadata missing or unparseable, aborting before mutation")
	ErrUnsafeExtraction  = errors.New("checkpoint: refusing to extract archive entry outside its temp dir")
	ErrUnsupportedOS     = errors.New("checkpoint: unsupported platform")
	defaultRetention int = 10
)

// Metadata is the top-level metadata.json of a checkpoint archive.
type Metadata struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CreatedAtUTC  time.Time `json:"created_at_utc"`
	Hostname      string    `json:"hostname"`
	Kernel        string    `json:"kernel"`
	UID           string    `json:"uid"`
}

// Store is the C7 contract.
type Store interface {
	Create(name, description string) (id string, err error)
	Restore(id string) error
	List() ([]Metadata, error)
	Delete(id string) error
	Prune() error
}

// makeID builds the `<name>_<utc-timestamp>` id format from spec §4.2,
// using a caller-supplied instant so it stays deterministic in tests.
func makeID(name string, at time.Time) string {
	return fmt.Sprintf("%s_%s", name, at.UTC().Format("20060102T150405Z"))
}
