package store

import (
	"context"
	"time"
)

// Slot is a pre-provisioned client identity. PwdHash holds a bcrypt hash when
// the slot is password-protected; Tag records a capacity claim.
type Slot struct {
	ID        string
	Admin     bool
	PwdHash   string
	Valid     bool
	Tag       string
	TagDate   *time.Time
	CreatedAt time.Time
}

// RosterStore persists provisioned client slots. The live registry stays
// in-memory; the roster is only the provisioning source loaded at channel
// start and the sink for claim stamps.
type RosterStore interface {
	LoadRoster(ctx context.Context) ([]Slot, error)
	CreateSlot(ctx context.Context, slot Slot) error
	GetSlot(ctx context.Context, id string) (*Slot, error)
	MarkClaimed(ctx context.Context, id, tag string, at time.Time) error
	Close() error
}
