// Package synctask models the units of work that propagate system-of-record
// changes into the search index.
package synctask

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type is the kind of change a task propagates.
type Type string

// Task types.
const (
	TypeCreate Type = "create"
	TypeUpdate Type = "update"
	TypeDelete Type = "delete"
	TypeBulk   Type = "bulk"
)

// Status is a task's lifecycle stage.
type Status string

// pending -> processing -> done, or processing -> retry -> processing ... -> dead.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusRetry      Status = "retry"
	StatusDone       Status = "done"
	StatusDead       Status = "dead"
)

// Priorities. Higher runs first.
const (
	PriorityLow    = 0
	PriorityNormal = 5
	PriorityHigh   = 10
)

// Payload is the typed body of a task. The concrete types below are the only implementations.
type Payload interface {
	Type() Type
	// Key identifies the logical change for deduplication.
	Key() string
}

// Create indexes a newly created record.
type Create struct{ ID string }

// Update re-indexes a changed record.
type Update struct{ ID string }

// Delete removes a record from the index.
type Delete struct{ ID string }

// Bulk re-indexes a set of records, or every record when FullSync is set.
type Bulk struct {
	IDs      []string
	FullSync bool
}

func (Create) Type() Type { return TypeCreate }
func (Update) Type() Type { return TypeUpdate }
func (Delete) Type() Type { return TypeDelete }
func (Bulk) Type() Type   { return TypeBulk }

func (p Create) Key() string { return "create:" + p.ID }
func (p Update) Key() string { return "update:" + p.ID }
func (p Delete) Key() string { return "delete:" + p.ID }

// Key of a bulk task is independent of id order and duplicates.
func (p Bulk) Key() string {
	if p.FullSync {
		return "bulk:full"
	}
	ids := append([]string(nil), p.IDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return "bulk:" + hex.EncodeToString(sum[:12])
}

// Task is a queued sync unit.
type Task struct {
	ID          string
	Seq         uint64
	Payload     Payload
	Priority    int
	Attempt     int
	MaxAttempts int
	Status      Status
	EnqueuedAt  time.Time
	ScheduledAt time.Time
	LastError   string
}

// Type returns the payload type.
func (t Task) Type() Type { return t.Payload.Type() }

// DedupKey identifies equivalent pending tasks.
func (t Task) DedupKey() string { return t.Payload.Key() }

// Ref is a human-readable reference. The width grows past six digits instead
// of wrapping or truncating.
func (t Task) Ref() string { return fmt.Sprintf("sync-%06d", t.Seq) }

// TargetID returns the record id of a single-record task.
func (t Task) TargetID() string {
	switch p := t.Payload.(type) {
	case Create:
		return p.ID
	case Update:
		return p.ID
	case Delete:
		return p.ID
	}
	return ""
}

// DeadLetter is a task that exhausted its retries, kept for operator inspection.
type DeadLetter struct {
	Task     Task      `json:"task"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

// wire is the persisted shape of a task; Payload is flattened by type.
type wire struct {
	ID          string    `json:"id"`
	Seq         uint64    `json:"seq"`
	Type        Type      `json:"type"`
	RecordID    string    `json:"recordId,omitempty"`
	IDs         []string  `json:"ids,omitempty"`
	FullSync    bool      `json:"fullSync,omitempty"`
	Priority    int       `json:"priority"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"maxAttempts"`
	Status      Status    `json:"status"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	ScheduledAt time.Time `json:"scheduledAt"`
	LastError   string    `json:"lastError,omitempty"`
}

// MarshalJSON flattens the payload union.
func (t Task) MarshalJSON() ([]byte, error) {
	w := wire{
		ID: t.ID, Seq: t.Seq, Type: t.Type(), RecordID: t.TargetID(),
		Priority: t.Priority, Attempt: t.Attempt, MaxAttempts: t.MaxAttempts,
		Status: t.Status, EnqueuedAt: t.EnqueuedAt, ScheduledAt: t.ScheduledAt, LastError: t.LastError,
	}
	if b, ok := t.Payload.(Bulk); ok {
		w.IDs, w.FullSync = b.IDs, b.FullSync
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores the payload union.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p, err := NewPayload(w.Type, w.RecordID, w.IDs, w.FullSync)
	if err != nil {
		return err
	}
	*t = Task{
		ID: w.ID, Seq: w.Seq, Payload: p, Priority: w.Priority, Attempt: w.Attempt,
		MaxAttempts: w.MaxAttempts, Status: w.Status, EnqueuedAt: w.EnqueuedAt,
		ScheduledAt: w.ScheduledAt, LastError: w.LastError,
	}
	return nil
}

// NewPayload builds a payload from its flat parts.
func NewPayload(typ Type, id string, ids []string, fullSync bool) (Payload, error) {
	switch typ {
	case TypeCreate, TypeUpdate, TypeDelete:
		if id == "" {
			return nil, fmt.Errorf("%s task requires a record id", typ)
		}
	}
	switch typ {
	case TypeCreate:
		return Create{ID: id}, nil
	case TypeUpdate:
		return Update{ID: id}, nil
	case TypeDelete:
		return Delete{ID: id}, nil
	case TypeBulk:
		if !fullSync && len(ids) == 0 {
			return nil, fmt.Errorf("bulk task requires ids or fullSync")
		}
		return Bulk{IDs: ids, FullSync: fullSync}, nil
	}
	return nil, fmt.Errorf("unknown task type %q", typ)
}
