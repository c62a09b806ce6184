// Package session keeps the renderer's last received status for the
// lifetime of a UI session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"updatekit/internal/status"
)

// ErrNoPayload is returned by Record.Decode when the record has no payload.
var ErrNoPayload = errors.New("record has no payload")

// Record is a persisted (status, payload) pair.
type Record struct {
	Status    status.Status
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// Decode unmarshals the payload into v.
func (r Record) Decode(v any) error {
	if len(r.Payload) == 0 || string(r.Payload) == "null" {
		return ErrNoPayload
	}
	return json.Unmarshal(r.Payload, v)
}

// Store persists the last status of a session. Closing a store ends the
// session and discards what it held.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (Record, bool, error)
	Close() error
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	rec.Payload = append(json.RawMessage(nil), rec.Payload...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return Record{}, false, nil
	}
	return *m.rec, true, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}
