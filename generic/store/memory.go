// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/booking-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	records   map[generic.TransactionID]generic.TransactionRecord
	byMessage map[generic.MessageID]generic.TransactionID
	processed map[generic.MessageID]generic.ProcessedMessage
	clock     generic.Clock
}

func NewMemory() *Memory {
	return NewMemoryWithClock(generic.SystemClock{})
}

// NewMemoryWithClock lets tests pin created_at and processed_at.
func NewMemoryWithClock(clock generic.Clock) *Memory {
	return &Memory{
		records:   make(map[generic.TransactionID]generic.TransactionRecord),
		byMessage: make(map[generic.MessageID]generic.TransactionID),
		processed: make(map[generic.MessageID]generic.ProcessedMessage),
		clock:     clock,
	}
}

func (m *Memory) Close() error { return nil }

// Create adds a record. One record per source message id.
func (m *Memory) Create(_ context.Context, messageID generic.MessageID, chatID generic.ChatID, b generic.Booking) (generic.TransactionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byMessage[messageID]; exists {
		return "", generic.ErrDuplicateKey
	}
	now := m.clock.Now()
	rec := generic.TransactionRecord{
		ID:              generic.TransactionID(uuid.New().String()),
		SourceMessageID: messageID,
		ChatID:          chatID,
		Booking:         b.WithNet(),
		Status:          generic.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.records[rec.ID] = rec
	m.byMessage[messageID] = rec.ID
	return rec.ID, nil
}

func (m *Memory) FindByMessageID(_ context.Context, messageID generic.MessageID) (*generic.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, nil
	}
	rec := m.records[id]
	return &rec, nil
}

func (m *Memory) Update(_ context.Context, messageID generic.MessageID, b generic.Booking) (*generic.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byMessage[messageID]
	if !ok {
		return nil, generic.ErrNotFound
	}
	rec := m.records[id]
	rec.Booking = b.WithNet()
	rec.Status = generic.StatusEdited
	rec.UpdatedAt = m.clock.Now()
	m.records[id] = rec
	return &rec, nil
}

func (m *Memory) ExistsSimilar(_ context.Context, unit, dateOnly, csName, checkoutTime string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if strings.EqualFold(rec.Unit, unit) &&
			rec.DateOnly == dateOnly &&
			strings.EqualFold(rec.CSName, csName) &&
			rec.CheckoutTime == checkoutTime {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Get(_ context.Context, id generic.TransactionID) (*generic.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, generic.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) Delete(_ context.Context, id generic.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return generic.ErrNotFound
	}
	delete(m.records, id)
	delete(m.byMessage, rec.SourceMessageID)
	return nil
}

func (m *Memory) ListInWindow(_ context.Context, w generic.Window, apartment string) ([]generic.TransactionRecord, error) {
	return m.filter(func(rec generic.TransactionRecord) bool {
		return w.Contains(rec.CreatedAt) && (apartment == "" || strings.EqualFold(rec.Apartment, apartment))
	}), nil
}

func (m *Memory) FindInWindow(_ context.Context, w generic.Window, unit, csName string) ([]generic.TransactionRecord, error) {
	return m.filter(func(rec generic.TransactionRecord) bool {
		return w.Contains(rec.CreatedAt) &&
			strings.EqualFold(rec.Unit, unit) &&
			strings.EqualFold(rec.CSName, csName)
	}), nil
}

func (m *Memory) filter(keep func(generic.TransactionRecord) bool) []generic.TransactionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.TransactionRecord
	for _, rec := range m.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SourceMessageID < out[j].SourceMessageID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) IsProcessed(_ context.Context, messageID generic.MessageID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.processed[messageID]
	return ok, nil
}

func (m *Memory) MarkProcessed(_ context.Context, messageID generic.MessageID, chatID generic.ChatID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.processed[messageID]; ok {
		return false, nil
	}
	m.processed[messageID] = generic.ProcessedMessage{
		MessageID:   messageID,
		ChatID:      chatID,
		ProcessedAt: m.clock.Now(),
	}
	return true, nil
}

func (m *Memory) Unmark(_ context.Context, messageID generic.MessageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processed, messageID)
	return nil
}

func (m *Memory) Cleanup(_ context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.Now().Add(-maxAge)
	var removed int64
	for id, pm := range m.processed {
		if pm.ProcessedAt.Before(cutoff) {
			delete(m.processed, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored records (tests and health output).
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
