package invoice

import (
	"errors"
	"fmt"
	"sync"

	"dragonfly/pkg/models"
)

// ErrDuplicateID is returned when Insert is given an id that is already taken.
var ErrDuplicateID = errors.New("duplicate invoice id")

// Store is the authoritative in-memory invoice collection.
//
// The index (map plus insertion order) is guarded by mu; each record carries
// its own lock, so compare-and-swap on one invoice never waits on a mutation
// of another. Lock order is always mu before record.mu. Values handed out are
// deep copies; the backing records are never exposed.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
	seq     int
}

type record struct {
	mu      sync.Mutex
	inv     models.Invoice
	history []models.InvoiceEvent
	deleted bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Insert adds inv at version 1. An empty id is replaced by the next free
// "inv-NNN" id. The stored copy is returned.
func (s *Store) Insert(inv models.Invoice, created *models.InvoiceEvent) (models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = s.nextIDLocked()
	} else if _, taken := s.records[inv.ID]; taken {
		return models.Invoice{}, fmt.Errorf("%w: %s", ErrDuplicateID, inv.ID)
	}
	inv.Version = 1

	rec := &record{inv: inv.Clone()}
	if created != nil {
		ev := *created
		ev.InvoiceID = inv.ID
		ev.Version = inv.Version
		rec.history = append(rec.history, ev)
	}
	s.records[inv.ID] = rec
	s.order = append(s.order, inv.ID)
	return inv.Clone(), nil
}

// NextID reserves the next free "inv-NNN" id. Reserved ids are never handed
// out twice, even if the invoice is never inserted.
func (s *Store) NextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() string {
	for {
		s.seq++
		id := fmt.Sprintf("inv-%03d", s.seq)
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// Get returns a copy of the invoice with id.
func (s *Store) Get(id string) (models.Invoice, error) {
	rec := s.lookup(id)
	if rec == nil {
		return models.Invoice{}, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return models.Invoice{}, ErrNotFound
	}
	return rec.inv.Clone(), nil
}

// Snapshot returns copies of all invoices in insertion order.
func (s *Store) Snapshot() []models.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Invoice, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		rec.mu.Lock()
		if !rec.deleted {
			out = append(out, rec.inv.Clone())
		}
		rec.mu.Unlock()
	}
	return out
}

// Len returns the number of stored invoices. Records whose delete is in
// flight are not counted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, id := range s.order {
		rec := s.records[id]
		rec.mu.Lock()
		if !rec.deleted {
			n++
		}
		rec.mu.Unlock()
	}
	return n
}

// CompareAndSwap replaces the stored invoice with next if the stored version
// still equals expected, bumping the version by one. Fields fixed at
// creation are carried over from the stored record whatever next holds. If
// event is non-nil it is appended to the invoice history in the same step.
func (s *Store) CompareAndSwap(next models.Invoice, expected int, event *models.InvoiceEvent) (models.Invoice, error) {
	rec := s.lookup(next.ID)
	if rec == nil {
		return models.Invoice{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.deleted {
		return models.Invoice{}, ErrNotFound
	}
	cur := rec.inv
	if cur.Version != expected {
		return models.Invoice{}, ErrVersionConflict
	}

	next = next.Clone()
	next.SubmittedBy = cur.SubmittedBy
	next.Office = cur.Office
	next.CreatedAt = cur.CreatedAt
	next.FileURL = cur.FileURL
	next.ExtractionConfidence = cur.Clone().ExtractionConfidence
	next.Version = cur.Version + 1

	rec.inv = next
	if event != nil {
		ev := *event
		ev.InvoiceID = next.ID
		ev.Version = next.Version
		rec.history = append(rec.history, ev)
	}
	return next.Clone(), nil
}

// Delete removes the invoice if its version still equals expected.
func (s *Store) Delete(id string, expected int) error {
	rec := s.lookup(id)
	if rec == nil {
		return ErrNotFound
	}

	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return ErrNotFound
	}
	if rec.inv.Version != expected {
		rec.mu.Unlock()
		return ErrVersionConflict
	}
	rec.deleted = true
	rec.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// History returns the events recorded for the invoice, oldest first.
func (s *Store) History(id string) ([]models.InvoiceEvent, error) {
	rec := s.lookup(id)
	if rec == nil {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.deleted {
		return nil, ErrNotFound
	}
	out := make([]models.InvoiceEvent, len(rec.history))
	copy(out, rec.history)
	return out, nil
}
