package rowstore

import (
	"sync"

	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// Store owns the rows of one mounted view. Apply is expected to be driven by a
// single feed goroutine; readers may call Snapshot from anywhere.
type Store struct {
	mu      sync.RWMutex
	rows    []models.DisplayRow
	changed chan struct{}
	closed  bool
	applied uint64
}

func NewStore(instruments []models.Instrument) *Store {
	return &Store{
		rows:    Seed(instruments),
		changed: make(chan struct{}, 1),
	}
}

// Apply reconciles one message. It reports whether a row changed.
func (s *Store) Apply(msg models.PriceMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	rows, ok := Reconcile(s.rows, msg)
	if !ok {
		return false
	}
	s.rows = rows
	s.applied++

	// coalesce: one pending signal is enough, readers take a fresh snapshot
	select {
	case s.changed <- struct{}{}:
	default:
	}
	return true
}

// Restore copies the prices of rows that already carry one into the matching
// rows of this store. It is meant for a view being rebuilt over a new code set
// and does not signal Changed. It returns how many rows were restored.
func (s *Store) Restore(prev []models.DisplayRow) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	n := 0
	for _, r := range prev {
		if !r.Updated() {
			continue
		}
		i := indexOf(s.rows, r.Code)
		if i < 0 {
			continue
		}
		r.Instrument = s.rows[i].Instrument
		s.rows[i] = r
		n++
	}
	return n
}

// Snapshot returns a copy of the rows in catalog order.
func (s *Store) Snapshot() []models.DisplayRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DisplayRow, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *Store) Row(code string) (models.DisplayRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := indexOf(s.rows, code)
	if i < 0 {
		return models.DisplayRow{}, false
	}
	return s.rows[i], true
}

func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, len(s.rows))
	for i, r := range s.rows {
		codes[i] = r.Code
	}
	return codes
}

// Applied counts messages that matched a row.
func (s *Store) Applied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Changed signals after one or more rows changed. It is closed by Close.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

// Diff returns the rows of next that differ from prev at the same position.
// Both slices must come from the same store.
func Diff(prev, next []models.DisplayRow) []models.DisplayRow {
	if len(prev) != len(next) {
		return next
	}
	var out []models.DisplayRow
	for i := range next {
		if !next[i].Equal(prev[i]) {
			out = append(out, next[i])
		}
	}
	return out
}
