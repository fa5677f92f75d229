// Package memory provides an in-process unit store. It backs tests and
// single-node deployments that run without PostgreSQL.
package memory

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"

	"unitrack/internal/core/apperror"
	"unitrack/internal/core/id"
	"unitrack/internal/core/numerator"
	"unitrack/internal/domain/units"
)

// Store keeps units in memory. It implements units.Repository,
// units.OperationLog and tx.Manager.
//
// Transactions are serialized and rolled back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	seq   int64
	units map[id.ID]*units.Unit
	bySKU map[string]id.ID
	ops   map[string]units.OperationRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{
		units: make(map[id.ID]*units.Unit),
		bySKU: make(map[string]id.ID),
		ops:   make(map[string]units.OperationRecord),
	}
}

type txKey struct{}

// RunInTransaction implements tx.Manager. Nested calls join the outer one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Atomic implements tx.Atomic.
func (s *Store) Atomic() bool { return true }

type snapshot struct {
	seq   int64
	units map[id.ID]*units.Unit
	bySKU map[string]id.ID
	ops   map[string]units.OperationRecord
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		seq:   s.seq,
		units: make(map[id.ID]*units.Unit, len(s.units)),
		bySKU: make(map[string]id.ID, len(s.bySKU)),
		ops:   make(map[string]units.OperationRecord, len(s.ops)),
	}
	for k, u := range s.units {
		snap.units[k] = u.Clone()
	}
	for k, v := range s.bySKU {
		snap.bySKU[k] = v
	}
	for k, v := range s.ops {
		snap.ops[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq, s.units, s.bySKU, s.ops = snap.seq, snap.units, snap.bySKU, snap.ops
}

// selectUnits returns clones of the matching units in creation order.
func (s *Store) selectUnits(match func(u *units.Unit) bool) []*units.Unit {
	var out []*units.Unit
	for _, u := range s.units {
		if match(u) {
			out = append(out, u.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *units.Unit) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

// FindBatchIDByProductName implements units.PrefixRepository.
func (s *Store) FindBatchIDByProductName(_ context.Context, facilityID, productName string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := s.selectUnits(func(u *units.Unit) bool {
		return u.FacilityID == facilityID && strings.EqualFold(u.ProductName, productName)
	})
	if len(found) == 0 {
		return "", nil
	}
	return found[0].BatchID, nil
}

// PrefixInUse implements units.PrefixRepository.
func (s *Store) PrefixInUse(_ context.Context, facilityID, prefix string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.units {
		if u.FacilityID == facilityID && strings.HasPrefix(u.BatchID, prefix+numerator.Separator) {
			return true, nil
		}
	}
	return false, nil
}

// ListBatchIDs implements units.BatchRepository.
func (s *Store) ListBatchIDs(_ context.Context, prefix string) ([]string, error) {
	re, err := regexp.Compile(numerator.BatchPattern(prefix))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, u := range s.units {
		if !re.MatchString(u.BatchID) {
			continue
		}
		if _, ok := seen[u.BatchID]; ok {
			continue
		}
		seen[u.BatchID] = struct{}{}
		out = append(out, u.BatchID)
	}
	slices.Sort(out)
	return out, nil
}

// InsertUnits implements units.Repository.
func (s *Store) InsertUnits(_ context.Context, batch []*units.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make(map[string]struct{}, len(batch))
	for _, u := range batch {
		if _, ok := s.bySKU[u.UnitSKU]; ok {
			return apperror.NewDuplicate("unit", "unit_sku", u.UnitSKU)
		}
		if _, ok := pending[u.UnitSKU]; ok {
			return apperror.NewDuplicate("unit", "unit_sku", u.UnitSKU)
		}
		pending[u.UnitSKU] = struct{}{}
	}

	for _, u := range batch {
		s.seq++
		u.Seq = s.seq
		s.units[u.ID] = u.Clone()
		s.bySKU[u.UnitSKU] = u.ID
	}
	return nil
}

// FindActive implements units.Repository. Rows are serialized by the
// transaction lock, so forUpdate needs no extra work here.
func (s *Store) FindActive(_ context.Context, facilityID, productName string, _ bool) ([]*units.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.selectUnits(func(u *units.Unit) bool {
		return u.FacilityID == facilityID &&
			u.ProductName == productName &&
			u.Status == units.StatusActive &&
			u.Quantity > 0
	})
	slices.SortStableFunc(out, func(a, b *units.Unit) int {
		return a.ReceivedDate.Compare(b.ReceivedDate)
	})
	return out, nil
}

// UpdateUnit implements units.Repository.
func (s *Store) UpdateUnit(_ context.Context, upd units.UnitUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.units[upd.Unit.ID]
	if !ok {
		return apperror.NewNotFound("unit", upd.Unit.UnitSKU)
	}
	if stored.Version != upd.ExpectedVersion || stored.Quantity < upd.MinQuantity {
		return apperror.NewConcurrentModification("unit", upd.Unit.UnitSKU)
	}

	next := upd.Unit.Clone()
	next.Seq = stored.Seq
	next.Distributions = slices.Clone(stored.Distributions)
	if upd.Distribution != nil {
		next.Distributions = append(next.Distributions, *upd.Distribution)
	}
	next.History = append(slices.Clone(stored.History), upd.History...)
	s.units[next.ID] = next
	return nil
}

// GetBySKU implements units.Repository.
func (s *Store) GetBySKU(_ context.Context, facilityID, unitSKU string) (*units.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uid, ok := s.bySKU[unitSKU]
	if !ok || s.units[uid].FacilityID != facilityID {
		return nil, apperror.NewNotFound("unit", unitSKU)
	}
	return s.units[uid].Clone(), nil
}

// ListByBatch implements units.Repository.
func (s *Store) ListByBatch(_ context.Context, facilityID, batchID string) ([]*units.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selectUnits(func(u *units.Unit) bool {
		return u.FacilityID == facilityID && u.BatchID == batchID
	}), nil
}

// ListByExpiry implements units.Repository.
func (s *Store) ListByExpiry(_ context.Context, facilityID string, f units.ExpiryFilter) ([]*units.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.selectUnits(func(u *units.Unit) bool {
		if u.FacilityID != facilityID || u.Status != units.StatusActive || u.Quantity <= 0 {
			return false
		}
		if !u.Expiry.IsTracked || u.Expiry.Date == nil {
			return false
		}
		d := *u.Expiry.Date
		switch {
		case !f.From.IsZero() && d.Before(f.From):
			return false
		case !f.Before.IsZero() && !d.Before(f.Before):
			return false
		case !f.Through.IsZero() && d.After(f.Through):
			return false
		}
		return true
	})
	slices.SortStableFunc(out, func(a, b *units.Unit) int {
		return a.Expiry.Date.Compare(*b.Expiry.Date)
	})
	return out, nil
}

// StockLevels implements units.Repository.
func (s *Store) StockLevels(_ context.Context, facilityID string, threshold int) ([]units.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := make(map[string]*units.StockLevel)
	for _, u := range s.units {
		if u.FacilityID != facilityID || u.Status != units.StatusActive || u.Quantity <= 0 {
			continue
		}
		lvl, ok := byName[u.ProductName]
		if !ok {
			lvl = &units.StockLevel{ProductName: u.ProductName}
			byName[u.ProductName] = lvl
		}
		lvl.Available += u.Quantity
		lvl.Units++
	}

	var out []units.StockLevel
	for _, lvl := range byName {
		if lvl.Available <= threshold {
			out = append(out, *lvl)
		}
	}
	slices.SortFunc(out, func(a, b units.StockLevel) int { return strings.Compare(a.ProductName, b.ProductName) })
	return out, nil
}

// ListFacilities implements units.Repository.
func (s *Store) ListFacilities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, u := range s.units {
		if _, ok := seen[u.FacilityID]; !ok {
			seen[u.FacilityID] = struct{}{}
			out = append(out, u.FacilityID)
		}
	}
	slices.Sort(out)
	return out, nil
}

// GetOperation implements units.OperationLog.
func (s *Store) GetOperation(_ context.Context, operationID string) (*units.OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ops[operationID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// SaveOperation implements units.OperationLog.
func (s *Store) SaveOperation(_ context.Context, rec units.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ops[rec.ID]; ok {
		return apperror.NewIdempotencyConflict(rec.ID)
	}
	s.ops[rec.ID] = rec
	return nil
}
