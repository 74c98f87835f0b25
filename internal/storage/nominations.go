package storage

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/maaaruch/tg-award-bot/internal/domain"
)

// Record is the on-disk shape of one nomination. Resolver fields are only
// present for the matching status.
type Record struct {
	Nominator  string   `json:"nominator"`
	UserIDs    []string `json:"user_ids"`
	Users      []string `json:"users"`
	Medal      string   `json:"medal"`
	Reason     string   `json:"reason"`
	Status     string   `json:"status"`
	ApprovedBy string   `json:"approved_by,omitempty"`
	DeniedBy   string   `json:"denied_by,omitempty"`
}

// NominationStore owns every nomination. Each mutation rewrites the whole
// snapshot while holding mu, so the map and the file never diverge.
type NominationStore struct {
	mu    sync.Mutex
	snap  Snapshotter
	items map[string]domain.Nomination
	seq   int
}

// OpenNominationStore loads the JSON snapshot at path, or starts empty when
// the file is missing.
func OpenNominationStore(path string) (*NominationStore, error) {
	return NewNominationStore(NewJSONFile(path, 0o644))
}

func NewNominationStore(snap Snapshotter) (*NominationStore, error) {
	records, err := snap.Load()
	if err != nil {
		return nil, fmt.Errorf("load nominations: %w", err)
	}

	s := &NominationStore{
		snap:  snap,
		items: make(map[string]domain.Nomination, len(records)),
	}
	for id, rec := range records {
		n, err := fromRecord(id, rec)
		if err != nil {
			return nil, fmt.Errorf("load nominations: %w", err)
		}
		s.items[id] = n
		if v, err := strconv.Atoi(id); err == nil && v > s.seq {
			s.seq = v
		}
	}
	if len(s.items) > s.seq {
		s.seq = len(s.items)
	}
	return s, nil
}

// Create stores a new pending nomination under the next id.
func (s *NominationStore) Create(nominator string, userIDs, users []string, medal, reason string) (domain.Nomination, error) {
	if len(userIDs) == 0 {
		return domain.Nomination{}, ErrNoTargets
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.Itoa(s.seq + 1)
	n := domain.Nomination{
		ID:        id,
		Nominator: nominator,
		UserIDs:   append([]string(nil), userIDs...),
		Users:     append([]string(nil), users...),
		Medal:     medal,
		Reason:    reason,
		Status:    domain.StatusPending,
	}

	s.items[id] = n
	if err := s.persistLocked(); err != nil {
		delete(s.items, id)
		return domain.Nomination{}, err
	}
	s.seq++
	return n.Clone(), nil
}

func (s *NominationStore) Get(id string) (domain.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok {
		return domain.Nomination{}, ErrNotFound
	}
	return n.Clone(), nil
}

// Update applies fn to a copy of the record and persists the result. If fn
// fails nothing is written; if the write fails the old record is restored.
func (s *NominationStore) Update(id string, fn func(*domain.Nomination) error) (domain.Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[id]
	if !ok {
		return domain.Nomination{}, ErrNotFound
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return domain.Nomination{}, err
	}
	next.ID = id

	s.items[id] = next
	if err := s.persistLocked(); err != nil {
		s.items[id] = cur
		return domain.Nomination{}, err
	}
	return next.Clone(), nil
}

// List returns every nomination ordered by id.
func (s *NominationStore) List() []domain.Nomination {
	s.mu.Lock()
	out := make([]domain.Nomination, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

func (s *NominationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Persist writes the current snapshot.
func (s *NominationStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *NominationStore) persistLocked() error {
	records := make(map[string]Record, len(s.items))
	for id, n := range s.items {
		records[id] = toRecord(n)
	}
	if err := s.snap.Save(records); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

func toRecord(n domain.Nomination) Record {
	rec := Record{
		Nominator: n.Nominator,
		UserIDs:   append([]string(nil), n.UserIDs...),
		Users:     append([]string(nil), n.Users...),
		Medal:     n.Medal,
		Reason:    n.Reason,
		Status:    string(n.Status),
	}
	switch n.Status {
	case domain.StatusApproved:
		rec.ApprovedBy = n.ResolvedBy
	case domain.StatusDenied:
		rec.DeniedBy = n.ResolvedBy
	}
	if rec.Users == nil {
		rec.Users = []string{}
	}
	return rec
}

func fromRecord(id string, rec Record) (domain.Nomination, error) {
	if len(rec.UserIDs) == 0 {
		return domain.Nomination{}, fmt.Errorf("nomination %s: no user_ids", id)
	}

	n := domain.Nomination{
		ID:        id,
		Nominator: rec.Nominator,
		UserIDs:   rec.UserIDs,
		Users:     rec.Users,
		Medal:     rec.Medal,
		Reason:    rec.Reason,
		Status:    domain.Status(rec.Status),
	}
	switch n.Status {
	case domain.StatusPending:
	case domain.StatusApproved:
		n.ResolvedBy = rec.ApprovedBy
	case domain.StatusDenied:
		n.ResolvedBy = rec.DeniedBy
	default:
		return domain.Nomination{}, fmt.Errorf("nomination %s: unknown status %q", id, rec.Status)
	}
	if n.Status != domain.StatusPending && n.ResolvedBy == "" {
		return domain.Nomination{}, fmt.Errorf("nomination %s: %s without resolver", id, n.Status)
	}
	return n, nil
}

func lessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	if aerr == nil {
		return true
	}
	if berr == nil {
		return false
	}
	return a < b
}

// ReadSnapshot lists the nominations in the file at path. Unlike
// OpenNominationStore, a missing file is an error.
func ReadSnapshot(path string) ([]domain.Nomination, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	s, err := OpenNominationStore(path)
	if err != nil {
		return nil, err
	}
	return s.List(), nil
}
