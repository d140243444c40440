// Package landmark loads the fixed set of named world-frame landmarks the
// simulator observes and keeps it immutable for the life of the process.
package landmark

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/navsim/internal/core/geometry"
)

// Landmark is a named point in the world frame. Position.Yaw is always zero.
type Landmark struct {
	ID       string          `json:"id"`
	Position geometry.Pose2D `json:"position"`
}

// Store is an ordered, read-only set of landmarks with unique ids. The zero
// value is an empty store.
type Store struct {
	landmarks   []Landmark
	index       map[string]int
	fingerprint uint64
}

// NewStore builds a store from landmarks in the given order. Ids must be
// non-empty and unique.
func NewStore(landmarks ...Landmark) (*Store, error) {
	s := &Store{
		landmarks: make([]Landmark, 0, len(landmarks)),
		index:     make(map[string]int, len(landmarks)),
	}
	for _, lm := range landmarks {
		if err := s.add(lm); err != nil {
			return nil, &ConfigError{Source: "<memory>", Landmark: lm.ID, Err: err}
		}
	}
	s.seal()
	return s, nil
}

// add appends during load only; seal must be called once loading is done.
func (s *Store) add(lm Landmark) error {
	if lm.ID == "" {
		return errEmptyID
	}
	if _, dup := s.index[lm.ID]; dup {
		return errDuplicateID
	}
	if !finite(lm.Position.X) || !finite(lm.Position.Y) {
		return errNonFiniteCoor
	}
	lm.Position.Yaw = 0
	s.index[lm.ID] = len(s.landmarks)
	s.landmarks = append(s.landmarks, lm)
	return nil
}

func (s *Store) seal() {
	h := xxhash.New()
	var buf []byte
	for _, lm := range s.landmarks {
		buf = buf[:0]
		buf = append(buf, lm.ID...)
		buf = append(buf, 0)
		buf = strconv.AppendFloat(buf, lm.Position.X, 'g', -1, 64)
		buf = append(buf, 0)
		buf = strconv.AppendFloat(buf, lm.Position.Y, 'g', -1, 64)
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	s.fingerprint = h.Sum64()
}

// All returns the landmarks in load order. The slice is a copy.
func (s *Store) All() []Landmark {
	if s == nil {
		return nil
	}
	out := make([]Landmark, len(s.landmarks))
	copy(out, s.landmarks)
	return out
}

// Each calls fn for every landmark in load order without copying the set.
func (s *Store) Each(fn func(i int, lm Landmark)) {
	if s == nil {
		return
	}
	for i, lm := range s.landmarks {
		fn(i, lm)
	}
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.landmarks)
}

func (s *Store) Get(id string) (Landmark, bool) {
	if s == nil {
		return Landmark{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return Landmark{}, false
	}
	return s.landmarks[i], true
}

// IDs returns the landmark ids in load order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.landmarks))
	for i, lm := range s.landmarks {
		ids[i] = lm.ID
	}
	return ids
}

// Fingerprint identifies the store content (ids, order and coordinates). Two
// stores with equal fingerprints were loaded from equivalent documents.
func (s *Store) Fingerprint() string {
	if s == nil {
		return strconv.FormatUint(xxhash.Sum64(nil), 16)
	}
	return strconv.FormatUint(s.fingerprint, 16)
}
