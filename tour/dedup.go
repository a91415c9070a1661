package tour

import (
	"fmt"
	"math"
	"time"
)

// DuplicateKey identifies a tour across imports of the same file. It uses the
// attributes a re-export of the activity keeps stable: start second, total
// distance rounded to the meter and the recording device's serial number.
func DuplicateKey(start time.Time, distanceMeters float64, serial uint32) string {
	dist := int64(0)
	if IsSet(distanceMeters) && distanceMeters > 0 {
		dist = int64(math.Round(distanceMeters))
	}
	return fmt.Sprintf("%s-%d-%d", start.UTC().Format("20060102150405"), dist, serial)
}

// ExistingTours reports whether a tour with the duplicate key was already
// imported.
type ExistingTours interface {
	TourExists(key string) bool
}

// KeySet is an in-memory ExistingTours. The importer preloads it with the
// stored keys and adds every key it persists, so the accumulator never
// performs I/O itself.
type KeySet map[string]struct{}

// NewKeySet returns a set holding keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add records key.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// TourExists implements ExistingTours.
func (s KeySet) TourExists(key string) bool {
	_, ok := s[key]
	return ok
}
