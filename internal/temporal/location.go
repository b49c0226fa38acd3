package temporal

import (
	"sync"
	"time"
	_ "time/tzdata"

	lru "github.com/hashicorp/golang-lru/v2"
)

const locationCacheSize = 128

var (
	locationsOnce sync.Once
	locations     *lru.Cache[string, *time.Location]
)

// LoadLocation returns the IANA location for name, falling back to UTC for
// empty or unknown names. Lookups are cached since every inbound message and
// every reminder delivery needs the user's zone.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}

	locationsOnce.Do(func() {
		// lru.New only errors on a non-positive size.
		locations, _ = lru.New[string, *time.Location](locationCacheSize)
	})

	if loc, ok := locations.Get(name); ok {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	locations.Add(name, loc)
	return loc
}

// ValidTimezone reports whether name is a loadable IANA zone.
func ValidTimezone(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
