package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// ComponentName returns name when set, otherwise kind suffixed with a
// lower-case ULID. Components use it for log fields and metric labels.
func ComponentName(kind, name string) string {
	if name != "" {
		return name
	}
	return kind + "-" + strings.ToLower(CreateULID())
}
