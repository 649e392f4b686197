package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixCampaign = "cmp"
	PrefixDonation = "don"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// GenerateUUID returns prefix_ULID. ULIDs sort by creation time.
func GenerateUUID(prefix string) string {
	mu.Lock()
	defer mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return prefix + "_" + id.String()
}

// HasPrefix reports whether s looks like an id generated with prefix.
func HasPrefix(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}
