package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns an opaque id such as "prd_3f0c...". The prefix only helps humans
// reading logs; nothing parses it back.
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Short returns the first n hex characters of a fresh uuid, upper-cased.
func Short(n int) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}
