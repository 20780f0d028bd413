// Package hash provides a deterministic string hash used as a cross-process
// equality key for content-addressed satellite rows (Format, Argument,
// CallerInfo).
package hash

import "hash/fnv"

// Stable returns the 32-bit FNV-1a hash of s. It is deterministic across
// processes and Go versions, unlike the runtime's built-in map hash, which
// is what makes it usable as a content-address for deduplication keys that
// may be compared or persisted outside a single process lifetime.
func Stable(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// nullTag and valueTag prefix the hashed bytes so a NULL value and an empty
// string never collide to the same hash, even though both have zero length.
const (
	nullTag  = byte(0)
	valueTag = byte(1)
)

// StableNullable is Stable but distinguishes a nil string from an empty one,
// matching the data model's treatment of NULL as a distinct dedup key (see
// Argument.Value and CallerInfo's nullable columns).
func StableNullable(s *string) uint32 {
	h := fnv.New32a()
	if s == nil {
		_, _ = h.Write([]byte{nullTag})
		return h.Sum32()
	}
	_, _ = h.Write([]byte{valueTag})
	_, _ = h.Write([]byte(*s))
	return h.Sum32()
}
