package models

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// NotificationID is the opaque 12-byte identifier spec §3 mandates,
// hex-serialised at the HTTP edge. No pack library produces this exact
// shape (ulid and google/uuid are both 16 bytes), so it's built the way
// Pachada-go_api_nosql's internal/pkg/id builds its own ids: a small,
// dedicated package around crypto/rand, here laid out like a Mongo
// ObjectID (4-byte timestamp, 5-byte random, 3-byte counter) since that
// is the shape the original implementation's document-store ids used.
type NotificationID [12]byte

var idCounter uint32

func init() {
	var b [4]byte
	_, _ = rand.Read(b[:])
	idCounter = binary.BigEndian.Uint32(b[:])
}

// NewNotificationID generates a fresh id: the current unix timestamp,
// 5 random bytes, and a process-wide monotonic counter, so ids created
// within the same second by the same process never collide.
func NewNotificationID() NotificationID {
	var id NotificationID

	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))

	var random [5]byte
	_, _ = rand.Read(random[:])
	copy(id[4:9], random[:])

	c := atomic.AddUint32(&idCounter, 1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)

	return id
}

// String returns the 24-char hex encoding used on the wire and in URLs.
func (id NotificationID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseNotificationID decodes a 24-char hex string back into an id.
func ParseNotificationID(s string) (NotificationID, error) {
	var id NotificationID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid notification id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid notification id %q: want %d bytes, got %d", s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
