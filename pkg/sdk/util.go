package sdk

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

var idCounter atomic.Uint64

// generateID returns a 32-hex-char identifier ordered by creation time:
// nanosecond timestamp, then a process-local counter, then four random
// bytes. WorkItem and session IDs sort chronologically; the creation-order
// tie-break in specparse.PickNext compares CreatedAt, not IDs.
func generateID() string {
	var id [16]byte
	binary.BigEndian.PutUint64(id[0:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(id[8:12], uint32(idCounter.Add(1)))
	_, _ = rand.Read(id[12:])
	return hex.EncodeToString(id[:])
}

// GenerateID returns a fresh identifier; see generateID for its layout.
func GenerateID() string {
	return generateID()
}
