package biz

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// ChunkID returns the deterministic identity of a chunk revision: the
// UUID text form of the MD5 digest over "<sourceFile>:<position>:<content>".
// The same triple always yields the same ID, so re-ingesting unchanged
// documents is idempotent.
func ChunkID(sourceFile string, position int, content string) string {
	return digestUUID(fmt.Sprintf("%s:%d:%s", sourceFile, position, content))
}

// PositionKey returns the content-independent address of a chunk slot,
// digested over "<sourceFile>:<position>". It is the object ID under
// which a chunk is stored: when a document is edited in place, the new
// revision collides with the stored one at the same key, which is what
// lets ingestion classify the write as an update rather than an insert.
func PositionKey(sourceFile string, position int) string {
	return digestUUID(fmt.Sprintf("%s:%d", sourceFile, position))
}

// digestUUID renders the MD5 digest of s in canonical UUID text form,
// the ID syntax the store backends accept.
func digestUUID(s string) string {
	sum := md5.Sum([]byte(s))
	return uuid.UUID(sum).String()
}
