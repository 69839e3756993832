package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/reviewrag/core"
)

// Key prefixes for different data types
const (
	entryPrefix     = "revent"
	dimensionKey    = "revdim"
	checkpointInfix = "chkpt"
)

// makeEntryKey generates a key for an index entry by ID.
// Format: prefix:id (big endian so iteration follows ID order)
func makeEntryKey(id core.ID) []byte {
	prefix := entryPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// entryKeyPrefix is the iteration prefix for all entries.
func entryKeyPrefix() []byte {
	return []byte(entryPrefix + ":")
}

// makeCheckpointKey generates a key for an ingestion checkpoint.
func makeCheckpointKey(key string) []byte {
	return []byte(fmt.Sprintf("%s:%s", key, checkpointInfix))
}
