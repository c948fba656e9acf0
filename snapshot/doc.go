//go:generate flatc --go --go-namespace fb -o internal schema/snapshot.fbs

// Package snapshot persists the cached set metadata of a
// [github.com/meigma/studycache.Manager].
//
// A snapshot is a FlatBuffers-encoded list of set records, compressed with
// zstd and addressed by the sha256 digest of the compressed bytes. The
// digest is checked on every load, so a torn or tampered snapshot is
// reported as [studycache.ErrSnapshotCorrupt] instead of being restored.
//
// [FileStore] keeps the snapshot in a single file written atomically.
// The redisstore subpackage keeps it in a Redis hash.
package snapshot
