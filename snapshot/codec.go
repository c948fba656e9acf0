package snapshot

import (
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/studycache"
	"github.com/meigma/studycache/snapshot/internal/fb"
)

// Version is the snapshot format version written by this package.
const Version = 1

// maxDecodedSize bounds the memory a single snapshot may decode into.
const maxDecodedSize = 64 << 20

// Snapshot is a decoded snapshot.
type Snapshot struct {
	Version uint32
	SavedAt time.Time
	Sets    []studycache.SetRecord
}

// Codec encodes and decodes snapshots.
// A Codec is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec returns a Codec. Call Close to release its resources.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Close releases the encoder and decoder.
func (c *Codec) Close() {
	c.dec.Close()
	_ = c.enc.Close() //nolint:errcheck // EncodeAll-only encoders have nothing to flush
}

// Marshal encodes sets and returns the compressed bytes with their digest.
func (c *Codec) Marshal(sets []studycache.SetRecord, savedAt time.Time) ([]byte, digest.Digest, error) {
	raw := buildSnapshot(sets, savedAt)
	data := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	return data, digest.FromBytes(data), nil
}

// Unmarshal verifies data against expected and decodes it.
func (c *Codec) Unmarshal(data []byte, expected digest.Digest) (Snapshot, error) {
	if err := expected.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", studycache.ErrSnapshotCorrupt, err)
	}
	verifier := expected.Verifier()
	if _, err := verifier.Write(data); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", studycache.ErrSnapshotCorrupt, err)
	}
	if !verifier.Verified() {
		return Snapshot{}, fmt.Errorf("%w: digest mismatch, want %s", studycache.ErrSnapshotCorrupt, expected)
	}

	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: decompress: %v", studycache.ErrSnapshotCorrupt, err)
	}
	return parseSnapshot(raw)
}

// buildSnapshot serializes sets to FlatBuffers format.
func buildSnapshot(sets []studycache.SetRecord, savedAt time.Time) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Build records in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(sets))
	for i := len(sets) - 1; i >= 0; i-- {
		s := sets[i]
		idOffset := builder.CreateString(s.ID)
		titleOffset := builder.CreateString(s.Title)

		fb.SetRecordStart(builder)
		fb.SetRecordAddSetId(builder, idOffset)
		fb.SetRecordAddTitle(builder, titleOffset)
		fb.SetRecordAddBytes(builder, s.Bytes)
		fb.SetRecordAddItems(builder, s.Items)
		fb.SetRecordAddPinned(builder, s.Pinned)
		fb.SetRecordAddArchived(builder, s.Archived)
		fb.SetRecordAddLastOpenedNs(builder, toNanos(s.LastOpenedAt))
		fb.SetRecordAddLastStudiedNs(builder, toNanos(s.LastStudied))
		fb.SetRecordAddCreatedNs(builder, toNanos(s.CreatedAt))
		fb.SetRecordAddUpdatedNs(builder, toNanos(s.UpdatedAt))
		offsets[i] = fb.SetRecordEnd(builder)
	}

	fb.SnapshotStartSetsVector(builder, len(sets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	setsOffset := builder.EndVector(len(sets))

	fb.SnapshotStart(builder)
	fb.SnapshotAddVersion(builder, Version)
	fb.SnapshotAddSavedNs(builder, toNanos(savedAt))
	fb.SnapshotAddSets(builder, setsOffset)
	builder.Finish(fb.SnapshotEnd(builder))
	return builder.FinishedBytes()
}

func parseSnapshot(raw []byte) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = Snapshot{}
			err = fmt.Errorf("%w: parse: %v", studycache.ErrSnapshotCorrupt, r)
		}
	}()
	if len(raw) < flatbuffers.SizeUOffsetT {
		return Snapshot{}, fmt.Errorf("%w: snapshot too short", studycache.ErrSnapshotCorrupt)
	}

	root := fb.GetRootAsSnapshot(raw, 0)
	if v := root.Version(); v != Version {
		return Snapshot{}, fmt.Errorf("%w: unsupported version %d", studycache.ErrSnapshotCorrupt, v)
	}

	n := root.SetsLength()
	snap = Snapshot{
		Version: root.Version(),
		SavedAt: fromNanos(root.SavedNs()),
		Sets:    make([]studycache.SetRecord, 0, n),
	}
	var rec fb.SetRecord
	for i := range n {
		if !root.Sets(&rec, i) {
			return Snapshot{}, fmt.Errorf("%w: missing record %d", studycache.ErrSnapshotCorrupt, i)
		}
		snap.Sets = append(snap.Sets, studycache.SetRecord{
			ID:           string(rec.SetId()),
			Title:        string(rec.Title()),
			Bytes:        rec.Bytes(),
			Items:        rec.Items(),
			Pinned:       rec.Pinned(),
			Archived:     rec.Archived(),
			LastOpenedAt: fromNanos(rec.LastOpenedNs()),
			LastStudied:  fromNanos(rec.LastStudiedNs()),
			CreatedAt:    fromNanos(rec.CreatedNs()),
			UpdatedAt:    fromNanos(rec.UpdatedNs()),
		})
	}
	return snap, nil
}

// toNanos maps the zero time to 0 so it survives a round trip.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
