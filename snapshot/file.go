package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/studycache"
)

const (
	// FileName is the name of the snapshot file inside the store directory.
	FileName = "sets.snapshot"

	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// FileStore keeps the snapshot in a single file.
//
// The file holds the digest on its first line followed by the compressed
// snapshot. Saves write a temporary file and rename it into place, so a
// reader never sees a partial snapshot. A FileStore is safe for
// concurrent use.
type FileStore struct {
	dir     string
	dirPerm os.FileMode
	codec   *Codec
	now     func() time.Time
	logger  *slog.Logger
	mu      sync.Mutex
}

// Interface compliance.
var _ studycache.Store = (*FileStore)(nil)

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithDirPerm sets the permissions used when creating the store directory.
func WithDirPerm(mode os.FileMode) FileStoreOption {
	return func(s *FileStore) {
		s.dirPerm = mode
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore creates a store rooted at dir, creating dir if needed.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot: store dir is empty")
	}
	s := &FileStore{
		dir:     dir,
		dirPerm: defaultDirPerm,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	s.codec = codec
	return s, nil
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Close releases the store's codec.
func (s *FileStore) Close() error {
	s.codec.Close()
	return nil
}

// Load implements studycache.Store. A missing snapshot loads as empty.
func (s *FileStore) Load(ctx context.Context) ([]studycache.SetRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []studycache.SetRecord{}, nil
		}
		return nil, err
	}

	header, data, ok := bytes.Cut(raw, []byte("\n"))
	if !ok {
		return nil, fmt.Errorf("%w: missing digest header", studycache.ErrSnapshotCorrupt)
	}
	snap, err := s.codec.Unmarshal(data, digest.Digest(header))
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "snapshot read",
		slog.String("path", s.Path()),
		slog.Int("sets", len(snap.Sets)),
		slog.Time("saved_at", snap.SavedAt))
	return snap.Sets, nil
}

// Save implements studycache.Store.
func (s *FileStore) Save(ctx context.Context, sets []studycache.SetRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, dgst, err := s.codec.Marshal(sets, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := writeSnapshot(tmp, dgst, data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, defaultFilePerm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func writeSnapshot(f *os.File, dgst digest.Digest, data []byte) error {
	if _, err := f.WriteString(dgst.String() + "\n"); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
