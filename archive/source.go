package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ContentSource supplies the content of a set for upload.
type ContentSource interface {
	ReadSet(ctx context.Context, id string) ([]byte, error)
}

// SizedSource is a ContentSource that reports the size of a set before
// reading it. The Dispatcher reserves in-flight bytes from SetSize and
// rejects content larger than the reported size.
type SizedSource interface {
	ContentSource
	SetSize(ctx context.Context, id string) (int64, error)
}

// ErrContentTooLarge is returned when set content exceeds the size reported
// for it.
var ErrContentTooLarge = errors.New("archive: set content larger than reported size")

// ContentSourceFunc adapts a function to ContentSource.
type ContentSourceFunc func(ctx context.Context, id string) ([]byte, error)

// ReadSet implements ContentSource.
func (f ContentSourceFunc) ReadSet(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// DirSource reads set content from files named by set id inside a
// directory. Ids that would resolve outside the directory are rejected.
type DirSource struct {
	root *os.Root
}

// OpenDirSource opens dir as a DirSource.
func OpenDirSource(dir string) (*DirSource, error) {
	if dir == "" {
		return nil, errors.New("archive: content dir is empty")
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open content dir: %w", err)
	}
	return &DirSource{root: root}, nil
}

// SetSize implements SizedSource.
func (d *DirSource) SetSize(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := d.root.Stat(id)
	if err != nil {
		return 0, fmt.Errorf("stat set %q: %w", id, err)
	}
	return info.Size(), nil
}

// ReadSet implements ContentSource. It reads at most the size the file had
// when opened and fails if the file grew since.
func (d *DirSource) ReadSet(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := d.root.Open(id)
	if err != nil {
		return nil, fmt.Errorf("open set %q: %w", id, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat set %q: %w", id, err)
	}
	size := info.Size()
	data, err := io.ReadAll(io.LimitReader(f, size+1))
	if err != nil {
		return nil, fmt.Errorf("read set %q: %w", id, err)
	}
	if int64(len(data)) > size {
		return nil, fmt.Errorf("read set %q: %w", id, ErrContentTooLarge)
	}
	return data, nil
}

// Close releases the directory handle.
func (d *DirSource) Close() error {
	return d.root.Close()
}
