package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v4/disk"
)

// DiskProbe reads free space from the file system holding Path.
type DiskProbe struct {
	Path string
}

// NewDiskProbe returns a probe for the file system holding path.
func NewDiskProbe(path string) (*DiskProbe, error) {
	if path == "" {
		return nil, errors.New("budget: probe path is empty")
	}
	return &DiskProbe{Path: path}, nil
}

// FreeSpaceGB implements FreeSpaceReader.
func (p *DiskProbe) FreeSpaceGB(ctx context.Context) (float64, error) {
	if p == nil || p.Path == "" {
		return 0, errors.New("budget: no path to read free space from")
	}
	usage, err := disk.UsageWithContext(ctx, p.Path)
	if err != nil {
		return 0, fmt.Errorf("budget: disk usage %s: %w", p.Path, err)
	}
	return float64(usage.Free) / units.GiB, nil
}
