// Package sysstats is a thin gopsutil wrapper used by cmd/shm-server
// to log host memory headroom before sizing a segment. It is purely
// advisory — nothing here ever blocks or fails segment creation.
package sysstats

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemorySnapshot reports host memory at the moment it was taken.
type MemorySnapshot struct {
	TotalBytes     uint64
	AvailableBytes uint64
	UsedPercent    float64
}

// ReadMemory queries the host's virtual memory stats via gopsutil.
func ReadMemory() (MemorySnapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return MemorySnapshot{}, fmt.Errorf("sysstats: read memory: %w", err)
	}
	return MemorySnapshot{
		TotalBytes:     vm.Total,
		AvailableBytes: vm.Available,
		UsedPercent:    vm.UsedPercent,
	}, nil
}

// FitsComfortably reports whether requestedBytes is a small enough
// fraction of currently available memory to not warrant a warning
// (conservatively, under half of it).
func (m MemorySnapshot) FitsComfortably(requestedBytes uint64) bool {
	return requestedBytes < m.AvailableBytes/2
}
