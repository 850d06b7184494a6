package sysstats

import "testing"

func TestFitsComfortably(t *testing.T) {
	snap := MemorySnapshot{AvailableBytes: 1000}
	if !snap.FitsComfortably(100) {
		t.Fatal("expected 100 of 1000 available to fit comfortably")
	}
	if snap.FitsComfortably(900) {
		t.Fatal("expected 900 of 1000 available to not fit comfortably")
	}
}

func TestReadMemoryReturnsPositiveTotal(t *testing.T) {
	snap, err := ReadMemory()
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if snap.TotalBytes == 0 {
		t.Fatal("expected nonzero total memory")
	}
}
