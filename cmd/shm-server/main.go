// Command shm-server bootstraps the shared-memory segment the bus
// uses for large-payload publishing. It owns the segment's lifecycle:
// create on startup, remove any prior segment of the same name first,
// remove it again on shutdown. Adapted from the original's
// shame_server.cc, which does the same two-line create/remove dance
// around boost::interprocess::managed_shared_memory.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/hongxinliu/shame-go/internal/catalog"
	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/shm"
	"github.com/hongxinliu/shame-go/internal/sysstats"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: %s NAME SIZE\n", os.Args[0])
		return 1
	}
	name := os.Args[1]
	size, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil || size <= 0 {
		fmt.Fprintf(os.Stderr, "invalid SIZE %q: %v\n", os.Args[2], err)
		return 1
	}

	log := logging.Console("info")
	dir := "/dev/shm"

	if snap, err := sysstats.ReadMemory(); err == nil {
		log.Info("host memory", "total_bytes", snap.TotalBytes, "available_bytes", snap.AvailableBytes)
		if !snap.FitsComfortably(uint64(size)) {
			log.Warn("requested segment size is large relative to available memory", "requested_bytes", size)
		}
	}

	if err := shm.Remove(dir, name); err != nil {
		log.Warn("failed to remove a prior segment of this name", "name", name, "error", err)
	}

	maxSlots := 256
	registry, err := shm.Create(name, shm.Config{
		Dir:          dir,
		MaxSlots:     maxSlots,
		SlotCapacity: int(size) / maxSlots,
	}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	log.Info("allocated shared memory segment", "name", name, "size_bytes", size)

	if cat, err := catalog.Open(catalogPath(dir)); err == nil {
		_ = cat.Put(catalog.Record{Name: name, SizeBytes: size, CreatedAt: time.Now()})
		cat.Close()
	} else {
		log.Warn("failed to record segment in catalog", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("exiting on signal", "signal", sig.String())

	registry.Close()
	if err := shm.Remove(dir, name); err != nil {
		log.Error("failed to remove segment on exit", "name", name, "error", err)
	} else {
		log.Info("removed shared memory segment", "name", name)
	}

	// The original's sig_handler calls exit(1) even on a clean SIGINT;
	// this mirrors that so supervising process managers see shutdown
	// as "stopped by signal", not "exited cleanly".
	return 1
}

func catalogPath(dir string) string {
	return filepath.Join(dir, "shm-server.catalog.db")
}
