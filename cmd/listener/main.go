// Command listener is a demo subscriber: it subscribes to a channel
// pattern and logs every delivery, whether it arrived inline over
// UDPM or via a shared-memory indirection. Adapted from the
// original's examples/{listener_raw,listener_proto}.cc, merged into
// one binary the same way cmd/talker merges its two originals.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hongxinliu/shame-go/internal/bus"
	"github.com/hongxinliu/shame-go/internal/config"
	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/shm"
)

func main() {
	addr := flag.String("addr", "239.255.67.76", "multicast group address")
	port := flag.Uint("port", 6776, "multicast group port")
	pattern := flag.String("pattern", "Shame", "channel pattern (full-string regex) to subscribe to")
	useProto := flag.Bool("proto", false, "decode deliveries as a protobuf message instead of raw bytes")
	logFile := flag.String("log-file", "", "rotated log file to capture output to, under -log-dir; empty logs to stdout")
	logDir := flag.String("log-dir", "/var/log/shame-go/demos", "base directory for -log-file")
	flag.Parse()

	b, err := bus.New(
		bus.WithMulticastAddr(*addr),
		bus.WithMulticastPort(uint16(*port)),
		bus.WithLogger(logging.Console("info")),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer b.Close()

	out, closeOut, err := openOutput(*logFile, *logDir)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer closeOut()

	count := 0
	onUDPM := func(channel string, data []byte) {
		count++
		fmt.Fprintf(out, "[%d] Received %d bytes on channel %s via udpm\n", count, len(data), channel)
	}
	onSHM := func(channel string, entry *shm.Entry) {
		count++
		entry.RLock()
		defer entry.RUnlock()
		fmt.Fprintf(out, "[%d] Received %d bytes on channel %s via shared memory\n", count, entry.Size(), channel)
	}

	if *useProto {
		_, err = bus.SubscribeProto(b, *pattern, func() *wrapperspb.BytesValue {
			return &wrapperspb.BytesValue{}
		}, func(channel string, msg *wrapperspb.BytesValue, viaSHM bool) {
			count++
			via := "udpm"
			if viaSHM {
				via = "shared memory"
			}
			fmt.Fprintf(out, "[%d] Received proto with %d bytes on channel %s via %s\n", count, len(msg.Value), channel, via)
		})
	} else {
		_, err = b.Subscribe(*pattern, onUDPM, onSHM)
	}
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	if err := b.Start(context.Background()); err != nil {
		fmt.Println("error:", err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

// openOutput returns the writer demo output goes to: the process's own
// stdout when logFile is empty, or a rotated capture file under logDir
// otherwise (see internal/logging.Capture).
func openOutput(logFile, logDir string) (io.Writer, func(), error) {
	if logFile == "" {
		return os.Stdout, func() {}, nil
	}
	cfg := &config.Config{Logging: config.LoggingConfig{BaseDir: logDir}}
	svcCfg := &config.ServiceLogging{Stdout: config.LogStreamConfig{File: logFile}}
	capture, err := logging.NewCapture("listener", cfg, svcCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open capture: %w", err)
	}
	return capture.Stdout(), func() { capture.Close() }, nil
}
