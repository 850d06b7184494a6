// Command talker is a demo publisher: it repeatedly publishes a fixed
// payload on a channel, either as raw bytes or, with -proto, as a
// protobuf message. Adapted from the original's
// examples/{talker_raw,talker_proto}.cc, merged into one binary since
// the wire/dispatch logic underneath is identical either way.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hongxinliu/shame-go/internal/bus"
	"github.com/hongxinliu/shame-go/internal/config"
	"github.com/hongxinliu/shame-go/internal/logging"
)

func main() {
	addr := flag.String("addr", "239.255.67.76", "multicast group address")
	port := flag.Uint("port", 6776, "multicast group port")
	channel := flag.String("channel", "Shame", "channel to publish on")
	useShm := flag.Bool("shm", true, "publish via shared memory instead of inline UDPM")
	useProto := flag.Bool("proto", false, "publish a protobuf message instead of raw bytes")
	sizeBytes := flag.Int("size", 1<<20, "payload size in bytes")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between publishes")
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

	payload := []byte(strings.Repeat("+", *sizeBytes))

	count := 0
	for {
		var n int
		var err error
		if *useProto {
			n, err = b.PublishProto(*channel, wrapperspb.Bytes(payload), *useShm)
		} else {
			n, err = b.Publish(*channel, payload, *useShm)
		}
		count++
		via := "udpm"
		if *useShm {
			via = "shared memory"
		}
		if err != nil {
			fmt.Fprintf(out, "[%d] publish failed: %v\n", count, err)
		} else {
			fmt.Fprintf(out, "[%d] Published %d bytes on channel %s via %s\n", count, n, *channel, via)
		}
		time.Sleep(*interval)
	}
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
	capture, err := logging.NewCapture("talker", cfg, svcCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open capture: %w", err)
	}
	return capture.Stdout(), func() { capture.Close() }, nil
}
