// Command busd runs the shame bus daemon: UDP-multicast pub/sub with
// a shared-memory side channel for large payloads, a Prometheus
// metrics endpoint, and a gRPC health check.
package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/hongxinliu/shame-go/internal/bootstrap"
)

func main() {
	os.Exit(bootstrap.Run())
}
