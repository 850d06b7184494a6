package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/hongxinliu/shame-go/internal/logging"
	"github.com/hongxinliu/shame-go/internal/metrics"
	"github.com/hongxinliu/shame-go/internal/shm"
)

func newTestBus(t *testing.T, addr string, port uint16, shmName string) *Bus {
	t.Helper()
	shmCfg := shm.Config{Dir: t.TempDir(), MaxSlots: 8, SlotCapacity: 4096}
	if shmName != "" {
		// The bus only opens a segment; create it first, as
		// cmd/shm-server would.
		seg, err := shm.Create(shmName, shmCfg, logging.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { seg.Close() })
	}
	b, err := New(
		WithMulticastAddr(addr),
		WithMulticastPort(port),
		WithTTL(0),
		WithShmName(shmName),
		WithShmConfig(shmCfg),
		WithLogger(logging.Nop()),
	)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPublishSubscribeRawRoundTrip(t *testing.T) {
	b := newTestBus(t, "239.255.77.1", 18771, "")

	received := make(chan []byte, 1)
	_, err := b.Subscribe("Talk", func(channel string, data []byte) {
		received <- data
	}, nil)
	require.NoError(t, err)

	_, err = b.Publish("Talk", []byte("hello"), false)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, []byte("hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestSubscribePatternIsFullStringRegex(t *testing.T) {
	b := newTestBus(t, "239.255.77.2", 18772, "")

	var mu sync.Mutex
	var delivered []string
	_, err := b.Subscribe("Ta.*", func(channel string, data []byte) {
		mu.Lock()
		delivered = append(delivered, channel)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	_, err = b.Publish("Talk", []byte("x"), false)
	require.NoError(t, err)
	_, err = b.Publish("NotTalk", []byte("y"), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Talk"}, delivered)
}

func TestMultipleSubscribersFanOutInInsertionOrder(t *testing.T) {
	b := newTestBus(t, "239.255.77.3", 18773, "")

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := b.Subscribe("Chan", func(channel string, data []byte) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil)
		require.NoError(t, err)
	}

	_, err := b.Publish("Chan", []byte("x"), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t, "239.255.77.4", 18774, "")

	delivered := 0
	var mu sync.Mutex
	sub, err := b.Subscribe("Chan", func(channel string, data []byte) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	assert.True(t, b.Unsubscribe(sub))
	assert.False(t, b.Unsubscribe(sub), "unsubscribing twice should report false")

	_, err = b.Publish("Chan", []byte("x"), false)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, delivered)
}

func TestPublishSubscribeViaSharedMemory(t *testing.T) {
	b := newTestBus(t, "239.255.77.5", 18775, fmt.Sprintf("test-shm-%s", t.Name()))

	received := make(chan []byte, 1)
	_, err := b.Subscribe("BigData", nil, func(channel string, entry *shm.Entry) {
		data, err := entry.Bytes()
		require.NoError(t, err)
		received <- data
	})
	require.NoError(t, err)

	payload := make([]byte, 2048)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = b.Publish("BigData", payload, true)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shm-indirected delivery")
	}
}

func TestPublishViaSharedMemoryWithoutShmConfiguredLogsAndReturnsZero(t *testing.T) {
	b := newTestBus(t, "239.255.77.6", 18776, "")

	n, err := b.Publish("Chan", []byte("x"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPublishIncrementsMetrics(t *testing.T) {
	m := metrics.New()
	b, err := New(
		WithMulticastAddr("239.255.77.8"),
		WithMulticastPort(18778),
		WithTTL(0),
		WithShmName(""),
		WithLogger(logging.Nop()),
		WithMetrics(m),
	)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { b.Close() })

	received := make(chan []byte, 1)
	_, err = b.Subscribe("Chan", func(channel string, data []byte) {
		received <- data
	}, nil)
	require.NoError(t, err)

	_, err = b.Publish("Chan", []byte("hello"), false)
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PacketsSent))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PacketsReceived) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DispatchFanouts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeProtoDecodesMessages(t *testing.T) {
	b := newTestBus(t, "239.255.77.7", 18777, "")

	received := make(chan string, 1)
	_, err := SubscribeProto(b, "Greeting", func() *wrapperspb.StringValue {
		return &wrapperspb.StringValue{}
	}, func(channel string, msg *wrapperspb.StringValue, viaSHM bool) {
		received <- msg.Value
		assert.False(t, viaSHM)
	})
	require.NoError(t, err)

	_, err = b.PublishProto("Greeting", wrapperspb.String("hi there"), false)
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, "hi there", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decoded message")
	}
}
