package button

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/button-monitor/internal/hardware"
)

// queueSource 同步入队的测试数据源
type queueSource struct {
	lines chan string
	down  chan struct{}
	once  sync.Once
}

func newQueueSource() *queueSource {
	return &queueSource{
		lines: make(chan string, 16),
		down:  make(chan struct{}),
	}
}

func (q *queueSource) push(lines ...string) {
	for _, l := range lines {
		q.lines <- l
	}
}

func (q *queueSource) disconnect() {
	q.once.Do(func() { close(q.down) })
}

func (q *queueSource) TryReadLine() (string, bool, error) {
	select {
	case <-q.down:
		return "", false, hardware.ErrDeviceUnavailable
	default:
	}
	select {
	case l := <-q.lines:
		return l, true, nil
	default:
		return "", false, nil
	}
}

func (q *queueSource) NextLine(ctx context.Context) (string, error) {
	select {
	case l := <-q.lines:
		return l, nil
	case <-q.down:
		return "", hardware.ErrDeviceUnavailable
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *queueSource) Connected() bool {
	select {
	case <-q.down:
		return false
	default:
		return true
	}
}

func (q *queueSource) Device() string { return "queue" }

func TestNewMonitorDefaults(t *testing.T) {
	m := NewMonitor(newQueueSource(), "", 0)
	assert.Equal(t, DefaultSentinel, m.sentinel)
	assert.Equal(t, DefaultWaitTimeout, m.WaitTimeout())
}

func TestStatusDeviceUnavailable(t *testing.T) {
	m := NewMonitor(hardware.Unavailable("/dev/ttyACM0"), "", 0)
	assert.Equal(t, ResultError, m.Status())
	assert.Equal(t, "ERROR: Arduino not connected", string(m.Status()))
}

func TestWaitForPressDeviceUnavailableIsImmediate(t *testing.T) {
	m := NewMonitor(hardware.Unavailable("/dev/ttyACM0"), "", 30*time.Second)

	start := time.Now()
	assert.Equal(t, ResultError, m.WaitForPress(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestStatusPressedConsumedOnce(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", 0)

	src.push("BUTTON_PRESSED")
	assert.Equal(t, ResultPressed, m.Status())
	assert.Equal(t, ResultNotPressed, m.Status())
}

func TestStatusDiscardsOtherLines(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", 0)

	src.push("HELLO")
	assert.Equal(t, ResultNotPressed, m.Status())

	// 该行已被消耗
	_, ok, err := src.TryReadLine()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusEmpty(t *testing.T) {
	m := NewMonitor(newQueueSource(), "", 0)
	assert.Equal(t, ResultNotPressed, m.Status())
}

func TestWaitForPressTimeout(t *testing.T) {
	budget := 300 * time.Millisecond
	m := NewMonitor(newQueueSource(), "", budget)

	start := time.Now()
	result := m.WaitForPress(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, ResultTimeout, result)
	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+500*time.Millisecond)
}

func TestWaitForPressFullBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("30s long-poll budget")
	}
	m := NewMonitor(newQueueSource(), "", 0)

	start := time.Now()
	result := m.WaitForPress(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, ResultTimeout, result)
	assert.GreaterOrEqual(t, elapsed, 30*time.Second)
	assert.Less(t, elapsed, 30*time.Second+500*time.Millisecond)
}

func TestWaitForPressReturnsPromptly(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", 5*time.Second)

	var pressedAt time.Time
	go func() {
		time.Sleep(150 * time.Millisecond)
		pressedAt = time.Now()
		src.push("BUTTON_PRESSED")
	}()

	result := m.WaitForPress(context.Background())
	returnedAt := time.Now()

	assert.Equal(t, ResultPressed, result)
	assert.Less(t, returnedAt.Sub(pressedAt), 100*time.Millisecond)
}

func TestWaitForPressSkipsOtherLines(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", time.Second)

	src.push("HELLO", "button_pressed", "BUTTON_PRESSED", "AFTER")
	assert.Equal(t, ResultPressed, m.WaitForPress(context.Background()))

	// 匹配后不再继续读取
	line, ok, err := src.TryReadLine()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "AFTER", line)
}

func TestWaitForPressCustomSentinel(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "PRESS", time.Second)

	src.push("BUTTON_PRESSED", "PRESS")
	assert.Equal(t, ResultPressed, m.WaitForPress(context.Background()))
}

func TestWaitForPressDisconnectMidWait(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", 5*time.Second)

	go func() {
		time.Sleep(50 * time.Millisecond)
		src.disconnect()
	}()

	start := time.Now()
	assert.Equal(t, ResultError, m.WaitForPress(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForPressClientGone(t *testing.T) {
	m := NewMonitor(newQueueSource(), "", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.Equal(t, ResultTimeout, m.WaitForPress(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestConcurrentWaitersFirstReaderWins(t *testing.T) {
	src := newQueueSource()
	m := NewMonitor(src, "", 500*time.Millisecond)

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.WaitForPress(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	src.push("BUTTON_PRESSED")
	wg.Wait()

	assert.ElementsMatch(t, []Result{ResultPressed, ResultTimeout}, results)
}
