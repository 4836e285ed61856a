package hardware

import (
	"io"
	"sync"
	"time"
)

// MockSource 模拟串口设备。
//
// 写入的数据经过与真实串口相同的读取循环，用于测试和无硬件调试。
type MockSource struct {
	*SerialReader

	w        *io.PipeWriter
	sentinel string
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMockSource 创建模拟设备。interval 大于0时按间隔自动发送 sentinel。
func NewMockSource(sentinel string, interval time.Duration, opts ReaderOptions) *MockSource {
	pr, pw := io.Pipe()
	m := &MockSource{
		SerialReader: NewSerialReader("mock", pr, opts),
		w:            pw,
		sentinel:     sentinel,
		stopCh:       make(chan struct{}),
	}

	if interval > 0 {
		m.wg.Add(1)
		go m.pressLoop(interval)
	}
	return m
}

// Write 写入原始字节，模拟设备发送数据
func (m *MockSource) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

// Send 发送一行数据（自动追加换行）
func (m *MockSource) Send(line string) error {
	_, err := m.Write([]byte(line + "\n"))
	return err
}

// Press 模拟一次按键
func (m *MockSource) Press() error {
	return m.Send(m.sentinel)
}

// Disconnect 模拟设备断开
func (m *MockSource) Disconnect() {
	m.w.CloseWithError(io.ErrClosedPipe)
	m.stop()
}

// Close 关闭模拟设备
func (m *MockSource) Close() error {
	err := m.SerialReader.Close()
	m.stop()
	m.w.Close()
	return err
}

func (m *MockSource) stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *MockSource) pressLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.Press(); err != nil {
				return
			}
		}
	}
}
