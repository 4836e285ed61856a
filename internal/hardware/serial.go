package hardware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tarm/serial"
	"github.com/wfunc/button-monitor/internal/config"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
	"github.com/wfunc/button-monitor/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultLineBuffer   = 64
	defaultPollInterval = 100 * time.Millisecond
	defaultMaxLineLen   = 4096
)

// ReaderOptions 行读取器参数
type ReaderOptions struct {
	LineBuffer   int           // 已切分但未被读取的行数上限
	PollInterval time.Duration // 读取出错或立即返回EOF时的重试间隔
	MaxLineLen   int           // 单行最大字节数，超过后丢弃
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.LineBuffer <= 0 {
		o.LineBuffer = defaultLineBuffer
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.MaxLineLen <= 0 {
		o.MaxLineLen = defaultMaxLineLen
	}
	return o
}

// SerialReader 串口行读取器。
//
// 后台读取循环把串口字节流按 '\n' 切分成行，去掉行尾空白后放入有界通道。
// 通道满时读取循环阻塞，后续数据留在系统串口缓冲区中。
type SerialReader struct {
	device string
	port   Port
	opts   ReaderOptions
	logger *zap.Logger

	lines    chan string
	down     chan struct{}
	downOnce sync.Once
	closing  atomic.Bool
	done     chan struct{}
}

// NewSerialReader 基于已打开的端口创建读取器并启动读取循环
func NewSerialReader(device string, port Port, opts ReaderOptions) *SerialReader {
	opts = opts.withDefaults()
	r := &SerialReader{
		device: device,
		port:   port,
		opts:   opts,
		logger: logger.WithModule("serial").With(zap.String("device", device)),
		lines:  make(chan string, opts.LineBuffer),
		down:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r
}

// Open 按配置打开串口。port 为 "auto" 时自动检测设备。
func Open(cfg config.SerialConfig) (*SerialReader, error) {
	device := cfg.Port
	if device == "auto" {
		device = DetectDevice()
		if device == "" {
			return nil, apperrors.New(apperrors.ErrDeviceNotFound, "auto detect found no serial device")
		}
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		Parity:      parseParity(cfg.Parity),
		StopBits:    parseStopBits(cfg.StopBits),
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrSerialPortOpen, device)
	}

	logger.WithModule("serial").Info("串口连接成功",
		zap.String("device", device),
		zap.Int("baud_rate", cfg.BaudRate))

	return NewSerialReader(device, port, ReaderOptions{
		LineBuffer:   cfg.LineBuffer,
		PollInterval: cfg.PollInterval,
	}), nil
}

func parseParity(p string) serial.Parity {
	switch strings.ToUpper(p) {
	case "O", "ODD":
		return serial.ParityOdd
	case "E", "EVEN":
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}

func parseStopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.Stop2
	}
	return serial.Stop1
}

// TryReadLine 非阻塞读取一行
func (r *SerialReader) TryReadLine() (string, bool, error) {
	select {
	case <-r.down:
		return "", false, ErrDeviceUnavailable
	default:
	}

	select {
	case line := <-r.lines:
		return line, true, nil
	default:
		return "", false, nil
	}
}

// NextLine 阻塞读取一行
func (r *SerialReader) NextLine(ctx context.Context) (string, error) {
	select {
	case <-r.down:
		return "", ErrDeviceUnavailable
	default:
	}

	select {
	case line := <-r.lines:
		return line, nil
	case <-r.down:
		return "", ErrDeviceUnavailable
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Connected 设备是否可用
func (r *SerialReader) Connected() bool {
	select {
	case <-r.down:
		return false
	default:
		return true
	}
}

// Device 设备路径
func (r *SerialReader) Device() string {
	return r.device
}

// Close 关闭串口并等待读取循环退出
func (r *SerialReader) Close() error {
	if !r.closing.CompareAndSwap(false, true) {
		return nil
	}
	r.markDown()
	err := r.port.Close()
	<-r.done
	return err
}

func (r *SerialReader) markDown() {
	r.downOnce.Do(func() { close(r.down) })
}

// readLoop 读取循环
func (r *SerialReader) readLoop() {
	defer close(r.done)
	defer r.markDown()

	buf := make([]byte, 256)
	var pending []byte

	for {
		start := time.Now()
		n, err := r.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var ok bool
			if pending, ok = r.splitLines(pending); !ok {
				return
			}
		}
		if err == nil {
			continue
		}

		if r.closing.Load() {
			return
		}
		if isFatal(err) {
			r.logger.Error("串口设备断开连接", zap.Error(apperrors.Wrap(err, apperrors.ErrDeviceOffline, r.device)))
			return
		}

		// USB-CDC 设备在读超时时返回 EOF，属于正常情况。
		// 拔出后的 tty 同样只返回 EOF，此时设备节点已不存在。
		// 立即返回的错误按固定间隔重试，避免空转。
		if errors.Is(err, io.EOF) {
			if n == 0 && !SerialPortExists(r.device) {
				r.logger.Error("串口设备已移除", zap.Error(apperrors.Wrap(err, apperrors.ErrDeviceOffline, r.device)))
				return
			}
		} else {
			r.logger.Debug("读取串口数据错误", zap.Error(apperrors.Wrap(err, apperrors.ErrSerialPortRead, r.device)))
		}
		if wait := r.opts.PollInterval - time.Since(start); wait > 0 && n == 0 {
			select {
			case <-time.After(wait):
			case <-r.down:
				return
			}
		}
	}
}

// splitLines 切分出所有完整的行并投递，返回剩余的不完整数据。
// 设备已关闭时返回 false。
func (r *SerialReader) splitLines(pending []byte) ([]byte, bool) {
	consumed := 0
	for {
		idx := bytes.IndexByte(pending[consumed:], '\n')
		if idx < 0 {
			break
		}
		raw := pending[consumed : consumed+idx]
		consumed += idx + 1
		if !r.deliver(raw) {
			return nil, false
		}
	}

	rest := pending[consumed:]
	if len(rest) > r.opts.MaxLineLen {
		r.logger.Warn("丢弃过长的不完整行", zap.Int("bytes", len(rest)))
		return nil, true
	}
	if consumed == 0 {
		return pending, true
	}
	return append([]byte(nil), rest...), true
}

func (r *SerialReader) deliver(raw []byte) bool {
	if !utf8.Valid(raw) {
		r.logger.Warn("丢弃非法UTF-8数据", zap.Binary("raw", raw))
		return true
	}

	line := strings.TrimRightFunc(string(raw), unicode.IsSpace)
	logger.LogSerialLine(r.device, line)

	select {
	case r.lines <- line:
		return true
	case <-r.down:
		return false
	}
}

// isFatal 判断读取错误是否表示设备已断开
func isFatal(err error) bool {
	if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "device not configured") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "input/output error") ||
		strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "bad file descriptor")
}
