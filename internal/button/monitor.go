package button

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/button-monitor/internal/hardware"
	"github.com/wfunc/button-monitor/internal/logger"
	"go.uber.org/zap"
)

// Result 返回给客户端的状态字符串
type Result string

const (
	ResultError      Result = "ERROR: Arduino not connected"
	ResultPressed    Result = "PRESSED"
	ResultNotPressed Result = "NOT_PRESSED"
	ResultTimeout    Result = "TIMEOUT"
)

const (
	DefaultSentinel    = "BUTTON_PRESSED"
	DefaultWaitTimeout = 30 * time.Second
)

// Monitor 按键监视器
type Monitor struct {
	source      hardware.LineSource
	sentinel    string
	waitTimeout time.Duration
	logger      *zap.Logger
}

// NewMonitor 创建按键监视器，sentinel 为空或 waitTimeout 非正时使用默认值
func NewMonitor(source hardware.LineSource, sentinel string, waitTimeout time.Duration) *Monitor {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Monitor{
		source:      source,
		sentinel:    sentinel,
		waitTimeout: waitTimeout,
		logger:      logger.WithModule("button"),
	}
}

// Source 返回底层数据源
func (m *Monitor) Source() hardware.LineSource {
	return m.source
}

// WaitTimeout 返回长轮询超时时间
func (m *Monitor) WaitTimeout() time.Duration {
	return m.waitTimeout
}

// Status 非阻塞检查一次。有数据时消耗一行，无论是否匹配。
func (m *Monitor) Status() Result {
	line, ok, err := m.source.TryReadLine()
	switch {
	case err != nil:
		return ResultError
	case ok && line == m.sentinel:
		m.logger.Info("button pressed", zap.String("via", "button_status"))
		return ResultPressed
	default:
		return ResultNotPressed
	}
}

// WaitForPress 等待按键直到超时。不匹配的行被读取并丢弃。
//
// 客户端断开或服务关闭导致 ctx 结束时立即返回 ResultTimeout，
// 不等到超时，因此已断开的请求不会读走之后的按键。
func (m *Monitor) WaitForPress(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, m.waitTimeout)
	defer cancel()

	start := time.Now()
	for {
		line, err := m.source.NextLine(ctx)
		switch {
		case errors.Is(err, hardware.ErrDeviceUnavailable):
			return ResultError
		case err != nil:
			if !errors.Is(err, context.DeadlineExceeded) {
				m.logger.Debug("wait aborted", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			}
			return ResultTimeout
		case line == m.sentinel:
			m.logger.Info("button pressed",
				zap.String("via", "wait_for_press"),
				zap.Duration("waited", time.Since(start)))
			return ResultPressed
		default:
			m.logger.Debug("ignoring line", zap.String("line", line))
		}
	}
}
