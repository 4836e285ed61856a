package hardware

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable 设备未连接。启动时打开失败与运行中断开都归为此错误。
var ErrDeviceUnavailable = errors.New("serial device unavailable")

// LineSource 按行读取的数据源。
//
// 同一数据源可被多个请求并发读取，每一行只会交给一个读取方：
// 并发等待的请求之间谁先读到就归谁，不做广播。
type LineSource interface {
	// TryReadLine 非阻塞读取一行。没有完整的行时 ok 为 false。
	TryReadLine() (line string, ok bool, err error)
	// NextLine 阻塞直到读到一行、ctx 结束或设备不可用。
	NextLine(ctx context.Context) (string, error)
	// Connected 设备当前是否可用
	Connected() bool
	// Device 设备路径
	Device() string
}

// unavailable 设备打开失败时使用的数据源
type unavailable struct {
	device string
}

// Unavailable 返回一个始终报告 ErrDeviceUnavailable 的数据源
func Unavailable(device string) LineSource {
	return unavailable{device: device}
}

func (u unavailable) TryReadLine() (string, bool, error) {
	return "", false, ErrDeviceUnavailable
}

func (u unavailable) NextLine(context.Context) (string, error) {
	return "", ErrDeviceUnavailable
}

func (u unavailable) Connected() bool { return false }

func (u unavailable) Device() string { return u.device }
