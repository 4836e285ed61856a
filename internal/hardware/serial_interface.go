package hardware

import "io"

// Port 串口接口（便于测试时替换为管道或模拟端口）
type Port interface {
	io.ReadCloser
}
