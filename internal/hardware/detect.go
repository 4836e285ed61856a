package hardware

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/wfunc/button-monitor/internal/logger"
	"go.uber.org/zap"
)

// devicePatterns 自动检测时依次尝试的设备路径模式
var devicePatterns = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
	"/dev/tty.usbmodem*",
}

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DetectDevice 自动查找串口设备，找不到时返回空字符串
func DetectDevice() string {
	return detectDevice(devicePatterns)
}

func detectDevice(patterns []string) string {
	log := logger.WithModule("serial")

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			log.Debug("扫描设备失败", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		log.Info("找到串口设备", zap.String("device", matches[0]), zap.Strings("candidates", matches))
		return matches[0]
	}
	return ""
}
