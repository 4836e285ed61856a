package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/button-monitor/internal/hardware"
	"github.com/wfunc/button-monitor/internal/logger"
)

// listenMockInterval 模拟模式下未配置间隔时的按键间隔
const listenMockInterval = time.Second

// listenCmd 打印设备发送的每一行，用于排查接线和固件
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print every line received from the device",
	Long: `Open the configured serial device and print each line it sends, with a
timestamp, until interrupted. Lines equal to the sentinel are marked.
With --mock a simulated device presses the button every second.

Example usage:
  button-monitor listen
  button-monitor listen --device auto --baud 115200
  button-monitor listen --mock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Cleanup()

		if cfg.Serial.MockMode && cfg.Serial.MockInterval <= 0 {
			cfg.Serial.MockInterval = listenMockInterval
		}

		source, closer, err := openDevice(cfg)
		if err != nil {
			return fmt.Errorf("open %s: %w", cfg.Serial.Port, err)
		}
		defer closer()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s at %d baud (Ctrl+C to stop)\n",
			source.Device(), cfg.Serial.BaudRate)
		return printLines(ctx, cmd.OutOrStdout(), source, cfg.Button.Sentinel)
	},
}

// printLines 逐行打印直到 ctx 结束或设备不可用
func printLines(ctx context.Context, w io.Writer, source hardware.LineSource, sentinel string) error {
	for {
		line, err := source.NextLine(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return fmt.Errorf("read %s: %w", source.Device(), err)
		}

		mark := ""
		if line == sentinel {
			mark = "  <- press"
		}
		fmt.Fprintf(w, "[%s] %s%s\n", time.Now().Format("15:04:05.000"), line, mark)
	}
}
