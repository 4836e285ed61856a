package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/wfunc/button-monitor/internal/button"
	"github.com/wfunc/button-monitor/internal/config"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
	"github.com/wfunc/button-monitor/internal/logger"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "button-monitor",
	Short: "Serve the state of an Arduino push button over HTTP",
	Long: `button-monitor reads newline-terminated lines from an Arduino on a serial port
and reports BUTTON_PRESSED events to browsers over HTTP.

Endpoints:
  /                 monitor page that reloads when the button is pressed
  /button_status    PRESSED | NOT_PRESSED | ERROR: Arduino not connected
  /wait_for_press   long-poll: PRESSED | TIMEOUT | ERROR: Arduino not connected
  /health           JSON status

Example usage:
  button-monitor
  button-monitor --device /dev/ttyUSB0 --baud 115200
  button-monitor --mock`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file path")
	flags.String("host", "0.0.0.0", "HTTP listen host")
	flags.IntP("port", "p", 5000, "HTTP listen port")
	flags.StringP("device", "d", "/dev/ttyACM0", "serial device path, or \"auto\" to detect")
	flags.IntP("baud", "b", 9600, "serial baud rate")
	flags.Bool("mock", false, "use a simulated device instead of a serial port")
	flags.String("sentinel", button.DefaultSentinel, "line that signals a button press")
	flags.Duration("wait-timeout", button.DefaultWaitTimeout, "wait_for_press long-poll budget")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, listenCmd, versionCmd)
}

// loadConfig 加载配置并初始化日志
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func printVersion() {
	fmt.Printf("button-monitor\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build time: %s\n", BuildTime)
	fmt.Printf("Git commit: %s\n", GitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// exitCode 配置错误返回2，其余错误返回1
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case apperrors.IsCritical(err):
		return 2
	default:
		return 1
	}
}

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}
