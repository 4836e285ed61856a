package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/wfunc/button-monitor/internal/api"
	"github.com/wfunc/button-monitor/internal/button"
	"github.com/wfunc/button-monitor/internal/config"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
	"github.com/wfunc/button-monitor/internal/hardware"
	"github.com/wfunc/button-monitor/internal/logger"
	"go.uber.org/zap"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer // 启动提示输出

	source  hardware.LineSource
	closer  func() error
	monitor *button.Monitor
	http    *http.Server

	// 关闭控制
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Cleanup()

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Error("服务器启动失败", zap.Error(err))
		return err
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		return err
	}
	logger.Info("服务器已安全关闭")
	return nil
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		out:    os.Stdout,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 打开串口并启动HTTP服务
func (s *Server) Start() error {
	s.logger.Info("正在启动按键监控服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("config", config.ConfigFile()))

	s.openSource()
	s.monitor = button.NewMonitor(s.source, s.cfg.Button.Sentinel, s.cfg.Button.WaitTimeout)

	gin.SetMode(s.cfg.Server.Mode)
	router := api.NewRouter(s.monitor, Version, logger.WithModule("api"))

	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		// 关闭时取消所有挂起的长轮询
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "listen "+s.http.Addr)
	}

	fmt.Fprintf(s.out, "Starting button server on http://%s\n", s.http.Addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.http.Addr),
		zap.String("device", s.source.Device()),
		zap.Bool("connected", s.source.Connected()))
	return nil
}

// openSource 打开设备。失败时服务照常运行，所有请求返回设备未连接。
func (s *Server) openSource() {
	source, closer, err := openDevice(s.cfg)
	if err != nil {
		s.logger.Error("串口打开失败", zap.String("device", s.cfg.Serial.Port), zap.Error(err))
		fmt.Fprintf(s.out, "Error connecting to Arduino: %v\n", err)
		fmt.Fprintln(s.out, "Server will run, but button detection won't work")
		s.source = hardware.Unavailable(s.cfg.Serial.Port)
		return
	}

	s.source, s.closer = source, closer
	fmt.Fprintln(s.out, "Connected to Arduino!")
}

// openDevice 按配置打开模拟设备或真实串口
func openDevice(cfg *config.Config) (hardware.LineSource, func() error, error) {
	serialCfg := cfg.Serial

	if serialCfg.MockMode {
		mock := hardware.NewMockSource(cfg.Button.Sentinel, serialCfg.MockInterval, hardware.ReaderOptions{
			LineBuffer:   serialCfg.LineBuffer,
			PollInterval: serialCfg.PollInterval,
		})
		logger.WithModule("serial").Warn("使用模拟设备", zap.Duration("interval", serialCfg.MockInterval))
		return mock, mock.Close, nil
	}

	reader, err := hardware.Open(serialCfg)
	if err != nil {
		return nil, nil, err
	}
	return reader, reader.Close, nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 取消主上下文，挂起的长轮询立即返回
	s.cancel()

	var shutdownErr error
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("关闭超时，强制退出", zap.Error(err))
		shutdownErr = apperrors.Wrap(err, apperrors.ErrTimeout, "http shutdown")
	}
	s.wg.Wait()

	if s.closer != nil {
		if err := s.closer(); err != nil {
			s.logger.Error("关闭串口失败", zap.Error(err))
		}
	}

	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "同步日志失败: %v\n", err)
	}
	return shutdownErr
}

// reloadConfig 应用可热更新的配置项
func (s *Server) reloadConfig(newCfg *config.Config) {
	if newCfg.Log.Level != s.cfg.Log.Level {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	}
	logger.SetModuleLevels(newCfg.Log.Modules)
	s.cfg.Log = newCfg.Log

	s.logger.Info("配置重新加载完成")
}
