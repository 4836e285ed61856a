package api

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/button-monitor/internal/button"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
	"github.com/wfunc/button-monitor/internal/middleware"
	"go.uber.org/zap"
)

//go:embed web/index.html
var indexHTML []byte

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

// Router API路由器
type Router struct {
	engine  *gin.Engine
	monitor *button.Monitor
	version string
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(monitor *button.Monitor, version string, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())

	router := &Router{
		engine:  engine,
		monitor: monitor,
		version: version,
		log:     log,
	}
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/", r.home)
	r.engine.GET("/button_status", r.buttonStatus)
	r.engine.GET("/wait_for_press", r.waitForPress)
	r.engine.GET("/health", r.healthCheck)

	r.engine.NoRoute(func(c *gin.Context) {
		err := apperrors.New(apperrors.ErrNotFound, c.Request.URL.Path)
		c.JSON(err.HTTPStatus(), apperrors.NewErrorResponse(err, middleware.GetRequestID(c)))
	})

	r.log.Debug("HTTP routes registered", zap.Int("routes", len(r.engine.Routes())))
}

// home 返回监视页面
func (r *Router) home(c *gin.Context) {
	c.Data(http.StatusOK, contentTypeHTML, indexHTML)
}

// buttonStatus 单次非阻塞检查
func (r *Router) buttonStatus(c *gin.Context) {
	r.writeResult(c, r.monitor.Status())
}

// waitForPress 长轮询等待按键
func (r *Router) waitForPress(c *gin.Context) {
	r.writeResult(c, r.monitor.WaitForPress(c.Request.Context()))
}

func (r *Router) writeResult(c *gin.Context, result button.Result) {
	c.Data(http.StatusOK, contentTypeText, []byte(result))
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	source := r.monitor.Source()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"device":    source.Device(),
		"connected": source.Connected(),
		"version":   r.version,
	})
}

// Handler 返回 HTTP 处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}
