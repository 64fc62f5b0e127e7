// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/command"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
	"github.com/thereceipt/receipt-emulator/pkg/receiptformat"
)

// MaxFeedSize caps the body of POST /feed
const MaxFeedSize = command.MaxLoadSize

// Server is the API server
type Server struct {
	router   *gin.Engine
	queue    *printer.FeedQueue
	pool     *printer.ClientPool
	captures *capture.Store
	render   *renderer.Renderer
	executor *command.Executor
	upgrader websocket.Upgrader
	hub      *Hub
	logger   *zap.Logger

	httpServer *http.Server
}

// NewServer creates a new API server. captures may be nil.
func NewServer(queue *printer.FeedQueue, pool *printer.ClientPool, captures *capture.Store, render *renderer.Renderer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "api"))

	// Set Gin to release mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(recoveryMiddleware(logger), loggingMiddleware(logger), corsMiddleware())

	server := &Server{
		router:   router,
		queue:    queue,
		pool:     pool,
		captures: captures,
		render:   render,
		executor: command.NewExecutor(queue, pool, captures, render, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub:    newHub(logger),
		logger: logger,
	}

	server.setupRoutes()

	// Covers resets from POST /reset, POST /command and websocket commands
	queue.OnReset(server.BroadcastActivity)

	return server
}

func (s *Server) setupRoutes() {
	// Receipts
	s.router.GET("/receipts", s.handleGetReceipts)
	s.router.GET("/receipt/:id", s.handleGetReceipt)
	s.router.GET("/receipt/:id/png", s.handleGetReceiptPNG)
	s.router.GET("/receipt/:id/text", s.handleGetReceiptText)

	// Printer input and control
	s.router.POST("/feed", s.handleFeed)
	s.router.POST("/reset", s.handleReset)
	s.router.POST("/test", s.handleTest)

	// Jobs, sources and captures
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)
	s.router.GET("/clients", s.handleGetClients)
	s.router.GET("/captures", s.handleGetCaptures)
	s.router.POST("/capture/:id/replay", s.handleReplayCapture)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":     "ok",
			"clients":    s.pool.Count(),
			"ws_clients": s.hub.Count(),
		})
	})
}

// Handler exposes the router, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleGetReceipts returns the receipt stack. Blank receipts are left out
// unless ?all=true.
func (s *Server) handleGetReceipts(c *gin.Context) {
	pages, err := s.queue.Pages(c.Request.Context())
	if err != nil {
		c.JSON(500, gin.H{"error": fmt.Sprintf("failed to read receipts: %v", err)})
		return
	}

	stack := receiptformat.FromPages(pages)
	if c.Query("all") != "true" {
		stack.Receipts = stack.NonEmpty()
	}

	c.JSON(200, stack)
}

// page looks up a receipt and writes a 404 if it does not exist
func (s *Server) page(c *gin.Context) (emulator.Page, bool) {
	id := c.Param("id")

	page, found, err := s.queue.Page(c.Request.Context(), id)
	if err != nil {
		c.JSON(500, gin.H{"error": fmt.Sprintf("failed to read receipt: %v", err)})
		return emulator.Page{}, false
	}
	if !found {
		c.JSON(404, gin.H{"error": "receipt not found"})
		return emulator.Page{}, false
	}

	return page, true
}

// handleGetReceipt returns one receipt
func (s *Server) handleGetReceipt(c *gin.Context) {
	page, ok := s.page(c)
	if !ok {
		return
	}

	c.JSON(200, receiptformat.FromPage(page))
}

// handleGetReceiptPNG renders one receipt
func (s *Server) handleGetReceiptPNG(c *gin.Context) {
	page, ok := s.page(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "image/png")
	c.Status(200)
	if err := s.render.EncodePNG(c.Writer, page); err != nil {
		s.logger.Error("Failed to render receipt", zap.String("receipt_id", page.ID), zap.Error(err))
	}
}

// handleGetReceiptText returns the terminal preview of one receipt
func (s *Server) handleGetReceiptText(c *gin.Context) {
	page, ok := s.page(c)
	if !ok {
		return
	}

	c.String(200, renderer.PlainText(page))
}

// handleFeed accepts raw ESC/POS bytes as the request body
func (s *Server) handleFeed(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxFeedSize+1))
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("failed to read body: %v", err)})
		return
	}
	if len(data) == 0 {
		c.JSON(400, gin.H{"error": "request body is empty"})
		return
	}
	if len(data) > MaxFeedSize {
		c.JSON(413, gin.H{"error": fmt.Sprintf("body exceeds %d bytes", MaxFeedSize)})
		return
	}

	s.enqueue(c, "http:"+c.ClientIP(), data)
}

// handleTest prints the built-in test page
func (s *Server) handleTest(c *gin.Context) {
	s.enqueue(c, "test", escpos.TestReceipt())
}

func (s *Server) enqueue(c *gin.Context, source string, data []byte) {
	jobID, err := s.queue.Enqueue(source, data)
	if errors.Is(err, printer.ErrQueueStopped) {
		c.JSON(503, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"job_id":  jobID,
		"size":    len(data),
	})
}

// handleReset discards every receipt
func (s *Server) handleReset(c *gin.Context) {
	if err := s.queue.Reset(c.Request.Context()); err != nil {
		c.JSON(500, gin.H{"error": fmt.Sprintf("reset failed: %v", err)})
		return
	}

	c.JSON(200, gin.H{"success": true})
}

// handleGetJobs returns all feed jobs
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(200, gin.H{"jobs": s.queue.GetAllJobs()})
}

// handleGetJob returns a specific feed job
func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.queue.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(404, gin.H{"error": "job not found"})
		return
	}

	c.JSON(200, job)
}

// handleGetClients returns connected byte sources
func (s *Server) handleGetClients(c *gin.Context) {
	c.JSON(200, gin.H{"clients": s.pool.List()})
}

// handleGetCaptures returns captured raw inputs
func (s *Server) handleGetCaptures(c *gin.Context) {
	if s.captures == nil {
		c.JSON(200, gin.H{"captures": []capture.Entry{}})
		return
	}

	c.JSON(200, gin.H{"captures": s.captures.List()})
}

// handleReplayCapture feeds a captured input again
func (s *Server) handleReplayCapture(c *gin.Context) {
	if s.captures == nil {
		c.JSON(404, gin.H{"error": "capture is disabled"})
		return
	}

	jobID, err := s.captures.Replay(c.Param("id"), s.queue)
	if errors.Is(err, capture.ErrNotFound) {
		c.JSON(404, gin.H{"error": "capture not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"job_id":  jobID,
	})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.ExecuteContext(c.Request.Context(), req.Command)

	if result.Success {
		response := gin.H{
			"success": true,
		}
		if result.Message != "" {
			response["message"] = result.Message
		}
		for k, v := range result.Data {
			response[k] = v
		}
		c.JSON(200, response)
	} else {
		c.JSON(400, gin.H{
			"success": false,
			"error":   result.Error,
		})
	}
}

// Run starts the API server and blocks until it stops. A server stopped by
// Shutdown returns nil.
func (s *Server) Run(addr string, readTimeout, writeTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	s.logger.Info("API server listening", zap.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and closes every WebSocket client
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.DebugLevel
		if status >= 400 {
			level = zapcore.WarnLevel
		}
		if status >= 500 {
			level = zapcore.ErrorLevel
		}

		if ce := logger.Check(level, "API request"); ce != nil {
			ce.Write(
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Int("status_code", status),
				zap.Duration("duration", time.Since(start)),
			)
		}
	}
}

func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Stack("stacktrace"),
		)

		c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
	})
}
