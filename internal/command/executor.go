// Package command provides the text command system shared by the viewer,
// the API and the CLI
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
)

// DefaultTimeout bounds how long a command waits for the feed queue
const DefaultTimeout = 5 * time.Second

// Executor executes commands
type Executor struct {
	queue    *printer.FeedQueue
	pool     *printer.ClientPool
	captures *capture.Store
	render   *renderer.Renderer
	logger   *zap.Logger

	scanPorts func() []string
	timeout   time.Duration
}

// NewExecutor creates a new command executor. captures may be nil when
// capture is disabled.
func NewExecutor(queue *printer.FeedQueue, pool *printer.ClientPool, captures *capture.Store, render *renderer.Renderer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		queue:     queue,
		pool:      pool,
		captures:  captures,
		render:    render,
		logger:    logger.With(zap.String("component", "command")),
		scanPorts: printer.ScanSerialPorts,
		timeout:   DefaultTimeout,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(cmdStr string) *Result {
	return e.ExecuteContext(context.Background(), cmdStr)
}

// ExecuteContext executes a command; ctx bounds waits on the feed queue
func (e *Executor) ExecuteContext(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failure("empty command")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	command := parts[0]
	args := parts[1:]

	e.logger.Debug("Executing command", zap.String("command", command), zap.Strings("args", args))

	switch command {
	case "load", "feed":
		return e.handleLoad(args)
	case "test":
		return e.handleTest(args)
	case "compose":
		return e.handleCompose(args)
	case "reset":
		return e.handleReset(ctx)
	case "receipt":
		return e.handleReceipt(ctx, args)
	case "job":
		return e.handleJob(args)
	case "capture":
		return e.handleCapture(args)
	case "client":
		return e.handleClient(args)
	case "ports":
		return e.handlePorts()
	case "help":
		return e.handleHelp(args)
	default:
		return failure(fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command))
	}
}

func failure(msg string) *Result {
	return &Result{
		Success: false,
		Error:   msg,
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
