package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"github.com/thereceipt/receipt-emulator/internal/parser"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
	"github.com/thereceipt/receipt-emulator/pkg/receiptformat"
)

// MaxLoadSize caps a loaded receipt file
const MaxLoadSize = 16 << 20

// handleLoad feeds a raw ESC/POS file
// Usage: load <path|url>
func (e *Executor) handleLoad(args []string) *Result {
	if len(args) < 1 {
		return failure("usage: load <path|url>")
	}

	data, err := LoadSource(args[0])
	if err != nil {
		return failure(err.Error())
	}

	jobID, err := e.queue.Enqueue("load:"+args[0], data)
	if err != nil {
		return failure(fmt.Sprintf("failed to queue %s: %v", args[0], err))
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Queued %d bytes from %s", len(data), args[0]),
		Data: map[string]interface{}{
			"job_id": jobID,
			"size":   len(data),
		},
	}
}

// handleTest prints the built-in test page
// Usage: test
func (e *Executor) handleTest(args []string) *Result {
	jobID, err := e.queue.Enqueue("test", escpos.TestReceipt())
	if err != nil {
		return failure(fmt.Sprintf("failed to queue test page: %v", err))
	}

	return &Result{
		Success: true,
		Message: "Test page queued",
		Data: map[string]interface{}{
			"job_id": jobID,
		},
	}
}

// handleCompose encodes compose instructions and feeds the result
// Usage: compose <commands...> [--var key=value]
func (e *Executor) handleCompose(args []string) *Result {
	var pairs, instructions []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--var" && i+1 < len(args) {
			pairs = append(pairs, args[i+1])
			i++
			continue
		}
		instructions = append(instructions, args[i])
	}

	vars, err := parser.ParseVariables(pairs)
	if err != nil {
		return failure(err.Error())
	}

	data, err := parser.Compose(instructions, vars)
	if err != nil {
		return failure(fmt.Sprintf("compose failed: %v", err))
	}

	jobID, err := e.queue.Enqueue("compose", data)
	if err != nil {
		return failure(fmt.Sprintf("failed to queue receipt: %v", err))
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Composed receipt queued (%d bytes)", len(data)),
		Data: map[string]interface{}{
			"job_id": jobID,
			"size":   len(data),
		},
	}
}

// handleReset clears every receipt and re-initializes the printer
// Usage: reset
func (e *Executor) handleReset(ctx context.Context) *Result {
	if err := e.queue.Reset(ctx); err != nil {
		return failure(fmt.Sprintf("reset failed: %v", err))
	}

	e.logger.Info("Printer reset")
	return &Result{
		Success: true,
		Message: "Printer reset",
	}
}

// handleReceipt handles receipt commands
// Usage: receipt list | show [id] | export <id> <path>
func (e *Executor) handleReceipt(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return failure("usage: receipt <list|show|export>")
	}

	switch args[0] {
	case "list":
		pages, err := e.queue.Pages(ctx)
		if err != nil {
			return failure(fmt.Sprintf("failed to read receipts: %v", err))
		}

		list := make([]map[string]interface{}, 0, len(pages))
		for _, page := range pages {
			if page.Empty {
				continue
			}
			list = append(list, Summary(page))
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d receipt(s)", len(list)),
			Data: map[string]interface{}{
				"receipts": list,
			},
		}

	case "show":
		ref := ""
		if len(args) >= 2 {
			ref = args[1]
		}
		page, err := e.resolvePage(ctx, ref)
		if err != nil {
			return failure(err.Error())
		}
		return &Result{
			Success: true,
			Message: renderer.PlainText(page),
			Data:    Summary(page),
		}

	case "export":
		if len(args) < 3 {
			return failure("usage: receipt export <id> <path>")
		}
		page, err := e.resolvePage(ctx, args[1])
		if err != nil {
			return failure(err.Error())
		}
		if err := e.export(page, args[2]); err != nil {
			return failure(err.Error())
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Exported receipt %s to %s", page.ID, args[2]),
			Data: map[string]interface{}{
				"receipt_id": page.ID,
				"path":       args[2],
			},
		}

	default:
		return failure(fmt.Sprintf("unknown receipt subcommand: %s. Use: list, show, export", args[0]))
	}
}

func (e *Executor) export(page emulator.Page, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return receiptformat.FromPages([]emulator.Page{page}).SaveToFile(path)
	case ".txt":
		return os.WriteFile(path, []byte(renderer.PlainText(page)), 0644)
	default:
		if e.render == nil {
			return fmt.Errorf("renderer unavailable")
		}
		return e.render.SavePNG(path, page)
	}
}

// resolvePage finds a receipt by id or unique id prefix. An empty ref or
// "last" selects the most recent receipt with something printed on it.
func (e *Executor) resolvePage(ctx context.Context, ref string) (emulator.Page, error) {
	pages, err := e.queue.Pages(ctx)
	if err != nil {
		return emulator.Page{}, fmt.Errorf("failed to read receipts: %w", err)
	}

	if ref == "" || ref == "last" {
		for i := len(pages) - 1; i >= 0; i-- {
			if !pages[i].Empty {
				return pages[i], nil
			}
		}
		return emulator.Page{}, fmt.Errorf("no receipts printed yet")
	}

	var matches []emulator.Page
	for _, page := range pages {
		if page.ID == ref {
			return page, nil
		}
		if strings.HasPrefix(page.ID, ref) {
			matches = append(matches, page)
		}
	}

	switch len(matches) {
	case 0:
		return emulator.Page{}, fmt.Errorf("receipt not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return emulator.Page{}, fmt.Errorf("receipt id prefix %s is ambiguous (%d matches)", ref, len(matches))
	}
}

// Summary describes a receipt for listings
func Summary(page emulator.Page) map[string]interface{} {
	title := ""
	for _, e := range page.Elements {
		if line, ok := e.(*emulator.TextLine); ok {
			title = strings.TrimSpace(line.Text())
			break
		}
	}

	return map[string]interface{}{
		"id":           page.ID,
		"title":        title,
		"elements":     len(page.Elements),
		"print_height": page.PrintHeight(),
		"paper_height": page.PaperHeight(),
	}
}

// handleJob handles job commands
// Usage: job list | status <id> | clear
func (e *Executor) handleJob(args []string) *Result {
	if len(args) == 0 {
		return failure("usage: job <list|status|clear>")
	}

	switch args[0] {
	case "list":
		jobs := e.queue.GetAllJobs()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d job(s)", len(jobs)),
			Data: map[string]interface{}{
				"jobs": jobs,
			},
		}

	case "status":
		if len(args) < 2 {
			return failure("usage: job status <id>")
		}
		job, err := e.queue.GetJob(args[1])
		if err != nil {
			return failure(fmt.Sprintf("job not found: %s", args[1]))
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Job %s: %s (%d bytes from %s)", job.ID, job.Status, job.Size, job.Source),
			Data: map[string]interface{}{
				"job": job,
			},
		}

	case "clear":
		n := e.queue.ClearCompleted()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Cleared %d applied job(s)", n),
		}

	default:
		return failure(fmt.Sprintf("unknown job subcommand: %s. Use: list, status, clear", args[0]))
	}
}

// handleCapture handles capture commands
// Usage: capture list | replay <id|last> | remove <id>
func (e *Executor) handleCapture(args []string) *Result {
	if e.captures == nil {
		return failure("capture is disabled")
	}
	if len(args) == 0 {
		return failure("usage: capture <list|replay|remove>")
	}

	switch args[0] {
	case "list":
		entries := e.captures.List()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Found %d capture(s)", len(entries)),
			Data: map[string]interface{}{
				"captures": entries,
			},
		}

	case "replay":
		if len(args) < 2 {
			return failure("usage: capture replay <id|last>")
		}

		var (
			jobID string
			err   error
		)
		if args[1] == "last" {
			var data []byte
			if data, err = e.captures.Last(); err == nil {
				jobID, err = e.queue.Enqueue("replay:last", data)
			}
		} else {
			jobID, err = e.captures.Replay(args[1], e.queue)
		}
		if errors.Is(err, capture.ErrNotFound) {
			return failure(fmt.Sprintf("capture not found: %s", args[1]))
		}
		if err != nil {
			return failure(fmt.Sprintf("replay failed: %v", err))
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Replaying capture %s", args[1]),
			Data: map[string]interface{}{
				"job_id": jobID,
			},
		}

	case "remove":
		if len(args) < 2 {
			return failure("usage: capture remove <id>")
		}
		if !e.captures.Remove(args[1]) {
			return failure(fmt.Sprintf("capture not found: %s", args[1]))
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Removed capture %s", args[1]),
		}

	default:
		return failure(fmt.Sprintf("unknown capture subcommand: %s. Use: list, replay, remove", args[0]))
	}
}

// handleClient handles connected source commands
// Usage: client list | disconnect <id|all>
func (e *Executor) handleClient(args []string) *Result {
	if len(args) == 0 {
		return failure("usage: client <list|disconnect>")
	}

	switch args[0] {
	case "list":
		clients := e.pool.List()
		return &Result{
			Success: true,
			Message: fmt.Sprintf("%d client(s) connected", len(clients)),
			Data: map[string]interface{}{
				"clients": clients,
			},
		}

	case "disconnect":
		if len(args) < 2 {
			return failure("usage: client disconnect <id|all>")
		}
		if args[1] == "all" {
			n := e.pool.Count()
			e.pool.DisconnectAll()
			return &Result{
				Success: true,
				Message: fmt.Sprintf("Disconnected %d client(s)", n),
			}
		}
		if err := e.pool.Disconnect(args[1]); err != nil {
			return failure(err.Error())
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("Disconnected %s", args[1]),
		}

	default:
		return failure(fmt.Sprintf("unknown client subcommand: %s. Use: list, disconnect", args[0]))
	}
}

// handlePorts lists serial ports a virtual COM pair could be attached to
// Usage: ports
func (e *Executor) handlePorts() *Result {
	ports := e.scanPorts()
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d serial port(s)", len(ports)),
		Data: map[string]interface{}{
			"ports": ports,
		},
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp(args []string) *Result {
	helpText := `Available Commands:

  load <path|url>
    Feed a raw ESC/POS file to the printer (alias: feed)

  test
    Print the built-in test page

  compose <commands...> [--var key=value]
    Compose and print a receipt, e.g.
    compose text:"{{store}}" align:center size:2 divider feed:2 cut --var store=CAFE

  reset
    Discard every receipt and re-initialize the printer

  receipt list
    List printed receipts

  receipt show [id]
    Show a receipt as text (default: the last one)

  receipt export <id> <path>
    Save a receipt as .png, .json or .txt

  job list
    List received byte buffers

  job status <id>
    Get status of a specific job

  job clear
    Clear applied jobs

  capture list
    List captured raw inputs

  capture replay <id|last>
    Feed a captured input again

  capture remove <id>
    Delete a captured input

  client list
    List connected sources

  client disconnect <id|all>
    Close a source connection

  ports
    List serial ports

  help
    Show this help message

Examples:
  load ./samples/order.bin
  receipt show 3f2a
  receipt export last ./receipt.png
  capture replay last
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}

// LoadSource reads raw bytes from a file path or an http(s) URL
func LoadSource(pathOrURL string) ([]byte, error) {
	var r io.Reader

	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		resp, err := http.Get(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", pathOrURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch %s: HTTP %d", pathOrURL, resp.StatusCode)
		}
		r = resp.Body
	} else {
		f, err := os.Open(pathOrURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxLoadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", pathOrURL, err)
	}
	if len(data) > MaxLoadSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", pathOrURL, MaxLoadSize)
	}

	return data, nil
}

var _ capture.Sink = (*printer.FeedQueue)(nil)
