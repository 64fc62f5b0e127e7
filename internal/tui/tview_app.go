// Package tui is the terminal viewer of the emulator: printed receipts, a
// text preview of the selected one, the feed queue and the log.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/thereceipt/receipt-emulator/internal/command"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
)

const refreshInterval = 2 * time.Second

// Info describes the emulator endpoints shown in the status panel
type Info struct {
	API      string
	Listener string
	Serial   string
	Version  string
	Columns  int // preview width in cells
}

// snapshot is everything the panels show, collected off the UI goroutine
type snapshot struct {
	pages   []emulator.Page
	jobs    []*printer.FeedJob
	clients int
}

// TViewApp is the main TUI application using tview
type TViewApp struct {
	App      *tview.Application
	queue    *printer.FeedQueue
	pool     *printer.ClientPool
	executor *command.Executor
	info     Info

	// Main layout
	flex *tview.Flex

	// Panels
	receiptList  *tview.List
	preview      *tview.TextView
	queueTable   *tview.Table
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	// State
	pages     []emulator.Page
	selected  string
	follow    bool
	maxLogs   int
	startTime time.Time

	logMu   sync.Mutex
	refresh chan struct{}
	redraw  chan struct{}
	done    chan struct{}
}

// NewTViewApp creates a new tview-based TUI
func NewTViewApp(queue *printer.FeedQueue, pool *printer.ClientPool, executor *command.Executor, info Info) *TViewApp {
	t := &TViewApp{
		App:       tview.NewApplication(),
		queue:     queue,
		pool:      pool,
		executor:  executor,
		info:      info,
		follow:    true,
		maxLogs:   500,
		startTime: time.Now(),
		refresh:   make(chan struct{}, 1),
		redraw:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	t.setupUI()
	return t
}

func (t *TViewApp) setupUI() {
	t.receiptList = tview.NewList().ShowSecondaryText(true)
	panel(t.receiptList.Box, "Receipts")
	t.receiptList.SetChangedFunc(func(index int, main, secondary string, shortcut rune) {
		if index >= 0 && index < len(t.visiblePages()) {
			page := t.visiblePages()[index]
			t.selected = page.ID
			t.follow = index == len(t.visiblePages())-1
			t.showPreview(page)
		}
	})

	t.preview = tview.NewTextView()
	panel(t.preview.Box, "Preview")
	t.preview.SetDynamicColors(false)
	t.preview.SetScrollable(true)
	t.preview.SetTextColor(Ink)
	t.preview.SetBackgroundColor(Paper)

	t.queueTable = tview.NewTable()
	panel(t.queueTable.Box, "Feed Queue")

	t.statusBox = tview.NewTextView()
	panel(t.statusBox.Box, "Emulator")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	panel(t.logsArea.Box, "Log")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetMaxLines(t.maxLogs)

	t.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Type a command (e.g., 'help')").
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				t.executeCommand(t.commandInput.GetText())
				t.commandInput.SetText("")
			}
		})

	// Left: receipts over queue and status; right: the paper
	side := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.receiptList, 0, 2, true).
		AddItem(t.queueTable, 0, 1, false).
		AddItem(t.statusBox, 8, 0, false)

	columns := t.info.Columns
	if columns <= 0 {
		columns = renderer.Columns(emulator.DefaultPaperProfile())
	}

	top := tview.NewFlex().
		AddItem(side, 0, 1, true).
		AddItem(t.preview, columns+2, 0, false)

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 0, 3, true).
		AddItem(t.logsArea, 0, 1, false).
		AddItem(t.commandInput, 1, 0, false)

	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if t.commandInput.HasFocus() {
			if event.Key() == tcell.KeyEsc {
				t.App.SetFocus(t.receiptList)
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyCtrlC:
			t.App.Stop()
			return nil
		case tcell.KeyTab:
			if t.receiptList.HasFocus() {
				t.App.SetFocus(t.preview)
			} else {
				t.App.SetFocus(t.receiptList)
			}
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case ':':
				t.App.SetFocus(t.commandInput)
				return nil
			case 'q':
				t.App.Stop()
				return nil
			case 't':
				t.executeCommand("test")
				return nil
			case 'x':
				t.executeCommand("reset")
				return nil
			}
		}
		return event
	})

	t.App.SetRoot(t.flex, true).SetFocus(t.receiptList)
}

// Run starts the TUI and blocks until it exits
func (t *TViewApp) Run() error {
	go t.refreshLoop()
	go t.drawLoop()
	t.RequestRefresh()

	t.AddLog("Receipt emulator ready. Press ':' for commands, 't' for a test page, 'q' to quit.", "info")

	defer close(t.done)
	return t.App.Run()
}

// Stop exits the TUI
func (t *TViewApp) Stop() {
	t.App.Stop()
}

// RequestRefresh schedules a panel refresh. It never blocks, so the feed
// queue worker can call it after every feed.
func (t *TViewApp) RequestRefresh() {
	select {
	case t.refresh <- struct{}{}:
	default:
	}
}

func (t *TViewApp) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		case <-t.refresh:
		}

		snap, err := t.collect()
		if err != nil {
			continue
		}
		t.App.QueueUpdateDraw(func() {
			t.apply(snap)
		})
	}
}

// drawLoop redraws after log output. Application.Draw waits for the UI
// goroutine, so it is never called from AddLog directly.
func (t *TViewApp) drawLoop() {
	for {
		select {
		case <-t.done:
			return
		case <-t.redraw:
			t.App.Draw()
		}
	}
}

// collect reads the emulator state; it must not run on the UI goroutine
func (t *TViewApp) collect() (snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), command.DefaultTimeout)
	defer cancel()

	pages, err := t.queue.Pages(ctx)
	if err != nil {
		return snapshot{}, err
	}

	return snapshot{
		pages:   pages,
		jobs:    t.queue.GetAllJobs(),
		clients: t.pool.Count(),
	}, nil
}

func (t *TViewApp) apply(snap snapshot) {
	t.applyReceipts(snap.pages)
	t.applyQueue(snap.jobs)
	t.applyStatus(snap)
}

// visiblePages returns the receipts that have something printed on them
func (t *TViewApp) visiblePages() []emulator.Page {
	out := make([]emulator.Page, 0, len(t.pages))
	for _, p := range t.pages {
		if !p.Empty {
			out = append(out, p)
		}
	}
	return out
}

func (t *TViewApp) applyReceipts(pages []emulator.Page) {
	t.pages = pages
	visible := t.visiblePages()

	selected := t.selected
	follow := t.follow

	t.receiptList.Clear()
	if len(visible) == 0 {
		t.preview.SetText("")
		t.receiptList.AddItem("No receipts printed", "", 0, nil)
		return
	}

	index := len(visible) - 1
	for i, page := range visible {
		summary := command.Summary(page)
		title := Truncate(fmt.Sprint(summary["title"]), 32)
		if title == "" {
			title = "(blank)"
		}
		details := fmt.Sprintf("%s • %d dots", page.ID[:8], page.PaperHeight())
		t.receiptList.AddItem(tview.Escape(title), details, 0, nil)

		if !follow && page.ID == selected {
			index = i
		}
	}

	// AddItem fires the changed func for the first item; restore the choice
	t.follow = follow
	t.receiptList.SetCurrentItem(index)
	t.selected = visible[index].ID
	t.showPreview(visible[index])
}

func (t *TViewApp) showPreview(page emulator.Page) {
	t.preview.SetTitle(fmt.Sprintf(" Receipt %s ", page.ID[:8]))
	t.preview.SetText(renderer.PlainText(page))
	t.preview.ScrollToBeginning()
}

func (t *TViewApp) applyQueue(jobs []*printer.FeedJob) {
	t.queueTable.Clear()

	headers := []string{"Status", "Source", "Bytes", "Age"}
	for i, h := range headers {
		t.queueTable.SetCell(0, i, tview.NewTableCell(h).
			SetTextColor(Secondary).
			SetAlign(tview.AlignCenter).
			SetSelectable(false))
	}

	// newest first
	for i := range jobs {
		job := jobs[len(jobs)-1-i]
		row := i + 1

		t.queueTable.SetCell(row, 0, tview.NewTableCell(StatusTag(job.Status)))
		t.queueTable.SetCell(row, 1, tview.NewTableCell(tview.Escape(Truncate(job.Source, 28))))
		t.queueTable.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", job.Size)).SetAlign(tview.AlignRight))
		t.queueTable.SetCell(row, 3, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))
	}
}

func (t *TViewApp) applyStatus(snap snapshot) {
	uptime := time.Since(t.startTime)

	serial := t.info.Serial
	if serial == "" {
		serial = "off"
	}

	t.statusBox.SetText(fmt.Sprintf(`%s● Running%s  %s
Uptime:   %dh %dm
Listener: %s
Serial:   %s
API:      %s
Sources:  %d connected • Receipts: %d`,
		tagSuccess, tagReset, t.info.Version,
		int(uptime.Hours()), int(uptime.Minutes())%60,
		t.info.Listener, serial, t.info.API,
		snap.clients, len(t.visiblePages())))
}

func (t *TViewApp) executeCommand(cmd string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}

	t.AddLog(fmt.Sprintf("> %s", cmd), "command")

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		t.App.Stop()
		return
	case "clear":
		t.logsArea.Clear()
		return
	case "refresh":
		t.RequestRefresh()
		return
	}

	// Commands wait on the feed queue, keep them off the UI goroutine
	go func() {
		result := t.executor.Execute(cmd)
		if !result.Success {
			t.AddLog(result.Error, "error")
			return
		}
		if result.Message != "" {
			t.AddLog(result.Message, "info")
		}
		t.RequestRefresh()
	}()
}

// AddLog adds a log entry. Safe for concurrent use.
func (t *TViewApp) AddLog(message string, level string) {
	message = strings.TrimRight(message, "\n")
	if message == "" {
		return
	}

	t.logMu.Lock()
	defer t.logMu.Unlock()

	timeStr := time.Now().Format("15:04:05")
	fmt.Fprintf(t.logsArea, "%s[%s] %s%s\n", LevelTag(level), timeStr, tview.Escape(message), tagReset)
	t.logsArea.ScrollToEnd()

	select {
	case t.redraw <- struct{}{}:
	default:
	}
}

// LogWriter creates an io.Writer that writes to the logs panel
func (t *TViewApp) LogWriter() io.Writer {
	return &tviewLogWriter{app: t}
}

type tviewLogWriter struct {
	app *TViewApp
}

func (w *tviewLogWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		level := "info"
		switch strings.SplitN(line, "\t", 2)[0] {
		case "ERROR", "DPANIC", "PANIC", "FATAL":
			level = "error"
		case "WARN":
			level = "warning"
		}
		w.app.AddLog(line, level)
	}
	return len(p), nil
}
