package command

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
	"github.com/thereceipt/receipt-emulator/pkg/receiptformat"
)

type nopCloser struct{ closed bool }

func (c *nopCloser) Close() error {
	c.closed = true
	return nil
}

func newTestExecutor(t *testing.T) (*Executor, *capture.Store, *printer.ClientPool) {
	t.Helper()

	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	queue := printer.NewFeedQueue(p, escpos.NewDecoder(p), nil, 0)
	t.Cleanup(queue.Stop)

	store, err := capture.New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("Failed to create capture store: %v", err)
	}

	pool := printer.NewClientPool()
	e := NewExecutor(queue, pool, store, renderer.New(), nil)
	e.scanPorts = func() []string { return []string{"/dev/ttyS9"} }
	return e, store, pool
}

func mustSucceed(t *testing.T, e *Executor, cmd string) *Result {
	t.Helper()

	result := e.Execute(cmd)
	if !result.Success {
		t.Fatalf("%q failed: %s", cmd, result.Error)
	}
	return result
}

func receiptList(t *testing.T, e *Executor) []map[string]interface{} {
	t.Helper()
	return mustSucceed(t, e, "receipt list").Data["receipts"].([]map[string]interface{})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"  help  ", []string{"help"}},
		{"receipt export last ./out.png", []string{"receipt", "export", "last", "./out.png"}},
		{`load "my receipt.bin"`, []string{"load", "my receipt.bin"}},
		{`load 'it"s.bin'`, []string{"load", `it"s.bin`}},
	}

	for _, tt := range tests {
		if got := parseCommand(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExecute_Unknown(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	if r := e.Execute(""); r.Success || r.Error != "empty command" {
		t.Errorf("Expected empty command error, got %+v", r)
	}
	if r := e.Execute("print"); r.Success || !strings.Contains(r.Error, "unknown command") {
		t.Errorf("Expected unknown command error, got %+v", r)
	}
	if r := e.Execute("receipt"); r.Success {
		t.Error("Expected usage error for bare receipt")
	}
}

func TestExecute_TestAndShow(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	mustSucceed(t, e, "test")

	list := receiptList(t, e)
	if len(list) != 1 {
		t.Fatalf("Expected 1 receipt, got %d", len(list))
	}
	if list[0]["title"] != "=== 테스트 영수증 ===" {
		t.Errorf("Unexpected title %v", list[0]["title"])
	}

	shown := mustSucceed(t, e, "receipt show")
	if !strings.Contains(shown.Message, "감사합니다!") {
		t.Errorf("Expected closing line in preview, got %q", shown.Message)
	}

	id := list[0]["id"].(string)
	byPrefix := mustSucceed(t, e, "receipt show "+id[:8])
	if byPrefix.Data["id"] != id {
		t.Errorf("Expected prefix lookup to find %s, got %v", id, byPrefix.Data["id"])
	}

	if r := e.Execute("receipt show nope"); r.Success {
		t.Error("Expected error for unknown receipt")
	}
}

func TestExecute_Compose(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	mustSucceed(t, e, `compose text:"{{store}} COFFEE" align:center bold:true divider cut --var store=BLUE`)

	list := receiptList(t, e)
	if len(list) != 1 {
		t.Fatalf("Expected 1 receipt, got %d", len(list))
	}
	if list[0]["title"] != "BLUE COFFEE" {
		t.Errorf("Unexpected title %v", list[0]["title"])
	}

	if r := e.Execute("compose text:{{missing}}"); r.Success {
		t.Error("Expected error for unknown variable")
	}
	if r := e.Execute("compose text:x --var broken"); r.Success {
		t.Error("Expected error for malformed variable")
	}
}

func TestExecute_ShowWithoutReceipts(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	if r := e.Execute("receipt show"); r.Success || !strings.Contains(r.Error, "no receipts") {
		t.Errorf("Expected no receipts error, got %+v", r)
	}
}

func TestExecute_Reset(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	mustSucceed(t, e, "test")
	mustSucceed(t, e, "reset")

	if n := len(receiptList(t, e)); n != 0 {
		t.Errorf("Expected no receipts after reset, got %d", n)
	}
}

func TestExecute_Load(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	path := filepath.Join(t.TempDir(), "order.bin")
	if err := os.WriteFile(path, []byte("\x1bE\x01ORDER 42\n\x1bi"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	r := mustSucceed(t, e, "load "+path)
	if r.Data["size"] != 14 {
		t.Errorf("Expected 14 bytes, got %v", r.Data["size"])
	}

	list := receiptList(t, e)
	if len(list) != 1 || list[0]["title"] != "ORDER 42" {
		t.Errorf("Unexpected receipts %v", list)
	}

	job := mustSucceed(t, e, "job status "+r.Data["job_id"].(string))
	if got := job.Data["job"].(*printer.FeedJob); got.Source != "load:"+path || got.Status != printer.StatusApplied {
		t.Errorf("Unexpected job %+v", got)
	}

	if r := e.Execute("load " + filepath.Join(t.TempDir(), "missing.bin")); r.Success {
		t.Error("Expected error for missing file")
	}
}

func TestExecute_LoadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/receipt.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("FROM URL\n"))
	}))
	defer srv.Close()

	e, _, _ := newTestExecutor(t)

	mustSucceed(t, e, "feed "+srv.URL+"/receipt.bin")
	if list := receiptList(t, e); len(list) != 1 || list[0]["title"] != "FROM URL" {
		t.Errorf("Unexpected receipts %v", list)
	}

	if r := e.Execute("load " + srv.URL + "/missing"); r.Success || !strings.Contains(r.Error, "HTTP 404") {
		t.Errorf("Expected HTTP 404 error, got %+v", r)
	}
}

func TestExecute_Export(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	dir := t.TempDir()

	mustSucceed(t, e, "test")

	for _, name := range []string{"receipt.png", "receipt.txt", "receipt.json"} {
		path := filepath.Join(dir, name)
		mustSucceed(t, e, "receipt export last "+path)

		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("Expected %s to be written: %v", name, err)
		}
	}

	stack, err := receiptformat.ParseFile(filepath.Join(dir, "receipt.json"))
	if err != nil {
		t.Fatalf("Exported snapshot does not parse: %v", err)
	}
	if len(stack.Receipts) != 1 || stack.Receipts[0].Elements[0].Text != "=== 테스트 영수증 ===" {
		t.Errorf("Unexpected snapshot %+v", stack.Receipts)
	}
}

func TestExecute_Jobs(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	mustSucceed(t, e, "test")
	mustSucceed(t, e, "receipt list") // waits for the feed to be applied

	jobs := mustSucceed(t, e, "job list").Data["jobs"].([]*printer.FeedJob)
	if len(jobs) != 1 || jobs[0].Source != "test" {
		t.Fatalf("Unexpected jobs %+v", jobs)
	}

	if r := mustSucceed(t, e, "job clear"); r.Message != "Cleared 1 applied job(s)" {
		t.Errorf("Unexpected message %q", r.Message)
	}
	if r := e.Execute("job status " + jobs[0].ID); r.Success {
		t.Error("Expected cleared job to be gone")
	}
}

func TestExecute_Capture(t *testing.T) {
	e, store, _ := newTestExecutor(t)

	entry, err := store.Save("tcp:127.0.0.1:5000", []byte("CAPTURED\n"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	list := mustSucceed(t, e, "capture list").Data["captures"].([]capture.Entry)
	if len(list) != 1 || list[0].ID != entry.ID {
		t.Fatalf("Unexpected captures %+v", list)
	}

	mustSucceed(t, e, "capture replay "+entry.ID)
	mustSucceed(t, e, "capture replay last")

	receipts := receiptList(t, e)
	if len(receipts) != 1 || receipts[0]["elements"] != 4 {
		t.Errorf("Expected two replayed lines with spacers, got %v", receipts)
	}

	mustSucceed(t, e, "capture remove "+entry.ID)
	if r := e.Execute("capture replay " + entry.ID); r.Success {
		t.Error("Expected removed capture to be gone")
	}
}

func TestExecute_CaptureDisabled(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	e.captures = nil

	if r := e.Execute("capture list"); r.Success || r.Error != "capture is disabled" {
		t.Errorf("Expected disabled error, got %+v", r)
	}
}

func TestExecute_Clients(t *testing.T) {
	e, _, pool := newTestExecutor(t)

	conn := &nopCloser{}
	id := pool.Add("tcp", "10.0.0.5:51234", conn)

	clients := mustSucceed(t, e, "client list").Data["clients"].([]printer.ClientInfo)
	if len(clients) != 1 || clients[0].Remote != "10.0.0.5:51234" {
		t.Fatalf("Unexpected clients %+v", clients)
	}

	mustSucceed(t, e, "client disconnect "+id)
	if !conn.closed || pool.Count() != 0 {
		t.Error("Expected client to be disconnected")
	}
}

func TestExecute_Ports(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	ports := mustSucceed(t, e, "ports").Data["ports"].([]string)
	if len(ports) != 1 || ports[0] != "/dev/ttyS9" {
		t.Errorf("Unexpected ports %v", ports)
	}
}

func TestLoadSource_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, make([]byte, MaxLoadSize+1), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := LoadSource(path); err == nil {
		t.Error("Expected size limit error")
	}
}
