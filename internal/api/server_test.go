package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thereceipt/receipt-emulator/internal/capture"
	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
	"github.com/thereceipt/receipt-emulator/internal/printer"
	"github.com/thereceipt/receipt-emulator/internal/renderer"
	"github.com/thereceipt/receipt-emulator/pkg/receiptformat"
)

func newTestServer(t *testing.T) (*Server, *capture.Store) {
	t.Helper()

	p := emulator.NewPrinter(emulator.DefaultPaperProfile())
	queue := printer.NewFeedQueue(p, escpos.NewDecoder(p), nil, 0)
	t.Cleanup(queue.Stop)

	store, err := capture.New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("Failed to create capture store: %v", err)
	}

	return NewServer(queue, printer.NewClientPool(), store, renderer.New(), nil), store
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", w.Body.String(), err)
	}
}

func stack(t *testing.T, s *Server, query string) receiptformat.Stack {
	t.Helper()

	w := do(t, s, "GET", "/receipts"+query, nil)
	if w.Code != 200 {
		t.Fatalf("GET /receipts returned %d", w.Code)
	}

	var st receiptformat.Stack
	decode(t, w, &st)
	return st
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "GET", "/health", nil)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("Unexpected health %v", body)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	if w := do(t, s, "OPTIONS", "/feed", nil); w.Code != 204 {
		t.Errorf("Expected 204, got %d", w.Code)
	}
}

func TestFeedAndReceipts(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "POST", "/feed", []byte("\x1ba\x01HELLO\n\x1bi"))
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	st := stack(t, s, "")
	if len(st.Receipts) != 1 {
		t.Fatalf("Expected 1 non-empty receipt, got %d", len(st.Receipts))
	}
	if len(stack(t, s, "?all=true").Receipts) != 2 {
		t.Error("Expected the fresh receipt with ?all=true")
	}

	id := st.Receipts[0].ID

	w = do(t, s, "GET", "/receipt/"+id, nil)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var r receiptformat.Receipt
	decode(t, w, &r)
	if r.Elements[0].Text != "HELLO" || r.Elements[0].Align != "center" {
		t.Errorf("Unexpected receipt %+v", r)
	}

	w = do(t, s, "GET", "/receipt/"+id+"/text", nil)
	if w.Code != 200 || !strings.Contains(w.Body.String(), "HELLO") {
		t.Errorf("Unexpected text preview %d %q", w.Code, w.Body.String())
	}
}

func TestFeed_EmptyBody(t *testing.T) {
	s, _ := newTestServer(t)

	if w := do(t, s, "POST", "/feed", nil); w.Code != 400 {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestReceiptPNG(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, "POST", "/test", nil)
	st := stack(t, s, "")

	w := do(t, s, "GET", "/receipt/"+st.Receipts[0].ID+"/png", nil)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}

	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Invalid PNG: %v", err)
	}
	if img.Bounds().Dx() != 539 || img.Bounds().Dy() != st.Receipts[0].PaperHeight {
		t.Errorf("Unexpected image size %v", img.Bounds())
	}
}

func TestReceiptNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/receipt/missing", "/receipt/missing/png", "/receipt/missing/text"} {
		if w := do(t, s, "GET", path, nil); w.Code != 404 {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestReset(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, "POST", "/test", nil)
	if w := do(t, s, "POST", "/reset", nil); w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if n := len(stack(t, s, "").Receipts); n != 0 {
		t.Errorf("Expected no receipts after reset, got %d", n)
	}
}

func TestJobs(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "POST", "/feed", []byte("JOB\n"))
	var queued map[string]interface{}
	decode(t, w, &queued)
	jobID := queued["job_id"].(string)

	stack(t, s, "") // waits for the feed to be applied

	w = do(t, s, "GET", "/job/"+jobID, nil)
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var job printer.FeedJob
	decode(t, w, &job)
	if job.Status != printer.StatusApplied || job.Size != 4 || !strings.HasPrefix(job.Source, "http:") {
		t.Errorf("Unexpected job %+v", job)
	}

	var list struct {
		Jobs []printer.FeedJob `json:"jobs"`
	}
	decode(t, do(t, s, "GET", "/jobs", nil), &list)
	if len(list.Jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(list.Jobs))
	}

	if w := do(t, s, "GET", "/job/missing", nil); w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestCaptures(t *testing.T) {
	s, store := newTestServer(t)

	entry, err := store.Save("tcp:10.0.0.1:4000", []byte("REPLAYED\n"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var list struct {
		Captures []capture.Entry `json:"captures"`
	}
	decode(t, do(t, s, "GET", "/captures", nil), &list)
	if len(list.Captures) != 1 || list.Captures[0].ID != entry.ID {
		t.Fatalf("Unexpected captures %+v", list.Captures)
	}

	if w := do(t, s, "POST", "/capture/"+entry.ID+"/replay", nil); w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if st := stack(t, s, ""); len(st.Receipts) != 1 || st.Receipts[0].Elements[0].Text != "REPLAYED" {
		t.Errorf("Unexpected receipts after replay %+v", st.Receipts)
	}

	if w := do(t, s, "POST", "/capture/missing/replay", nil); w.Code != 404 {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestClients(t *testing.T) {
	s, _ := newTestServer(t)

	var list struct {
		Clients []printer.ClientInfo `json:"clients"`
	}
	decode(t, do(t, s, "GET", "/clients", nil), &list)
	if len(list.Clients) != 0 {
		t.Errorf("Expected no clients, got %d", len(list.Clients))
	}
}

func TestCommand(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "POST", "/command", []byte(`{"command":"test"}`))
	if w.Code != 200 {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, s, "POST", "/command", []byte(`{"command":"receipt list"}`))
	var body map[string]interface{}
	decode(t, w, &body)
	if receipts, ok := body["receipts"].([]interface{}); !ok || len(receipts) != 1 {
		t.Errorf("Unexpected command response %v", body)
	}

	if w := do(t, s, "POST", "/command", []byte(`{"command":"bogus"}`)); w.Code != 400 {
		t.Errorf("Expected 400 for unknown command, got %d", w.Code)
	}
	if w := do(t, s, "POST", "/command", []byte(`{}`)); w.Code != 400 {
		t.Errorf("Expected 400 for missing command, got %d", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	s, _ := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSMessage{Event: EventCommand, Data: map[string]interface{}{"command": "help"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Event != EventResponse || !strings.Contains(msg.Data["message"].(string), "Available Commands") {
		t.Errorf("Unexpected response %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Event: "print"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Event != EventError {
		t.Errorf("Expected error event, got %+v", msg)
	}

	s.BroadcastActivity()
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Event != EventActivity {
		t.Errorf("Expected activity event, got %+v", msg)
	}

	if s.hub.Count() != 1 {
		t.Errorf("Expected 1 websocket client, got %d", s.hub.Count())
	}
}

func TestReset_BroadcastsActivity(t *testing.T) {
	s, _ := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// The hub adds the client after the upgrade response is sent
	for i := 0; s.hub.Count() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}

	if w := do(t, s, "POST", "/command", []byte(`{"command":"reset"}`)); w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Event != EventActivity {
		t.Errorf("Expected activity after POST /command reset, got %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Event: EventCommand, Data: map[string]interface{}{"command": "reset"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events := map[string]int{}
	for i := 0; i < 2; i++ {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		events[msg.Event]++
	}
	if events[EventActivity] != 1 || events[EventResponse] != 1 {
		t.Errorf("Expected one activity and one response, got %v", events)
	}

	if w := do(t, s, "POST", "/reset", nil); w.Code != 200 {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Event != EventActivity {
		t.Errorf("Expected activity after POST /reset, got %+v", msg)
	}
}
