package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func newTestCLI(serverURL, printerAddr string) (*cli, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	return &cli{
		serverURL:   serverURL,
		printerAddr: printerAddr,
		http:        http.DefaultClient,
		out:         out,
		errOut:      errOut,
	}, out, errOut
}

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"receipt", "export", "abc", "/tmp/my receipt.png"})
	want := `receipt export abc "/tmp/my receipt.png"`
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRun_Command(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		received = req["command"]

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"jobs": []map[string]interface{}{
				{"id": "0123456789abcdef", "status": "applied", "source": "tcp:10.0.0.5:4100", "size": 120},
			},
		})
	}))
	defer srv.Close()

	c, out, _ := newTestCLI(srv.URL, "")
	if code := c.run([]string{"job", "list"}); code != 0 {
		t.Fatalf("Expected exit 0, got %d", code)
	}

	if received != "job list" {
		t.Errorf("Unexpected command sent %q", received)
	}
	text := out.String()
	if !strings.Contains(text, "01234567") || !strings.Contains(text, "applied") || !strings.Contains(text, "120 bytes") {
		t.Errorf("Unexpected output %q", text)
	}
}

func TestRun_CommandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"success":false,"error":"unknown command: bogus"}`))
	}))
	defer srv.Close()

	c, _, errOut := newTestCLI(srv.URL, "")
	if code := c.run([]string{"bogus"}); code != 1 {
		t.Fatalf("Expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: bogus") {
		t.Errorf("Unexpected error output %q", errOut.String())
	}
}

func TestRun_ShowPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"message":"  HELLO\n","id":"feedfacecafe","print_height":24}`))
	}))
	defer srv.Close()

	c, out, _ := newTestCLI(srv.URL, "")
	if code := c.run([]string{"receipt", "show"}); code != 0 {
		t.Fatalf("Expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "HELLO") || !strings.Contains(out.String(), "feedface") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRun_ComposeOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			got <- nil
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		got <- b
	}()

	c, out, errOut := newTestCLI("", ln.Addr().String())
	if code := c.run([]string{"compose", "text:{{name}}", "cut", "--var", "name=KIM"}); code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, errOut.String())
	}

	data := <-got
	if !bytes.Contains(data, []byte("KIM\n")) || !bytes.HasSuffix(data, []byte{0x1b, 'i'}) {
		t.Errorf("Unexpected bytes %q", data)
	}
	if !strings.Contains(out.String(), "sent") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRun_SendOverHTTP(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"job_id":"job-1"}`))
	}))
	defer srv.Close()

	path := t.TempDir() + "/order.bin"
	if err := os.WriteFile(path, []byte("ORDER\n\x1bi"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	c, out, errOut := newTestCLI(srv.URL, "")
	c.useHTTP = true
	if code := c.run([]string{"send", path}); code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, errOut.String())
	}

	if string(body) != "ORDER\n\x1bi" {
		t.Errorf("Unexpected body %q", body)
	}
	if !strings.Contains(out.String(), "job-1") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRun_SendMissingFile(t *testing.T) {
	c, _, _ := newTestCLI("", "")
	if code := c.run([]string{"send", "/nonexistent/receipt.bin"}); code != 1 {
		t.Errorf("Expected exit 1, got %d", code)
	}
}
