package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/thereceipt/receipt-emulator/internal/command"
	"github.com/thereceipt/receipt-emulator/internal/parser"
)

const (
	defaultServerURL   = "http://localhost:12212"
	defaultPrinterAddr = "localhost:9100"
	requestTimeout     = 10 * time.Second
)

func main() {
	var serverURL, printerAddr string
	var useHTTP bool
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.StringVar(&printerAddr, "printer", defaultPrinterAddr, "Raw TCP printer address for send/compose")
	flag.StringVar(&printerAddr, "p", defaultPrinterAddr, "Raw TCP printer address (short)")
	flag.BoolVar(&useHTTP, "http", false, "Deliver send/compose bytes through POST /feed instead of TCP")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	c := &cli{
		serverURL:   strings.TrimSuffix(serverURL, "/"),
		printerAddr: printerAddr,
		useHTTP:     useHTTP,
		http:        &http.Client{Timeout: requestTimeout},
		out:         os.Stdout,
		errOut:      os.Stderr,
	}
	os.Exit(c.run(flag.Args()))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Receipt Emulator CLI

Usage:
  receipt-cli [flags] <command>

Flags:
  -s, -server <url>     Server URL (default: %s)
  -p, -printer <addr>   Raw TCP printer address (default: %s)
  -http                 Deliver bytes through the HTTP API instead of TCP

Commands:
  send <path|url>
    Send a raw ESC/POS file to the emulator, like a POS would

  compose <commands...> [--var key=value]
    Compose a receipt from command-line arguments and send it
    Compose commands:
      text:"Hello World"                 - Print a line
      text:"Title" size:2 align:center   - Line with properties (size, align,
                                           bold, underline, reverse, font)
      align:center                       - Set alignment for following lines
      divider [char:=]                   - Full-width rule
      feed:2                             - Feed lines
      cut                                - Cut paper (starts a new receipt)

  Any other command is executed by the server, e.g.
    test | reset | receipt list | receipt show [id] | receipt export <id> <path>
    job list | job status <id> | job clear | capture list | capture replay <id|last>
    client list | client disconnect <id|all> | ports | help

Examples:
  receipt-cli send ./samples/order.bin
  receipt-cli compose text:"{{store}}" align:center size:2 divider text:"Total 9,900" feed:3 cut --var store=CAFE
  receipt-cli receipt show last
  receipt-cli -s http://localhost:8080 job list

`, defaultServerURL, defaultPrinterAddr)
}

type cli struct {
	serverURL   string
	printerAddr string
	useHTTP     bool
	http        *http.Client
	out         io.Writer
	errOut      io.Writer
}

func (c *cli) run(args []string) int {
	switch args[0] {
	case "send":
		if len(args) < 2 {
			return c.fail("usage: send <path|url>")
		}
		data, err := command.LoadSource(args[1])
		if err != nil {
			return c.fail(err.Error())
		}
		return c.deliver(data)

	case "compose":
		var pairs, instructions []string
		for i := 1; i < len(args); i++ {
			if args[i] == "--var" && i+1 < len(args) {
				pairs = append(pairs, args[i+1])
				i++
				continue
			}
			instructions = append(instructions, args[i])
		}
		vars, err := parser.ParseVariables(pairs)
		if err != nil {
			return c.fail(err.Error())
		}
		data, err := parser.Compose(instructions, vars)
		if err != nil {
			return c.fail(fmt.Sprintf("compose failed: %v", err))
		}
		return c.deliver(data)
	}

	result := c.executeCommand(joinArgs(args))
	if !result.success() {
		return c.fail(result.errorText())
	}
	printResult(c.out, result)
	return 0
}

func (c *cli) fail(msg string) int {
	fmt.Fprintln(c.errOut, ErrorStyle.Render("Error: ")+msg)
	return 1
}

// deliver sends raw bytes to the emulator over TCP or POST /feed
func (c *cli) deliver(data []byte) int {
	if c.useHTTP {
		resp, err := c.http.Post(c.serverURL+"/feed", "application/octet-stream", bytes.NewReader(data))
		if err != nil {
			return c.fail(fmt.Sprintf("failed to connect to server: %v", err))
		}
		defer resp.Body.Close()

		result := decodeResult(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return c.fail(result.errorText())
		}
		fmt.Fprintf(c.out, "%s %d bytes queued as job %s\n",
			SuccessStyle.Render("✓"), len(data), IDStyle.Render(str(result["job_id"])))
		return 0
	}

	conn, err := net.DialTimeout("tcp", c.printerAddr, requestTimeout)
	if err != nil {
		return c.fail(fmt.Sprintf("failed to connect to printer: %v", err))
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(requestTimeout))
	if _, err := conn.Write(data); err != nil {
		return c.fail(fmt.Sprintf("failed to send: %v", err))
	}

	fmt.Fprintf(c.out, "%s sent %d bytes to %s\n", SuccessStyle.Render("✓"), len(data), c.printerAddr)
	return 0
}

// commandResult is the flattened POST /command response
type commandResult map[string]interface{}

func (r commandResult) success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

func (r commandResult) errorText() string {
	if msg := str(r["error"]); msg != "" {
		return msg
	}
	if msg := str(r["message"]); msg != "" {
		return msg
	}
	return "request failed"
}

func decodeResult(body io.Reader) commandResult {
	var result commandResult
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return commandResult{"error": fmt.Sprintf("failed to parse response: %v", err)}
	}
	return result
}

func (c *cli) executeCommand(cmd string) commandResult {
	body, err := json.Marshal(map[string]string{"command": cmd})
	if err != nil {
		return commandResult{"error": fmt.Sprintf("failed to marshal request: %v", err)}
	}

	resp, err := c.http.Post(c.serverURL+"/command", "application/json", bytes.NewReader(body))
	if err != nil {
		return commandResult{"error": fmt.Sprintf("failed to connect to server: %v", err)}
	}
	defer resp.Body.Close()

	return decodeResult(resp.Body)
}

// joinArgs rebuilds a command line, quoting arguments that contain spaces
func joinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") && !strings.Contains(a, `"`) {
			a = `"` + a + `"`
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}

func printResult(w io.Writer, r commandResult) {
	msg := str(r["message"])

	// receipt show: the message is the text preview
	if _, ok := r["print_height"]; ok && msg != "" {
		fmt.Fprintln(w, HeaderStyle.Render(short(str(r["id"]))))
		fmt.Fprintln(w, PaperStyle.Render(strings.TrimRight(msg, "\n")))
		return
	}

	if msg != "" {
		fmt.Fprintln(w, msg)
	}

	if receipts, ok := r["receipts"].([]interface{}); ok {
		fmt.Fprintln(w, HeaderStyle.Render("Receipts"))
		if len(receipts) == 0 {
			fmt.Fprintln(w, MutedStyle.Render("  none"))
		}
		for _, v := range receipts {
			rec, _ := v.(map[string]interface{})
			fmt.Fprintf(w, "  %s  %s %s\n",
				IDStyle.Render(short(str(rec["id"]))),
				str(rec["title"]),
				MutedStyle.Render(fmt.Sprintf("(%d elements, %d dots)", num(rec["elements"]), num(rec["paper_height"]))))
		}
	}

	if jobs, ok := r["jobs"].([]interface{}); ok {
		fmt.Fprintln(w, HeaderStyle.Render("Jobs"))
		for _, v := range jobs {
			job, _ := v.(map[string]interface{})
			printJob(w, job)
		}
	}
	if job, ok := r["job"].(map[string]interface{}); ok {
		printJob(w, job)
	}

	if captures, ok := r["captures"].([]interface{}); ok {
		fmt.Fprintln(w, HeaderStyle.Render("Captures"))
		for _, v := range captures {
			entry, _ := v.(map[string]interface{})
			fmt.Fprintf(w, "  %s  %-24s %6d bytes  %s\n",
				IDStyle.Render(short(str(entry["id"]))),
				str(entry["source"]),
				num(entry["size"]),
				MutedStyle.Render(str(entry["received_at"])))
		}
	}

	if clients, ok := r["clients"].([]interface{}); ok {
		fmt.Fprintln(w, HeaderStyle.Render("Clients"))
		if len(clients) == 0 {
			fmt.Fprintln(w, MutedStyle.Render("  none"))
		}
		for _, v := range clients {
			cl, _ := v.(map[string]interface{})
			fmt.Fprintf(w, "  %s  %-6s %-22s %d bytes\n",
				IDStyle.Render(short(str(cl["id"]))),
				str(cl["kind"]),
				str(cl["remote"]),
				num(cl["bytes"]))
		}
	}

	if ports, ok := r["ports"].([]interface{}); ok {
		fmt.Fprintln(w, HeaderStyle.Render("Serial ports"))
		for _, p := range ports {
			fmt.Fprintf(w, "  %s\n", str(p))
		}
	}

	if jobID := str(r["job_id"]); jobID != "" {
		fmt.Fprintf(w, "Job ID: %s\n", IDStyle.Render(jobID))
	}
}

func printJob(w io.Writer, job map[string]interface{}) {
	status := str(job["status"])
	fmt.Fprintf(w, "  %s  %s  %-24s %d bytes\n",
		IDStyle.Render(short(str(job["id"]))),
		statusStyle(status).Render(fmt.Sprintf("%-7s", status)),
		str(job["source"]),
		num(job["size"]))
}

func str(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func num(v interface{}) int {
	f, _ := v.(float64)
	return int(f)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
