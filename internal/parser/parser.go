// Package parser turns compose instructions into ESC/POS byte streams
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/thereceipt/receipt-emulator/internal/emulator"
	"github.com/thereceipt/receipt-emulator/internal/escpos"
)

// DefaultColumns is the Font A column count of 80mm paper
const DefaultColumns = 42

// Command is one compose instruction, e.g. text:"Total" align:right bold:true
type Command struct {
	Type  string
	Value string
	Props map[string]string
}

var commandTypes = []string{"text", "feed", "align", "cut", "divider", "init"}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// ParseArgs groups arguments into commands. Each command starts with a
// command type ("text:...", "feed:2", "cut") and is followed by its
// name:value properties.
func ParseArgs(args []string) ([]Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no compose arguments provided")
	}

	var commands []Command
	var current *Command

	for _, arg := range args {
		if isCommandStart(arg) && !isLineProperty(current, arg) {
			if current != nil {
				commands = append(commands, *current)
			}
			current = parseCommandStart(arg)
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("unexpected argument '%s' (expected command start)", arg)
		}

		name, value, ok := strings.Cut(arg, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("property must be in format 'name:value', got: %s", arg)
		}
		current.Props[name] = strings.Trim(value, `"'`)
	}

	if current != nil {
		commands = append(commands, *current)
	}

	return commands, nil
}

// isLineProperty reports whether arg styles the open text or divider line.
// The first "align:" after such a line is its property; anywhere else it
// starts a standalone align command.
func isLineProperty(current *Command, arg string) bool {
	if current == nil || !strings.HasPrefix(arg, "align:") {
		return false
	}
	if _, set := current.Props["align"]; set {
		return false
	}
	return current.Type == "text" || current.Type == "divider"
}

func isCommandStart(arg string) bool {
	for _, t := range commandTypes {
		if arg == t || strings.HasPrefix(arg, t+":") {
			return true
		}
	}
	return false
}

func parseCommandStart(arg string) *Command {
	cmdType, value, _ := strings.Cut(arg, ":")
	return &Command{
		Type:  cmdType,
		Value: strings.Trim(value, `"'`),
		Props: make(map[string]string),
	}
}

// Parser executes compose commands against an ESC/POS encoder
type Parser struct {
	encoder   *escpos.Encoder
	columns   int
	variables map[string]string
}

// New creates a parser writing text in enc. A nil enc uses the decoder's
// default code page.
func New(enc encoding.Encoding, columns int) *Parser {
	if enc == nil {
		enc = escpos.DefaultEncoding
	}
	if columns <= 0 {
		columns = DefaultColumns
	}
	return &Parser{
		encoder:   escpos.NewEncoderWithEncoding(enc),
		columns:   columns,
		variables: make(map[string]string),
	}
}

// SetVariables sets the values substituted for {{name}} placeholders
func (p *Parser) SetVariables(vars map[string]string) {
	p.variables = vars
}

// Execute encodes the commands. The stream starts with ESC @ so the
// printer state of earlier jobs does not leak into the composed receipt.
func (p *Parser) Execute(commands []Command) ([]byte, error) {
	p.encoder.Reset()
	p.encoder.Initialize()

	for i := range commands {
		if err := p.executeCommand(&commands[i]); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i+1, commands[i].Type, err)
		}
	}

	out := make([]byte, len(p.encoder.Bytes()))
	copy(out, p.encoder.Bytes())
	return out, nil
}

func (p *Parser) executeCommand(cmd *Command) error {
	switch cmd.Type {
	case "init":
		p.encoder.Initialize()
	case "cut":
		p.encoder.Cut()
	case "feed":
		lines := 1
		if cmd.Value != "" {
			n, err := strconv.Atoi(cmd.Value)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid feed lines value: %s", cmd.Value)
			}
			lines = n
		}
		p.encoder.Feed(lines)
	case "align":
		j, err := parseAlign(cmd.Value)
		if err != nil {
			return err
		}
		p.encoder.SetAlignment(j)
	case "divider":
		char := cmd.Props["char"]
		if char == "" {
			char = "-"
		}
		restore, err := p.lineAlign(cmd)
		if err != nil {
			return err
		}
		p.encoder.WriteLine(strings.Repeat(char, p.columns/len([]rune(char))))
		if restore != nil {
			restore()
		}
	case "text":
		return p.executeText(cmd)
	default:
		return fmt.Errorf("unknown command type")
	}
	return nil
}

// executeText prints one line. Properties apply to that line only.
func (p *Parser) executeText(cmd *Command) error {
	text, err := p.resolve(cmd.Value)
	if err != nil {
		return err
	}

	var restore []func()

	undoAlign, err := p.lineAlign(cmd)
	if err != nil {
		return err
	}
	if undoAlign != nil {
		restore = append(restore, undoAlign)
	}
	if v, ok := cmd.Props["size"]; ok {
		w, h, err := parseSize(v)
		if err != nil {
			return err
		}
		p.encoder.SetTextSize(w, h)
		restore = append(restore, func() { p.encoder.SetTextSize(1, 1) })
	}
	if v, ok := cmd.Props["font"]; ok {
		switch strings.ToLower(v) {
		case "a":
			p.encoder.SelectFont(emulator.FontA)
		case "b":
			p.encoder.SelectFont(emulator.FontB)
		default:
			return fmt.Errorf("invalid font: %s", v)
		}
		restore = append(restore, func() { p.encoder.SelectFont(emulator.FontA) })
	}

	toggles := []struct {
		name string
		set  func(bool) *escpos.Encoder
	}{
		{"bold", p.encoder.SetBold},
		{"underline", p.encoder.SetUnderline},
		{"reverse", p.encoder.SetReverse},
	}
	for _, tg := range toggles {
		v, ok := cmd.Props[tg.name]
		if !ok {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %s", tg.name, v)
		}
		if on {
			set := tg.set
			set(true)
			restore = append(restore, func() { set(false) })
		}
	}

	p.encoder.WriteLine(text)

	for i := len(restore) - 1; i >= 0; i-- {
		restore[i]()
	}
	return nil
}

// lineAlign applies an align property and returns the func that restores
// left alignment, or nil when the line has none
func (p *Parser) lineAlign(cmd *Command) (func(), error) {
	v, ok := cmd.Props["align"]
	if !ok {
		return nil, nil
	}
	j, err := parseAlign(v)
	if err != nil {
		return nil, err
	}
	p.encoder.SetAlignment(j)
	return func() { p.encoder.SetAlignment(emulator.JustifyLeft) }, nil
}

// resolve substitutes {{name}} placeholders
func (p *Parser) resolve(text string) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := p.variables[name]
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("unknown variable: %s", missing)
	}
	return out, nil
}

func parseAlign(v string) (emulator.Justification, error) {
	switch strings.ToLower(v) {
	case "left":
		return emulator.JustifyLeft, nil
	case "center":
		return emulator.JustifyCenter, nil
	case "right":
		return emulator.JustifyRight, nil
	default:
		return emulator.JustifyLeft, fmt.Errorf("invalid alignment: %s", v)
	}
}

// parseSize accepts "2" for 2x2 or "WxH"
func parseSize(v string) (int, int, error) {
	ws, hs, found := strings.Cut(strings.ToLower(v), "x")
	if !found {
		hs = ws
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w < 1 || w > 8 || h < 1 || h > 8 {
		return 0, 0, fmt.Errorf("invalid size: %s (expected 1-8 or WxH)", v)
	}
	return w, h, nil
}

// ParseVariables parses key=value pairs as given to --var
func ParseVariables(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("variable must be in format 'key=value', got: %s", pair)
		}
		vars[k] = strings.Trim(v, `"'`)
	}
	return vars, nil
}

// Compose parses args and encodes them with the default code page
func Compose(args []string, vars map[string]string) ([]byte, error) {
	commands, err := ParseArgs(args)
	if err != nil {
		return nil, err
	}

	p := New(nil, DefaultColumns)
	if vars != nil {
		p.SetVariables(vars)
	}
	return p.Execute(commands)
}
