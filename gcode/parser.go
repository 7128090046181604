// Package gcode parses G-code lines and maps them onto the motion engine.
package gcode

// Command is one parsed G-code line.
type Command struct {
	Letter  byte // 'G', 'M' or 'T'; 0 for an empty or comment-only line
	Number  int
	Params  map[byte]float64
	Comment string
}

// Has reports whether the parameter letter appeared on the line.
func (c *Command) Has(p byte) bool {
	_, ok := c.Params[p]
	return ok
}

// Get returns the parameter value, or def when absent.
func (c *Command) Get(p byte, def float64) float64 {
	if v, ok := c.Params[p]; ok {
		return v
	}
	return def
}

// Parser scans G-code lines.  It allocates only the parameter map per
// line.
type Parser struct{}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line.  Returns nil for blank lines.
func (p *Parser) ParseLine(line string) *Command {
	i := skipSpace(line, 0)
	if i >= len(line) {
		return nil
	}

	cmd := &Command{Params: make(map[byte]float64)}

	if line[i] == ';' || line[i] == '(' {
		cmd.Comment = line[i:]
		return cmd
	}

	if c := upper(line[i]); c == 'G' || c == 'M' || c == 'T' {
		cmd.Letter = c
		i++
		num, next := parseInt(line, i)
		if next > i {
			cmd.Number = num
			i = next
		}
	}

	for i < len(line) {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}
		if line[i] == ';' || line[i] == '(' {
			cmd.Comment = line[i:]
			break
		}
		if !isLetter(line[i]) {
			i++
			continue
		}
		letter := upper(line[i])
		i++
		value, next := parseFloat(line, i)
		if next > i {
			cmd.Params[letter] = value
			i = next
		}
	}
	return cmd
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

func parseInt(s string, pos int) (int, int) {
	start := pos
	neg := false
	if pos < len(s) && (s[pos] == '-' || s[pos] == '+') {
		neg = s[pos] == '-'
		pos++
	}
	digits := pos
	v := 0
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		v = v*10 + int(s[pos]-'0')
		pos++
	}
	if pos == digits {
		return 0, start
	}
	if neg {
		v = -v
	}
	return v, pos
}

func parseFloat(s string, pos int) (float64, int) {
	start := pos
	neg := false
	if pos < len(s) && (s[pos] == '-' || s[pos] == '+') {
		neg = s[pos] == '-'
		pos++
	}
	digits := pos
	v := 0.0
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		v = v*10 + float64(s[pos]-'0')
		pos++
	}
	if pos < len(s) && s[pos] == '.' {
		pos++
		scale := 0.1
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			v += float64(s[pos]-'0') * scale
			scale /= 10
			pos++
		}
	}
	if pos == digits || (pos == digits+1 && s[digits] == '.') {
		return 0, start
	}
	if neg {
		v = -v
	}
	return v, pos
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
