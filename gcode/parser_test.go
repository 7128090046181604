package gcode

import (
	"testing"
)

func TestParseLineBasic(t *testing.T) {
	p := NewParser()

	cmd := p.ParseLine("G1 X10.5 Y-2.25 F1500")
	if cmd == nil {
		t.Fatal("nil command")
	}
	if cmd.Letter != 'G' || cmd.Number != 1 {
		t.Errorf("parsed %c%d, want G1", cmd.Letter, cmd.Number)
	}
	if v := cmd.Get('X', 0); v != 10.5 {
		t.Errorf("X = %g, want 10.5", v)
	}
	if v := cmd.Get('Y', 0); v != -2.25 {
		t.Errorf("Y = %g, want -2.25", v)
	}
	if v := cmd.Get('F', 0); v != 1500 {
		t.Errorf("F = %g, want 1500", v)
	}
	if cmd.Has('Z') {
		t.Error("phantom Z parameter")
	}
}

func TestParseLineVariants(t *testing.T) {
	p := NewParser()

	cases := []struct {
		line   string
		letter byte
		number int
	}{
		{"g0 x1", 'G', 0},
		{"  M114", 'M', 114},
		{"T2", 'T', 2},
		{"G4 P0.5", 'G', 4},
		{"m3 s12000", 'M', 3},
	}
	for _, c := range cases {
		cmd := p.ParseLine(c.line)
		if cmd == nil {
			t.Errorf("%q: nil command", c.line)
			continue
		}
		if cmd.Letter != c.letter || cmd.Number != c.number {
			t.Errorf("%q: parsed %c%d, want %c%d", c.line, cmd.Letter, cmd.Number, c.letter, c.number)
		}
	}
}

func TestParseLineCommentsAndBlanks(t *testing.T) {
	p := NewParser()

	if cmd := p.ParseLine(""); cmd != nil {
		t.Error("empty line produced a command")
	}
	if cmd := p.ParseLine("   \t "); cmd != nil {
		t.Error("whitespace line produced a command")
	}

	cmd := p.ParseLine("; just a comment")
	if cmd == nil || cmd.Letter != 0 || cmd.Comment == "" {
		t.Errorf("comment line parsed as %+v", cmd)
	}

	cmd = p.ParseLine("G1 X5 ; trailing")
	if cmd.Letter != 'G' || !cmd.Has('X') {
		t.Errorf("trailing comment broke parsing: %+v", cmd)
	}
	if cmd.Comment != "; trailing" {
		t.Errorf("comment = %q", cmd.Comment)
	}
}

func TestParseLineNegativeAndDotNumbers(t *testing.T) {
	p := NewParser()
	cmd := p.ParseLine("G1 X-0.125 Z+3.")
	if v := cmd.Get('X', 0); v != -0.125 {
		t.Errorf("X = %g, want -0.125", v)
	}
	if v := cmd.Get('Z', 0); v != 3 {
		t.Errorf("Z = %g, want 3", v)
	}
}
