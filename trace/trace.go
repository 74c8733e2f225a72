// Package trace reads recorded branch streams and replays them through a
// speculative branch predictor.
//
// A trace file holds one branch per line:
//
//	<tid> <pc> <cond|uncond> <T|N> [btbmiss]
//
// Blank lines and text after '#' are ignored. The pc may be written in
// hex (0x prefix) or decimal.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/bpsim/bpred"
)

// Kind distinguishes conditional from unconditional branches.
type Kind uint8

const (
	// Conditional branches are predicted with Lookup.
	Conditional Kind = iota
	// Unconditional branches are always taken.
	Unconditional
)

// String returns the trace keyword for k.
func (k Kind) String() string {
	if k == Unconditional {
		return "uncond"
	}
	return "cond"
}

// Branch is one dynamic branch in a trace.
type Branch struct {
	TID   bpred.ThreadID
	PC    uint64
	Kind  Kind
	Taken bool
	// TargetMiss marks a branch whose target lookup failed at fetch.
	TargetMiss bool
	// Line is the source line, or 0 for branches not read from a file.
	Line int
}

// String formats b as a trace line.
func (b Branch) String() string {
	outcome := "N"
	if b.Taken {
		outcome = "T"
	}

	s := fmt.Sprintf("%d %#x %s %s", b.TID, b.PC, b.Kind, outcome)
	if b.TargetMiss {
		s += " btbmiss"
	}

	return s
}

// Load reads a trace file.
func Load(path string) ([]Branch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads a trace from r.
func Parse(r io.Reader) ([]Branch, error) {
	var branches []Branch

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		b, err := parseBranch(fields)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: %w", line, err)
		}
		b.Line = line
		branches = append(branches, b)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return branches, nil
}

func parseBranch(fields []string) (Branch, error) {
	if len(fields) < 4 || len(fields) > 5 {
		return Branch{}, fmt.Errorf("expected 4 or 5 fields, got %d", len(fields))
	}

	var b Branch

	tid, err := strconv.Atoi(fields[0])
	if err != nil || tid < 0 {
		return Branch{}, fmt.Errorf("bad thread id %q", fields[0])
	}
	b.TID = bpred.ThreadID(tid)

	b.PC, err = strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return Branch{}, fmt.Errorf("bad pc %q", fields[1])
	}

	switch fields[2] {
	case "cond":
		b.Kind = Conditional
	case "uncond":
		b.Kind = Unconditional
	default:
		return Branch{}, fmt.Errorf("bad branch kind %q", fields[2])
	}

	switch fields[3] {
	case "T":
		b.Taken = true
	case "N":
		b.Taken = false
	default:
		return Branch{}, fmt.Errorf("bad outcome %q", fields[3])
	}

	if b.Kind == Unconditional && !b.Taken {
		return Branch{}, fmt.Errorf("unconditional branch must be taken")
	}

	if len(fields) == 5 {
		if fields[4] != "btbmiss" {
			return Branch{}, fmt.Errorf("bad flag %q", fields[4])
		}
		b.TargetMiss = true
	}

	return b, nil
}
