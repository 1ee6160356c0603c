// Package input handles processing and combining various input sources for promptdemo.
package input

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Processor manages combining input sources.
type Processor struct {
	files   []string
	strings []string
	args    []string
	stdin   io.Reader
}

// NewProcessor creates a new input processor.
// A file named "-" reads from stdin.
func NewProcessor(files []string, strings []string, args []string, stdin io.Reader) *Processor {
	return &Processor{
		files:   files,
		strings: strings,
		args:    args,
		stdin:   stdin,
	}
}

// Reader returns a single io.Reader that concatenates, in order, files,
// input strings and positional args. Piped stdin is read first when no
// file names it explicitly. Parts are separated by newlines.
func (p *Processor) Reader(ctx context.Context) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var readers []io.Reader
	add := func(r io.Reader) {
		if len(readers) > 0 {
			readers = append(readers, strings.NewReader("\n"))
		}
		readers = append(readers, r)
	}

	stdinUsed := false
	for _, f := range p.files {
		if f == "-" {
			stdinUsed = true
			break
		}
	}
	if !stdinUsed && len(p.files) == 0 && len(p.strings) == 0 && len(p.args) == 0 && stdinAvailable(p.stdin) {
		add(p.stdin)
	}

	for _, f := range p.files {
		if f == "-" {
			if p.stdin != nil {
				add(p.stdin)
			}
			continue
		}
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read input file %s: %w", f, err)
		}
		add(strings.NewReader(string(b)))
	}
	for _, s := range p.strings {
		add(strings.NewReader(s))
	}
	if len(p.args) > 0 {
		add(strings.NewReader(strings.Join(p.args, " ")))
	}
	return io.MultiReader(readers...), nil
}

// stdinAvailable checks if stdin appears to have data available.
// Returns true if it's a pipe or redirected file, false for terminal.
func stdinAvailable(stdin io.Reader) bool {
	if stdin == nil {
		return false
	}
	if f, ok := stdin.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) == 0
	}
	// If not a file but some other reader, assume it has data
	return true
}
