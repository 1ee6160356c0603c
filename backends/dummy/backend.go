package dummy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/tools/txtar"
)

var dummyDefaultText = `This is a dummy backend response. The quick brown fox jumps over the lazy dog. This concludes the dummy backend response.`

// Step is one scripted completion.
type Step struct {
	Content    string
	StopReason string
	// Err, when non-empty, makes the call fail with this message.
	Err string
}

// Backend is a deterministic llms.Model that replays scripted steps.
// Once the script is exhausted the last step repeats.
type Backend struct {
	mu       sync.Mutex
	steps    []Step
	requests [][]llms.MessageContent
}

// New returns a Backend replaying steps. With no steps it always answers
// with a fixed text and stop reason "stop".
func New(steps ...Step) *Backend {
	if len(steps) == 0 {
		steps = []Step{{Content: dummyDefaultText, StopReason: "stop"}}
	}
	return &Backend{steps: steps}
}

// ParseScript parses a txtar archive of steps. Each file is one call, named
// <n>.<stop-reason>; the file body is the completion text. A stop reason of
// "error" makes that call fail with the body as the error message.
func ParseScript(data []byte) ([]Step, error) {
	ar := txtar.Parse(data)
	if len(ar.Files) == 0 {
		return nil, errors.New("dummy script: no steps")
	}
	type numbered struct {
		n    int
		step Step
	}
	var parsed []numbered
	for _, f := range ar.Files {
		num, reason, ok := strings.Cut(f.Name, ".")
		if !ok {
			return nil, fmt.Errorf("dummy script: step %q: want <n>.<stop-reason>", f.Name)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("dummy script: step %q: %w", f.Name, err)
		}
		body := strings.TrimSuffix(string(f.Data), "\n")
		st := Step{Content: body, StopReason: reason}
		if reason == "error" {
			st = Step{Err: body}
		}
		parsed = append(parsed, numbered{n: n, step: st})
	}
	slices.SortStableFunc(parsed, func(a, b numbered) int { return a.n - b.n })
	steps := make([]Step, len(parsed))
	for i, p := range parsed {
		steps[i] = p.step
	}
	return steps, nil
}

// LoadScript reads and parses a txtar script file.
func LoadScript(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dummy script: %w", err)
	}
	return ParseScript(data)
}

// Requests returns the message histories received so far, one per call.
func (d *Backend) Requests() [][]llms.MessageContent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.requests)
}

// Call implements the llms.Model interface
func (d *Backend) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, d, prompt, options...)
}

// GenerateContent implements the llms.Model interface
func (d *Backend) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	d.mu.Lock()
	d.requests = append(d.requests, slices.Clone(messages))
	st := d.steps[min(len(d.requests), len(d.steps))-1]
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.Err != "" {
		return nil, errors.New(st.Err)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    st.Content,
			StopReason: st.StopReason,
		}},
	}, nil
}
