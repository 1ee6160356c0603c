package backends

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tmc/promptdemo/backends/registry"
	"github.com/tmc/promptdemo/completion"
	"github.com/tmc/promptdemo/continuation"
	"github.com/tmc/promptdemo/options"
)

func TestNames(t *testing.T) {
	want := []string{"anthropic", "dummy", "googleai", "ollama", "openai"}
	if diff := cmp.Diff(want, Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestInitializeModelUnknownBackend(t *testing.T) {
	if _, err := InitializeModel(&options.Config{Backend: "nope"}); err == nil {
		t.Error("InitializeModel(nope) returned nil error")
	}
}

// chatServer answers OpenAI chat completion requests with the scripted
// finish reasons, one per call.
type chatServer struct {
	mu       sync.Mutex
	reasons  []string
	requests []map[string]any
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.requests = append(s.requests, body)
	n := len(s.requests)
	reason := s.reasons[min(n, len(s.reasons))-1]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": "part "},
			"finish_reason": reason,
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

func TestOpenAIContinuation(t *testing.T) {
	chat := &chatServer{reasons: []string{"length", "length", "stop"}}
	srv := httptest.NewServer(chat)
	defer srv.Close()

	cfg := &options.Config{
		Backend:      "openai",
		Model:        "gpt-test",
		BaseURL:      srv.URL + "/v1",
		OpenAIAPIKey: "sk-test",
	}
	model, err := InitializeModel(cfg, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}

	c := continuation.New(completion.NewClient(model))
	res, err := c.Run(context.Background(), "tell me", "gpt-test", 20)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "part part part " || res.Calls != 3 || res.FinishReason != continuation.FinishReasonStop {
		t.Errorf("Run() = %+v", res)
	}

	last := chat.requests[2]
	msgs, _ := last["messages"].([]any)
	if len(msgs) != 5 {
		t.Fatalf("third request carried %d messages, want 5", len(msgs))
	}
	if got := messageText(msgs[4]); got != continuation.ContinuePrompt {
		t.Errorf("last message = %q, want the continue prompt", got)
	}
	if msgs[3].(map[string]any)["role"] != "assistant" {
		t.Errorf("fourth message = %v, want the previous assistant chunk", msgs[3])
	}
	maxTokens, ok := last["max_tokens"]
	if !ok {
		maxTokens = last["max_completion_tokens"]
	}
	if maxTokens != float64(20) {
		t.Errorf("max tokens = %v, want 20", maxTokens)
	}
}

// messageText returns the text of a chat message in either the string or
// the content-parts encoding.
func messageText(m any) string {
	content := m.(map[string]any)["content"]
	if s, ok := content.(string); ok {
		return s
	}
	parts, _ := content.([]any)
	var sb strings.Builder
	for _, p := range parts {
		if text, ok := p.(map[string]any)["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}

type recordingTransport struct {
	calls int
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    req,
	}, nil
}

func TestFaultTransport(t *testing.T) {
	tests := []struct {
		name       string
		rate       float64
		floats     []float64
		wantStatus int
		wantErr    bool
		wantCalls  int
	}{
		{name: "passes through", rate: 0, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "below rate passes through", rate: 0.5, floats: []float64{0.9}, wantStatus: http.StatusOK, wantCalls: 1},
		{name: "network error", rate: 1, floats: []float64{0.1, 0.1}, wantErr: true},
		{name: "server error", rate: 1, floats: []float64{0.1, 0.9}, wantStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &recordingTransport{}
			floats := tt.floats
			ft := &faultTransport{
				base:        base,
				failureRate: tt.rate,
				float: func() float64 {
					f := floats[0]
					floats = floats[1:]
					return f
				},
				intn: func(int) int { return 2 },
			}
			req := httptest.NewRequest(http.MethodPost, "http://example.test/v1/chat/completions", nil)
			resp, err := ft.RoundTrip(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RoundTrip() error = %v, wantErr %v", err, tt.wantErr)
			}
			if resp != nil {
				resp.Body.Close()
				if resp.StatusCode != tt.wantStatus {
					t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
				}
			}
			if base.calls != tt.wantCalls {
				t.Errorf("base calls = %d, want %d", base.calls, tt.wantCalls)
			}
		})
	}
}

func TestFaultTransportLatencyHonoursContext(t *testing.T) {
	ft := &faultTransport{base: &recordingTransport{}, latency: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil).WithContext(ctx)
	if _, err := ft.RoundTrip(req); err != context.Canceled {
		t.Errorf("RoundTrip() error = %v, want context.Canceled", err)
	}
}

func TestWithFaultInjectionKeepsClient(t *testing.T) {
	base := &recordingTransport{}
	orig := &http.Client{Transport: base, Timeout: time.Minute}
	opts := &options.InferenceProviderOptions{}
	registry.WithHTTPClient(orig)(opts)
	WithFaultInjection(0, 0)(opts)

	if opts.HTTPClient == orig {
		t.Fatal("original client was modified in place")
	}
	if orig.Transport != base {
		t.Error("original transport replaced")
	}
	if opts.HTTPClient.Timeout != time.Minute {
		t.Errorf("Timeout = %v, want the original client's", opts.HTTPClient.Timeout)
	}
	ft, ok := opts.HTTPClient.Transport.(*faultTransport)
	if !ok || ft.base != base {
		t.Errorf("Transport = %#v, want faultTransport over the original", opts.HTTPClient.Transport)
	}
}
