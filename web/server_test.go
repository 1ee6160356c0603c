package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tmc/promptdemo/backends/dummy"
	"github.com/tmc/promptdemo/completion"
	"github.com/tmc/promptdemo/inference"
	"github.com/tmc/promptdemo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() *options.Config {
	return &options.Config{
		Backend:    "dummy",
		Model:      "dummy",
		MaxTokens:  150,
		MaxRetries: 10,
		ImageModel: "dall-e-3",
		ImageSize:  "512x512",
		Styles:     []string{"watercolor", "ink"},
	}
}

func newTestServer(t *testing.T, steps []dummy.Step, opts ...Option) (*httptest.Server, *dummy.Backend) {
	t.Helper()
	cfg := testConfig()
	logger := zaptest.NewLogger(t).Sugar()
	backend := dummy.New(steps...)
	svc, err := completion.New(cfg, backend, completion.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(svc, cfg, append([]Option{WithLogger(logger)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, backend
}

func post(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode, out
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name       string
		steps      []dummy.Step
		body       string
		wantStatus int
		want       map[string]any
		wantCalls  int
	}{
		{
			name: "continues until stop",
			steps: []dummy.Step{
				{Content: "The first part", StopReason: "length"},
				{Content: " and the end.", StopReason: "stop"},
			},
			body:       `{"prompt":"tell me","model":"dummy"}`,
			wantStatus: http.StatusOK,
			want: map[string]any{
				"text":         "The first part and the end.",
				"calls":        float64(2),
				"finishReason": "stop",
				"truncated":    false,
			},
			wantCalls: 2,
		},
		{
			name: "transport failure keeps partial text",
			steps: []dummy.Step{
				{Content: "partial", StopReason: "length"},
				{Err: "connection reset"},
			},
			body:       `{"prompt":"tell me","model":"dummy"}`,
			wantStatus: http.StatusOK,
			want: map[string]any{
				"text":         "partial",
				"calls":        float64(2),
				"finishReason": "length",
				"truncated":    false,
			},
			wantCalls: 2,
		},
		{
			name:       "missing model",
			body:       `{"prompt":"tell me"}`,
			wantStatus: http.StatusBadRequest,
			want:       map[string]any{"error": "Please select a model."},
		},
		{
			name:       "blank prompt",
			body:       `{"prompt":"  ","model":"dummy"}`,
			wantStatus: http.StatusBadRequest,
			want:       map[string]any{"error": "Please enter some text."},
		},
		{
			name:       "malformed body",
			body:       `{"prompt":`,
			wantStatus: http.StatusBadRequest,
			want:       map[string]any{"error": "invalid request body"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, backend := newTestServer(t, tt.steps)
			status, got := post(t, ts.URL+"/api/complete", tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			errMsg, hasErr := got["error"].(string)
			if tt.wantStatus == http.StatusOK {
				delete(got, "error")
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
			if tt.name == "transport failure keeps partial text" && (!hasErr || !strings.Contains(errMsg, "connection reset")) {
				t.Errorf("error = %q, want transport failure", errMsg)
			}
			if got := len(backend.Requests()); got != tt.wantCalls {
				t.Errorf("backend calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestCompleteInvalidMaxTokens(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	status, got := post(t, ts.URL+"/api/complete", `{"prompt":"hi","model":"dummy","maxTokens":-1}`)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if got["error"] == nil {
		t.Error("missing error message")
	}
}

func TestRequestBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	backend := dummy.New()
	svc, err := completion.New(cfg, backend, completion.WithLogger(zaptest.NewLogger(t).Sugar()))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(svc, cfg, WithInference(&stubInference{}))
	if err != nil {
		t.Fatal(err)
	}

	body := `{"model":"dummy","prompt":"` + strings.Repeat("a", maxRequestBytes) + `"}`
	for _, path := range []string{"/api/complete", "/api/image"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid request body") {
			t.Errorf("POST %s = %d %s, want 400 invalid request body", path, rec.Code, rec.Body)
		}
	}
	if n := len(backend.Requests()); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestWriteJSONLogsEncodeError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := &Server{logger: zap.New(core).Sugar()}
	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if n := logs.FilterMessage("failed to write response").Len(); n != 1 {
		t.Errorf("logged %d encode failures, want 1", n)
	}
}

func TestCompleteTruncated(t *testing.T) {
	ts, backend := newTestServer(t, []dummy.Step{{Content: "x", StopReason: "length"}})
	status, got := post(t, ts.URL+"/api/complete", `{"prompt":"hi","model":"dummy"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if got["truncated"] != true || got["text"] != strings.Repeat("x", 10) {
		t.Errorf("response = %v, want truncated text of 10 calls", got)
	}
	if n := len(backend.Requests()); n != 10 {
		t.Errorf("backend calls = %d, want 10", n)
	}
}

type stubInference struct {
	models []inference.Model
	styles []string
	err    error
	got    inference.ImageRequest
}

func (s *stubInference) ListModels(ctx context.Context) ([]inference.Model, error) {
	return s.models, s.err
}

func (s *stubInference) ListStyles(ctx context.Context) ([]string, error) {
	return s.styles, s.err
}

func (s *stubInference) GenerateImage(ctx context.Context, req inference.ImageRequest) (*inference.Image, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &inference.Image{URL: "https://img.example/fox.png"}, nil
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp.StatusCode
}

func TestModelsAndStyles(t *testing.T) {
	t.Run("without inference", func(t *testing.T) {
		ts, _ := newTestServer(t, nil)
		var models []inference.Model
		getJSON(t, ts.URL+"/api/models", &models)
		if diff := cmp.Diff([]inference.Model{{ID: "dummy"}}, models); diff != "" {
			t.Errorf("models mismatch (-want +got):\n%s", diff)
		}
		var styles []string
		getJSON(t, ts.URL+"/api/styles", &styles)
		if diff := cmp.Diff([]string{"watercolor", "ink"}, styles); diff != "" {
			t.Errorf("styles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("with inference", func(t *testing.T) {
		inf := &stubInference{
			models: []inference.Model{{ID: "gpt-4o"}, {ID: "gpt-4o-mini"}},
			styles: []string{"vivid"},
		}
		ts, _ := newTestServer(t, nil, WithInference(inf))
		var models []inference.Model
		getJSON(t, ts.URL+"/api/models", &models)
		if diff := cmp.Diff(inf.models, models); diff != "" {
			t.Errorf("models mismatch (-want +got):\n%s", diff)
		}
		var styles []string
		getJSON(t, ts.URL+"/api/styles", &styles)
		if diff := cmp.Diff(inf.styles, styles); diff != "" {
			t.Errorf("styles mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("inference failure", func(t *testing.T) {
		ts, _ := newTestServer(t, nil, WithInference(&stubInference{err: errors.New("upstream down")}))
		var body map[string]string
		if status := getJSON(t, ts.URL+"/api/models", &body); status != http.StatusBadGateway {
			t.Errorf("status = %d, want %d", status, http.StatusBadGateway)
		}
		if body["error"] != "upstream down" {
			t.Errorf("error = %q", body["error"])
		}
	})
}

func TestImage(t *testing.T) {
	inf := &stubInference{}
	ts, _ := newTestServer(t, nil, WithInference(inf))

	status, got := post(t, ts.URL+"/api/image", `{"prompt":"a fox","style":"ink"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %v", status, got)
	}
	if got["url"] != "https://img.example/fox.png" {
		t.Errorf("url = %v", got["url"])
	}
	want := inference.ImageRequest{Prompt: "a fox", Model: "dall-e-3", Style: "ink", Size: "512x512"}
	if diff := cmp.Diff(want, inf.got); diff != "" {
		t.Errorf("image request mismatch (-want +got):\n%s", diff)
	}

	status, got = post(t, ts.URL+"/api/image", `{"prompt":""}`)
	if status != http.StatusBadRequest || got["error"] != "Please enter some text." {
		t.Errorf("empty prompt: status %d, body %v", status, got)
	}
}

func TestImageNotConfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	status, _ := post(t, ts.URL+"/api/image", `{"prompt":"a fox"}`)
	if status != http.StatusNotImplemented {
		t.Errorf("status = %d, want %d", status, http.StatusNotImplemented)
	}
}

func TestIndex(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	page := string(body)
	for _, want := range []string{`data-default="dummy"`, `<option value="watercolor">`, `/static/app.js`} {
		if !strings.Contains(page, want) {
			t.Errorf("index page missing %q", want)
		}
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestStaticETag(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/static/style.css")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Content-Type = %q", ct)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/static/style.css", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional GET status = %d, want 304", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/static/missing.js")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", resp.StatusCode)
	}
}

func TestServeShutdown(t *testing.T) {
	cfg := testConfig()
	svc, err := completion.New(cfg, dummy.New())
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(svc, cfg, WithLogger(zaptest.NewLogger(t).Sugar()))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var models []inference.Model
	getJSON(t, "http://"+ln.Addr().String()+"/api/models", &models)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewRequiresCompleter(t *testing.T) {
	if _, err := New(nil, testConfig()); err == nil {
		t.Error("New(nil) returned nil error")
	}
}
