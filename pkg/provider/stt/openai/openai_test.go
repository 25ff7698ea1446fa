package openai_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/stt/openai"
)

// newServer starts a fake transcription endpoint that records the upload and
// responds with the given text.
func newServer(t *testing.T, text string) (*httptest.Server, *http.Request, *[]byte) {
	t.Helper()
	var gotReq http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		gotReq = *r
		gotBody = buf.Bytes()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv, &gotReq, &gotBody
}

func TestTranscribe(t *testing.T) {
	srv, gotReq, gotBody := newServer(t, "hello there")

	p, err := openai.New("sk-test", "gpt-4o-mini-transcribe",
		openai.WithBaseURL(srv.URL),
		openai.WithLanguage("en"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip := stt.Clip{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	text, err := p.Transcribe(context.Background(), clip)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q, want %q", text, "hello there")
	}

	if !strings.HasSuffix(gotReq.URL.Path, "/audio/transcriptions") {
		t.Errorf("request path = %q, want /audio/transcriptions suffix", gotReq.URL.Path)
	}
	// The upload must be a WAV file, not raw PCM.
	if !bytes.Contains(*gotBody, []byte("RIFF")) {
		t.Error("upload body is missing the WAV RIFF header")
	}
	if !bytes.Contains(*gotBody, []byte(`name="language"`)) {
		t.Error("upload body is missing the language field")
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	srv, _, _ := newServer(t, "should never be called")

	p, err := openai.New("sk-test", "gpt-4o-mini-transcribe", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), stt.Clip{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty for empty clip", text)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("sk-test", "gpt-4o-mini-transcribe", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip := stt.Clip{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}
	if _, err := p.Transcribe(context.Background(), clip); err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := openai.New("", "gpt-4o-mini-transcribe"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := openai.New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}
