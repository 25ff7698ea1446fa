package whisper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roundone/Psych/pkg/provider/stt"
	"github.com/roundone/Psych/pkg/provider/stt/whisper"
)

// clip returns a short non-empty test clip.
func clip() stt.Clip {
	return stt.Clip{PCM: bytes.Repeat([]byte{0x10, 0x02}, 160), SampleRate: 16000, Channels: 1}
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestTranscribeSendsWAVMultipart(t *testing.T) {
	t.Parallel()

	var (
		gotPath     string
		gotLanguage string
		gotModel    string
		gotFile     []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("read part: %v", err)
				break
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				gotFile = data
			case "language":
				gotLanguage = string(data)
			case "model":
				gotModel = string(data)
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"text": " hello world "})
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), clip())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != " hello world " {
		t.Errorf("text = %q, want untouched server response", text)
	}

	if gotPath != "/inference" {
		t.Errorf("path = %q, want /inference", gotPath)
	}
	if gotLanguage != "de" {
		t.Errorf("language field = %q, want de", gotLanguage)
	}
	if gotModel != "base.en" {
		t.Errorf("model field = %q, want base.en", gotModel)
	}
	if len(gotFile) != 44+320 {
		t.Errorf("uploaded file = %d bytes, want 44-byte WAV header + 320 bytes PCM", len(gotFile))
	}
	if !bytes.HasPrefix(gotFile, []byte("RIFF")) {
		t.Error("uploaded file is not a WAV container")
	}
}

func TestTranscribeEmptyClip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty clip should not reach the server")
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Clip{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestTranscribeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), clip()); err == nil {
		t.Fatal("Transcribe should propagate HTTP 500 as an error")
	}
}

func TestTranscribeMalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), clip()); err == nil {
		t.Fatal("Transcribe should fail on malformed JSON")
	}
}
