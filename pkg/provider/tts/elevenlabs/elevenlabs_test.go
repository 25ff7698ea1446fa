package elevenlabs_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/roundone/Psych/pkg/provider/tts/elevenlabs"
)

// wsMessage mirrors the payloads the provider sends over the socket.
type wsMessage struct {
	Text         string `json:"text"`
	XiAPIKey     string `json:"xi_api_key"`
	OutputFormat string `json:"output_format"`
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := elevenlabs.New("", "voice"); err == nil {
		t.Error("New with empty apiKey should fail")
	}
	if _, err := elevenlabs.New("key", ""); err == nil {
		t.Error("New with empty voiceID should fail")
	}
}

func TestSynthesizeCollectsChunks(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotAPIKey string
		gotTexts  []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()

		// BOI, text, flush.
		for i := 0; i < 3; i++ {
			_, data, err := conn.Read(ctx)
			if err != nil {
				t.Errorf("read message %d: %v", i, err)
				return
			}
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("unmarshal message %d: %v", i, err)
				return
			}
			if i == 0 {
				gotAPIKey = msg.XiAPIKey
			}
			gotTexts = append(gotTexts, msg.Text)
		}

		send := func(audio []byte, final bool) {
			payload := map[string]any{"isFinal": final}
			if audio != nil {
				payload["audio"] = base64.StdEncoding.EncodeToString(audio)
			}
			data, _ := json.Marshal(payload)
			_ = conn.Write(ctx, websocket.MessageText, data)
		}
		send([]byte{1, 2, 3, 4}, false)
		send([]byte{5, 6}, true)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/text-to-speech/%s/stream-input?model_id=%s"
	p, err := elevenlabs.New("xi-key", "voice-1", elevenlabs.WithEndpoint(wsURL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clip, err := p.Synthesize(ctx, "Hi there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if want := []byte{1, 2, 3, 4, 5, 6}; string(clip.Data) != string(want) {
		t.Errorf("clip data = %v, want %v", clip.Data, want)
	}
	if clip.Format != "pcm_s16le" {
		t.Errorf("clip format = %q, want pcm_s16le", clip.Format)
	}
	if clip.SampleRate != 24000 {
		t.Errorf("clip sample rate = %d, want 24000 (default pcm_24000)", clip.SampleRate)
	}

	if !strings.Contains(gotPath, "voice-1") {
		t.Errorf("request path %q does not contain voice ID", gotPath)
	}
	if gotAPIKey != "xi-key" {
		t.Errorf("BOI xi_api_key = %q, want xi-key", gotAPIKey)
	}
	if len(gotTexts) != 3 || gotTexts[0] != " " || gotTexts[1] != "Hi there" || gotTexts[2] != "" {
		t.Errorf("message texts = %q, want [\" \", \"Hi there\", \"\"]", gotTexts)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	t.Parallel()

	p, err := elevenlabs.New("key", "voice")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), ""); err == nil {
		t.Fatal("Synthesize(\"\") should fail")
	}
}
