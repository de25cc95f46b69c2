package gigachat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		AuthKey:           "dGVzdDp0ZXN0",
		BaseURL:           srv.URL,
		AuthURL:           srv.URL + "/oauth",
		RequestsPerSecond: 1000, // don't slow tests down
	})
	return c, srv
}

func tokenHandler(tokenCalls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"expires_at":   time.Now().Add(30 * time.Minute).UnixMilli(),
		})
	}
}

func TestChat_FetchesTokenOnceAndSendsBearer(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want Bearer tok-123", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "С днём рождения!"}},
			},
		})
	})

	c, _ := newTestClient(t, mux)
	for i := 0; i < 3; i++ {
		resp, err := c.Chat(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "поздравь"}},
		})
		if err != nil {
			t.Fatalf("Chat() error: %v", err)
		}
		if resp.Text() != "С днём рождения!" {
			t.Errorf("Text() = %q", resp.Text())
		}
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Errorf("token endpoint called %d times, want 1 (token must be cached)", n)
	}
}

func TestChat_ClassifiesRateLimit(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	})

	c, _ := newTestClient(t, mux)
	_, err := c.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Chat() error = %v, want ErrRateLimited", err)
	}
}

func TestChat_UnauthorizedInvalidatesToken(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, mux)
	if _, err := c.Chat(context.Background(), ChatRequest{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Chat() error = %v, want ErrUnauthorized", err)
	}
	// The cached token must be dropped so the next call re-authenticates.
	c.Chat(context.Background(), ChatRequest{})
	if n := atomic.LoadInt32(&tokenCalls); n != 2 {
		t.Errorf("token endpoint called %d times, want 2 after invalidation", n)
	}
}

func TestChat_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c, _ := newTestClient(t, mux)
	var err error
	for i := 0; i < 6; i++ {
		_, err = c.Chat(context.Background(), ChatRequest{})
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("after repeated failures error = %v, want ErrCircuitOpen", err)
	}
}

func TestExtractImageFileID(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantID  string
		wantOK  bool
	}{
		{
			name:    "img tag with file id",
			content: `Вот открытка: <img src="d9b5e4c2-1f47-4a7e-9f12-abcdef012345" fuse="true"/>`,
			wantID:  "d9b5e4c2-1f47-4a7e-9f12-abcdef012345",
			wantOK:  true,
		},
		{
			name:    "plain text answer",
			content: "Поздравляю с праздником!",
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": tt.content}},
				},
			})
			var resp ChatResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				t.Fatalf("unmarshal fixture: %v", err)
			}

			id, ok := ExtractImageFileID(&resp)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("ExtractImageFileID() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestGenerateImage_NoImageIsSentinel(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "не могу нарисовать"}},
			},
		})
	})

	c, _ := newTestClient(t, mux)
	_, err := c.GenerateImage(context.Background(), "открытка к 8 марта")
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("GenerateImage() error = %v, want ErrNoImage", err)
	}
}

func TestGenerateImage_DownloadsFileContent(t *testing.T) {
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", tokenHandler(&tokenCalls))
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `<img src="file-42" fuse="true"/>`,
				}},
			},
		})
	})
	mux.HandleFunc("/files/file-42/content", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF})
	})

	c, _ := newTestClient(t, mux)
	img, err := c.GenerateImage(context.Background(), "открытка")
	if err != nil {
		t.Fatalf("GenerateImage() error: %v", err)
	}
	if len(img) != 3 || img[0] != 0xFF {
		t.Errorf("unexpected image bytes: %v", img)
	}
}
