package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/pkg/falapi"
	"go.uber.org/zap"
)

func openAIServer(t *testing.T, data string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req["model"] != "dall-e-3" || req["size"] != "1024x1024" || req["n"] != float64(1) {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":` + data + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGenerate(t *testing.T) {
	srv := openAIServer(t, `[{"url":"https://img.example/habitat.png"}]`)
	g := NewOpenAI("sk-test", "", srv.URL+"/v1", zap.NewNop())

	got, err := g.Generate(context.Background(), "dome")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "https://img.example/habitat.png" {
		t.Errorf("url = %q", got)
	}
}

func TestOpenAIEmptyData(t *testing.T) {
	srv := openAIServer(t, `[]`)
	g := NewOpenAI("sk-test", "", srv.URL+"/v1", zap.NewNop())

	if _, err := g.Generate(context.Background(), "dome"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
}

func TestFalGenerateNoImages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"request_id":"r1","status":"IN_QUEUE"}`))
	})
	mux.HandleFunc("/app/requests/r1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"COMPLETED"}`))
	})
	mux.HandleFunc("/app/requests/r1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"images":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := falapi.NewClient("k", srv.URL+"/app", srv.Client(), zap.NewNop())
	g := NewFal(client, time.Millisecond, zap.NewNop())
	if _, err := g.Generate(context.Background(), "dome"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v, want ErrNoImage", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	if g, err := New(config.ImageGenConfig{Provider: "openai", OpenAIKey: "k"}, nil, zap.NewNop()); err != nil {
		t.Fatal(err)
	} else if _, ok := g.(*OpenAI); !ok {
		t.Errorf("openai provider built %T", g)
	}
	if g, err := New(config.ImageGenConfig{Provider: "fal", FalAIKey: "k", FalEndpoint: "https://queue.fal.run/x"}, nil, zap.NewNop()); err != nil {
		t.Fatal(err)
	} else if _, ok := g.(*Fal); !ok {
		t.Errorf("fal provider built %T", g)
	}
	if _, err := New(config.ImageGenConfig{Provider: "other"}, nil, zap.NewNop()); err == nil {
		t.Error("unknown provider accepted")
	}
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	g := WithTimeout(slowGenerator{}, 10*time.Millisecond)
	if _, err := g.Generate(context.Background(), "dome"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if WithTimeout(slowGenerator{}, 0) != (slowGenerator{}) {
		t.Error("zero timeout wrapped the generator")
	}
}
