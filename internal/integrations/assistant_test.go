package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAssistantClientAsk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var req assistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt != "what is lora" {
			t.Errorf("unexpected prompt: %q", req.Prompt)
		}

		_ = json.NewEncoder(w).Encode(assistantResponse{Reply: " Long range radio. "})
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL, "sekrit", time.Second)
	reply, err := c.Ask(context.Background(), "what is lora")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply != "Long range radio." {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestAssistantClientServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(assistantResponse{Error: "model overloaded"})
	}))
	defer srv.Close()

	c := NewAssistantClient(srv.URL, "", time.Second)
	if _, err := c.Ask(context.Background(), "hi"); err == nil {
		t.Fatal("expected service error to surface")
	}
}

func TestAssistantClientContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(assistantResponse{Reply: "late"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewAssistantClient(srv.URL, "", time.Second)
	if _, err := c.Ask(ctx, "hi"); err == nil {
		t.Fatal("expected timeout error")
	}
}
