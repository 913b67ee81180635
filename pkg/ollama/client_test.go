package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectObjects(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"objects":[{"label":"box","confidence":0.8,"box":{"x":0.1,"y":0.1,"w":0.5,"h":0.5}}],"description":"one box"}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/api/chat")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	img := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	res, err := c.DetectObjects(context.Background(), "llava", "find objects", img)
	if err != nil {
		t.Fatalf("DetectObjects failed: %v", err)
	}
	if gotModel != "llava" {
		t.Errorf("Expected model llava, got %q", gotModel)
	}
	if len(res.Objects) != 1 || res.Objects[0].Box.W != 0.5 {
		t.Errorf("Unexpected result: %+v", res)
	}
}

func TestDetectObjectsBadImage(t *testing.T) {
	c, _ := NewClient("http://127.0.0.1:1")
	if _, err := c.DetectObjects(context.Background(), "llava", "p", "%%%not-base64"); err == nil {
		t.Error("Expected error for invalid base64 image")
	}
}
