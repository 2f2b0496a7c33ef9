package gmapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// ---- test helpers ----

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return c
}

// jsonHandler returns an http.HandlerFunc that replies with the given
// status and raw JSON body regardless of the request.
func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// ---- Client creation ----

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		c := mustNew(t, "http://localhost:8000")
		if c.serverURL != "http://localhost:8000" {
			t.Errorf("serverURL = %q, want %q", c.serverURL, "http://localhost:8000")
		}
		if c.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		t.Parallel()
		c := mustNew(t, "http://localhost:8000/")
		if c.serverURL != "http://localhost:8000" {
			t.Errorf("serverURL = %q, want trailing slash stripped", c.serverURL)
		}
	})

	t.Run("empty URL returns error", func(t *testing.T) {
		t.Parallel()
		_, err := New("")
		if err == nil {
			t.Fatal("expected error for empty URL, got nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		t.Parallel()
		hc := &http.Client{Timeout: time.Second}
		c := mustNew(t, "http://localhost:8000",
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
		)
		if c.httpClient != hc {
			t.Error("WithHTTPClient did not replace the HTTP client")
		}
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})
}

// ---- Health ----

func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("reachable", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != healthEndpoint {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jsonHandler(http.StatusOK, `{"status": "healthy"}`)(w, r)
		}))
		defer srv.Close()

		c := mustNew(t, srv.URL)
		if err := c.Health(context.Background()); err != nil {
			t.Fatalf("Health: unexpected error: %v", err)
		}
	})

	t.Run("unhealthy status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(jsonHandler(http.StatusServiceUnavailable, `{"detail": "warming up"}`))
		defer srv.Close()

		c := mustNew(t, srv.URL)
		err := c.Health(context.Background())
		if err == nil {
			t.Fatal("expected error for 503, got nil")
		}
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("error %T is not a *StatusError", err)
		}
		if se.Status != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", se.Status, http.StatusServiceUnavailable)
		}
		if se.Detail != "warming up" {
			t.Errorf("Detail = %q, want %q", se.Detail, "warming up")
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // shut down before the probe

		c := mustNew(t, srv.URL)
		err := c.Health(context.Background())
		if err == nil {
			t.Fatal("expected error for unreachable backend, got nil")
		}
		var se *StatusError
		if errors.As(err, &se) {
			t.Errorf("transport failure reported as *StatusError: %v", err)
		}
		if !strings.Contains(err.Error(), "gmapi:") {
			t.Errorf("error %q missing 'gmapi:' prefix", err.Error())
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := mustNew(t, srv.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if err := c.Health(ctx); err == nil {
			t.Fatal("expected error on context timeout, got nil")
		}
	})
}

// ---- GenerateScene ----

func TestGenerateScene_MockServer(t *testing.T) {
	t.Parallel()

	const sceneText = "You stand at the mouth of a cave. **Choose wisely.**\nChoice 1: Enter\nChoice 2: Leave"

	var (
		reqMu    sync.Mutex
		received []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generateEndpoint {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type "+ct, http.StatusUnsupportedMediaType)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		reqMu.Lock()
		received = append(received, body)
		reqMu.Unlock()

		resp := map[string]any{
			"success":            true,
			"prompt":             body["prompt"],
			"include_dice_rolls": body["include_dice_rolls"],
			"scene":              sceneText,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	scene, err := c.GenerateScene(context.Background(), "Start a brand new fantasy adventure.", true)
	if err != nil {
		t.Fatalf("GenerateScene: unexpected error: %v", err)
	}

	if scene.Text != sceneText {
		t.Errorf("scene.Text = %q, want %q", scene.Text, sceneText)
	}
	if scene.Prompt != "Start a brand new fantasy adventure." {
		t.Errorf("scene.Prompt = %q, want the echoed prompt", scene.Prompt)
	}
	if !scene.IncludeDiceRolls {
		t.Error("scene.IncludeDiceRolls = false, want true")
	}

	if len(received) != 1 {
		t.Fatalf("server received %d requests, want 1", len(received))
	}
	if got := received[0]["prompt"]; got != "Start a brand new fantasy adventure." {
		t.Errorf("request prompt = %v, want the submitted prompt", got)
	}
	if got := received[0]["include_dice_rolls"]; got != true {
		t.Errorf("request include_dice_rolls = %v, want true", got)
	}
}

// TestGenerateScene_DiceFlagAlwaysSent verifies the dice flag is present in
// the request body even when false, since the backend defaults it to off
// and an absent key would be indistinguishable from a deliberate false.
func TestGenerateScene_DiceFlagAlwaysSent(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		_ = json.NewDecoder(r.Body).Decode(&b)
		mu.Lock()
		body = b
		mu.Unlock()
		jsonHandler(http.StatusOK, `{"success": true, "scene": "A quiet moment."}`)(w, r)
	}))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	if _, err := c.GenerateScene(context.Background(), "look around", false); err != nil {
		t.Fatalf("GenerateScene: %v", err)
	}

	got, ok := body["include_dice_rolls"]
	if !ok {
		t.Fatal("include_dice_rolls key absent from request body")
	}
	if got != false {
		t.Errorf("include_dice_rolls = %v, want false", got)
	}
}

func TestGenerateScene_BackendError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusBadRequest, `{"detail": "Prompt is required"}`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	_, err := c.GenerateScene(context.Background(), "", true)
	if err == nil {
		t.Fatal("expected error for 400, got nil")
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a *StatusError", err)
	}
	if se.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", se.Status, http.StatusBadRequest)
	}
	if se.Detail != "Prompt is required" {
		t.Errorf("Detail = %q, want %q", se.Detail, "Prompt is required")
	}
	if !strings.Contains(err.Error(), "Prompt is required") {
		t.Errorf("error %q does not surface the backend detail", err.Error())
	}
}

func TestGenerateScene_ReportedFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{"success": false, "detail": "model overloaded"}`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	_, err := c.GenerateScene(context.Background(), "open the door", true)
	if err == nil {
		t.Fatal("expected error for success=false, got nil")
	}

	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error %T is not a *GenerationError", err)
	}
	if ge.Detail != "model overloaded" {
		t.Errorf("Detail = %q, want %q", ge.Detail, "model overloaded")
	}
}

func TestGenerateScene_MalformedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusOK, `this is not json`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	_, err := c.GenerateScene(context.Background(), "look", true)
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if !strings.Contains(err.Error(), "gmapi:") {
		t.Errorf("error %q missing 'gmapi:' prefix", err.Error())
	}
}

// ---- Save ----

func TestSave_MockServer(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != saveEndpoint {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var b map[string]any
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		mu.Lock()
		body = b
		mu.Unlock()
		jsonHandler(http.StatusOK, `{"success": true, "id": 42}`)(w, r)
	}))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	id, err := c.Save(context.Background(), "cave run", "[Connected]\n> enter the cave")
	if err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}
	if id != SaveID("42") {
		t.Errorf("id = %q, want %q", id, "42")
	}

	if got := body["session_name"]; got != "cave run" {
		t.Errorf("session_name = %v, want %q", got, "cave run")
	}
	if got := body["story_log"]; got != "[Connected]\n> enter the cave" {
		t.Errorf("story_log = %v, want the encoded log", got)
	}
}

func TestSave_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{"success": false}`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	_, err := c.Save(context.Background(), "cave run", "log")
	if err == nil {
		t.Fatal("expected error for success=false, got nil")
	}
}

// ---- Load ----

func TestLoad(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != loadEndpoint+"7" {
			http.NotFound(w, r)
			return
		}
		jsonHandler(http.StatusOK, `{
			"id": 7,
			"session_name": "cave run",
			"story_log": "> enter the cave",
			"timestamp": "2026-08-20T10:30:00"
		}`)(w, r)
	}))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	game, err := c.Load(context.Background(), SaveID("7"))
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if game.ID != SaveID("7") {
		t.Errorf("ID = %q, want %q", game.ID, "7")
	}
	if game.SessionName != "cave run" {
		t.Errorf("SessionName = %q, want %q", game.SessionName, "cave run")
	}
	if game.StoryLog != "> enter the cave" {
		t.Errorf("StoryLog = %q, want the stored log", game.StoryLog)
	}
	if game.Timestamp != "2026-08-20T10:30:00" {
		t.Errorf("Timestamp = %q, want the stored timestamp", game.Timestamp)
	}
}

func TestLoad_EmptyID(t *testing.T) {
	t.Parallel()

	c := mustNew(t, "http://localhost:8000")
	_, err := c.Load(context.Background(), SaveID(""))
	if err == nil {
		t.Fatal("expected error for empty id, got nil")
	}
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusNotFound, `{"detail": "Game not found"}`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	_, err := c.Load(context.Background(), SaveID("999"))
	if err == nil {
		t.Fatal("expected error for 404, got nil")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a *StatusError", err)
	}
	if se.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", se.Status, http.StatusNotFound)
	}
	if se.Detail != "Game not found" {
		t.Errorf("Detail = %q, want %q", se.Detail, "Game not found")
	}
}

// ---- Saves ----

func TestSaves(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != savesEndpoint {
			http.NotFound(w, r)
			return
		}
		jsonHandler(http.StatusOK, `{"saves": [
			{"id": 9, "session_name": "latest run", "timestamp": "2026-08-21T09:00:00"},
			{"id": "3", "session_name": "older run", "timestamp": "2026-08-18T17:45:00"}
		]}`)(w, r)
	}))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	saves, err := c.Saves(context.Background())
	if err != nil {
		t.Fatalf("Saves: unexpected error: %v", err)
	}
	if len(saves) != 2 {
		t.Fatalf("got %d saves, want 2", len(saves))
	}

	// Listing order is the backend's (newest first) and must be preserved.
	if saves[0].ID != SaveID("9") || saves[0].SessionName != "latest run" {
		t.Errorf("saves[0] = %+v, want id 9 / latest run", saves[0])
	}
	if saves[1].ID != SaveID("3") || saves[1].SessionName != "older run" {
		t.Errorf("saves[1] = %+v, want id 3 / older run", saves[1])
	}
}

func TestSaves_Empty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(jsonHandler(http.StatusOK, `{"saves": []}`))
	defer srv.Close()

	c := mustNew(t, srv.URL)
	saves, err := c.Saves(context.Background())
	if err != nil {
		t.Fatalf("Saves: unexpected error: %v", err)
	}
	if len(saves) != 0 {
		t.Errorf("got %d saves, want 0", len(saves))
	}
}

// ---- SaveID ----

func TestSaveID_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    SaveID
		wantErr bool
	}{
		{"number", `42`, SaveID("42"), false},
		{"string", `"42"`, SaveID("42"), false},
		{"uuid string", `"f5f7c2f0-1d5e-4b0a-9a51-7f3d1c2e8a11"`, SaveID("f5f7c2f0-1d5e-4b0a-9a51-7f3d1c2e8a11"), false},
		{"bool", `true`, SaveID(""), true},
		{"object", `{"id": 1}`, SaveID(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var id SaveID
			err := json.Unmarshal([]byte(tt.raw), &id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal(%s): expected error, got nil", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s): unexpected error: %v", tt.raw, err)
			}
			if id != tt.want {
				t.Errorf("id = %q, want %q", id, tt.want)
			}
		})
	}
}
