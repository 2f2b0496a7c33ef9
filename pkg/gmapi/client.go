// Package gmapi provides the REST client for the game master backend: the
// narrative-generation service the client drives. It covers the full
// boundary contract (health probing, scene generation, and save/load of
// session logs) and nothing else; generation quality and storage are the
// backend's business.
//
// Typical usage:
//
//	c, err := gmapi.New("http://localhost:8000",
//	    gmapi.WithTimeout(2*time.Minute),
//	)
//	scene, err := c.GenerateScene(ctx, prompt, true)
//
// Failures are typed so callers can branch: a non-2xx reply decodes into a
// [*StatusError] carrying the backend's detail message, a 2xx reply with
// success=false becomes a [*GenerationError], and transport problems come
// back as wrapped [net/http] errors.
package gmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ---- constants ----

const (
	// defaultTimeout bounds one HTTP round-trip. Scene generation sits on
	// an LLM call server-side, so the default is generous; probes should
	// pass a tighter context deadline instead.
	defaultTimeout = 2 * time.Minute

	healthEndpoint   = "/health"
	generateEndpoint = "/generate-scene"
	saveEndpoint     = "/save"
	loadEndpoint     = "/load/"
	savesEndpoint    = "/saves"
)

// ---- errors ----

// StatusError is a non-2xx reply from the backend. Detail carries the
// body's "detail" field when one was present.
type StatusError struct {
	Endpoint string
	Status   int
	Detail   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("gmapi: %s returned status %d: %s", e.Endpoint, e.Status, e.Detail)
	}
	return fmt.Sprintf("gmapi: %s returned status %d", e.Endpoint, e.Status)
}

// GenerationError is a 2xx generation reply whose body reported
// success=false.
type GenerationError struct {
	Detail string
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Detail != "" {
		return "gmapi: scene generation failed: " + e.Detail
	}
	return "gmapi: scene generation failed"
}

// ---- options ----

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely, for tests
// or callers with their own transport configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ---- Client ----

// Client talks to one game master backend. It is safe for concurrent use.
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Client for the backend at serverURL (e.g.
// "http://localhost:8000"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("gmapi: serverURL must not be empty")
	}
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- wire types ----

// SaveID identifies a stored session. The backing store uses numeric ids
// but some backend builds serialise them as strings; both forms decode.
type SaveID string

// UnmarshalJSON accepts a JSON string or number.
func (id *SaveID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = SaveID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("gmapi: save id must be a string or number, got %s", data)
	}
	*id = SaveID(n.String())
	return nil
}

// String returns the id in the form used in request paths.
func (id SaveID) String() string { return string(id) }

// Scene is one generated block of narrative text.
type Scene struct {
	// Prompt echoes the prompt the scene was generated for.
	Prompt string `json:"prompt"`

	// IncludeDiceRolls echoes whether dice resolution was requested.
	IncludeDiceRolls bool `json:"include_dice_rolls"`

	// Text is the generated narration.
	Text string `json:"scene"`
}

// SavedGame is one stored session as returned by [Client.Load].
type SavedGame struct {
	ID          SaveID `json:"id"`
	SessionName string `json:"session_name"`
	StoryLog    string `json:"story_log"`
	Timestamp   string `json:"timestamp"`
}

// SaveInfo is one entry of the saves listing, newest first.
type SaveInfo struct {
	ID          SaveID `json:"id"`
	SessionName string `json:"session_name"`
	Timestamp   string `json:"timestamp"`
}

// generateRequest is the JSON body sent to POST /generate-scene.
type generateRequest struct {
	Prompt           string `json:"prompt"`
	IncludeDiceRolls bool   `json:"include_dice_rolls"`
}

// generateResponse is the JSON body returned by POST /generate-scene.
type generateResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
	Scene
}

// saveRequest is the JSON body sent to POST /save.
type saveRequest struct {
	SessionName string `json:"session_name"`
	StoryLog    string `json:"story_log"`
}

// saveResponse is the JSON body returned by POST /save.
type saveResponse struct {
	Success bool   `json:"success"`
	ID      SaveID `json:"id"`
}

// savesResponse is the JSON body returned by GET /saves.
type savesResponse struct {
	Saves []SaveInfo `json:"saves"`
}

// errorResponse is the JSON body the backend attaches to non-2xx replies.
type errorResponse struct {
	Detail string `json:"detail"`
}

// ---- operations ----

// Health probes GET /health. A nil return means the backend is reachable;
// any non-200 status or transport failure is an error.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("gmapi: create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmapi: GET %s: %w", healthEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(healthEndpoint, resp)
	}
	return nil
}

// GenerateScene asks the backend to narrate the given prompt.
// includeDiceRolls requests server-side dice resolution; the backend
// defaults it to off, so the flag is always sent explicitly.
func (c *Client) GenerateScene(ctx context.Context, prompt string, includeDiceRolls bool) (*Scene, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:           prompt,
		IncludeDiceRolls: includeDiceRolls,
	})
	if err != nil {
		return nil, fmt.Errorf("gmapi: marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+generateEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gmapi: create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gmapi: POST %s: %w", generateEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(generateEndpoint, resp)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("gmapi: decode generate response: %w", err)
	}
	if !gen.Success {
		return nil, &GenerationError{Detail: gen.Detail}
	}
	return &gen.Scene, nil
}

// Save stores a session log under sessionName and returns the backend's id
// for it.
func (c *Client) Save(ctx context.Context, sessionName, storyLog string) (SaveID, error) {
	body, err := json.Marshal(saveRequest{
		SessionName: sessionName,
		StoryLog:    storyLog,
	})
	if err != nil {
		return "", fmt.Errorf("gmapi: marshal save request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+saveEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gmapi: create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gmapi: POST %s: %w", saveEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(saveEndpoint, resp)
	}

	var sr saveResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("gmapi: decode save response: %w", err)
	}
	if !sr.Success {
		return "", &GenerationError{Detail: "backend rejected the save"}
	}
	return sr.ID, nil
}

// Load fetches one stored session by id.
func (c *Client) Load(ctx context.Context, id SaveID) (*SavedGame, error) {
	if id == "" {
		return nil, errors.New("gmapi: save id must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+loadEndpoint+id.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gmapi: create load request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gmapi: GET %s: %w", loadEndpoint+id.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(loadEndpoint+id.String(), resp)
	}

	var game SavedGame
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return nil, fmt.Errorf("gmapi: decode load response: %w", err)
	}
	return &game, nil
}

// Saves lists the stored sessions, newest first.
func (c *Client) Saves(ctx context.Context) ([]SaveInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+savesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gmapi: create saves request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gmapi: GET %s: %w", savesEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(savesEndpoint, resp)
	}

	var sr savesResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("gmapi: decode saves response: %w", err)
	}
	return sr.Saves, nil
}

// statusError turns a non-2xx reply into a *StatusError, salvaging the
// backend's detail message when the body carries one.
func (c *Client) statusError(endpoint string, resp *http.Response) error {
	var er errorResponse
	// Body decode is best effort; a plain-text error body leaves Detail empty.
	_ = json.NewDecoder(resp.Body).Decode(&er)
	return &StatusError{
		Endpoint: endpoint,
		Status:   resp.StatusCode,
		Detail:   er.Detail,
	}
}
