// Package heygen provides a client for HeyGen avatar video generation.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/resilience"
)

const providerName = "heygen"

// Video statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Client defines the HeyGen operations.
type Client interface {
	// Generate submits a video and returns its id.
	Generate(ctx context.Context, req VideoRequest) (*Video, error)
	// Status fetches the current state of a video.
	Status(ctx context.Context, videoID string) (*Video, error)
}

// VideoRequest describes a single-scene avatar video.
type VideoRequest struct {
	Title       string
	AvatarID    string
	VoiceID     string
	Script      string
	AspectRatio string
	Background  string
	CallbackURL string
	Test        bool
}

// Video is a submitted video and its progress.
type Video struct {
	ID     string `json:"video_id"`
	Status string `json:"status"`
	URL    string `json:"video_url"`
	Error  any    `json:"error,omitempty"`
}

// Terminal reports whether the video has stopped processing.
func (v *Video) Terminal() bool {
	switch v.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Dimension is the output size in pixels.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var dimensionPresets = map[string]Dimension{
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
	"1:1":  {1080, 1080},
	"4:3":  {1440, 1080},
	"3:4":  {1080, 1440},
}

var explicitSize = regexp.MustCompile(`^(\d+)x(\d+)$`)

// DimensionFor maps an aspect ratio ("16:9") or explicit size ("1280x720")
// to a Dimension. Anything else falls back to 16:9.
func DimensionFor(aspect string) Dimension {
	if d, ok := dimensionPresets[aspect]; ok {
		return d
	}
	if m := explicitSize.FindStringSubmatch(strings.ToLower(aspect)); m != nil {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		return Dimension{Width: w, Height: h}
	}
	return dimensionPresets["16:9"]
}

var hexColor = regexp.MustCompile(`(?i)^#?[0-9a-f]{6}$`)

func backgroundFor(bg string) map[string]any {
	switch {
	case bg == "":
		return map[string]any{"type": "color", "value": "#f6f6fc"}
	case hexColor.MatchString(bg):
		if !strings.HasPrefix(bg, "#") {
			bg = "#" + bg
		}
		return map[string]any{"type": "color", "value": bg}
	}
	return map[string]any{"type": "image", "url": bg}
}

type generatePayload struct {
	Title       string           `json:"title,omitempty"`
	CallbackURL string           `json:"callback_url,omitempty"`
	Test        bool             `json:"test,omitempty"`
	Dimension   Dimension        `json:"dimension"`
	VideoInputs []map[string]any `json:"video_inputs"`
}

func buildPayload(req VideoRequest) generatePayload {
	return generatePayload{
		Title:       req.Title,
		CallbackURL: req.CallbackURL,
		Test:        req.Test,
		Dimension:   DimensionFor(req.AspectRatio),
		VideoInputs: []map[string]any{{
			"character": map[string]any{
				"type":      "avatar",
				"avatar_id": req.AvatarID,
				"scale":     1.0,
			},
			"voice": map[string]any{
				"type":       "text",
				"voice_id":   req.VoiceID,
				"input_text": req.Script,
			},
			"background": backgroundFor(req.Background),
		}},
	}
}

type envelope struct {
	Data  *Video `json:"data"`
	Error any    `json:"error"`
}

// Option configures the HeyGen client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new HeyGen client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.heygen.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Generate(ctx context.Context, req VideoRequest) (*Video, error) {
	if req.AvatarID == "" || req.VoiceID == "" {
		return nil, eris.New("heygen: avatar id and voice id are required")
	}
	if strings.TrimSpace(req.Script) == "" {
		return nil, eris.New("heygen: script is required")
	}
	v, err := c.do(ctx, http.MethodPost, "/v2/video/generate", buildPayload(req))
	if err != nil {
		return nil, eris.Wrap(err, "heygen: generate video")
	}
	if v.ID == "" {
		return nil, eris.New("heygen: response missing video_id")
	}
	if v.Status == "" {
		v.Status = StatusPending
	}
	return v, nil
}

func (c *httpClient) Status(ctx context.Context, videoID string) (*Video, error) {
	v, err := c.do(ctx, http.MethodGet, "/v1/video_status.get?video_id="+url.QueryEscape(videoID), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "heygen: video status %s", videoID)
	}
	if v.ID == "" {
		v.ID = videoID
	}
	return v, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, in any) (*Video, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, eris.Wrap(err, "heygen: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "heygen: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.Wrap(providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "heygen: read response body")
	}
	if perr := resilience.ClassifyStatus(providerName, resp.StatusCode, body); perr != nil {
		return nil, perr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "heygen: decode response")
	}
	if env.Data == nil {
		return nil, eris.Errorf("heygen: empty response data: %s", string(body))
	}
	return env.Data, nil
}

// Poll checks Status every interval until the video is terminal or maxPolls
// checks have run.
func Poll(ctx context.Context, client Client, videoID string, interval time.Duration, maxPolls int) (*Video, error) {
	var last *Video
	for i := 0; i < maxPolls; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return last, eris.Wrapf(ctx.Err(), "heygen: poll video %s", videoID)
			case <-time.After(interval):
			}
		}
		v, err := client.Status(ctx, videoID)
		if err != nil {
			return last, err
		}
		last = v
		if v.Terminal() {
			return v, nil
		}
	}
	status := "unknown"
	if last != nil {
		status = last.Status
	}
	return last, eris.Errorf("heygen: timed out waiting for video %s (last status %s)", videoID, status)
}
