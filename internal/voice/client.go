// Package voice is the client for the external text-to-speech API. It
// resolves voice ids and settings, validates requests and returns raw audio.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"go.uber.org/zap"
)

const maxErrorBody = 1 << 10

var errNotConfigured = errors.New("voice API key is not configured")

// SynthesisRequest is one text-to-speech call. Empty fields use configured
// defaults.
type SynthesisRequest struct {
	Text         string
	VoiceID      string
	Settings     *Settings
	Quality      string
	OutputFormat string
}

// Audio is the synthesized result.
type Audio struct {
	Data        []byte
	Format      string
	ContentType string
	Extension   string
	VoiceID     string
	Size        int
}

// Voice is one catalogue entry.
type Voice struct {
	VoiceID     string `json:"voiceId"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	PreviewURL  string `json:"previewUrl"`
	Available   bool   `json:"available"`
}

type Client struct {
	cfg    config.VoiceConfig
	http   *http.Client
	logger *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the configured API. It fails if the
// configured default preset does not exist.
func NewClient(cfg config.VoiceConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	if _, ok := LookupPreset(cfg.QualityPreset); !ok {
		return nil, fmt.Errorf("unknown voice quality preset %q", cfg.QualityPreset)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("voice"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// DefaultVoiceID is the voice used when a request names none.
func (c *Client) DefaultVoiceID() string {
	return c.cfg.DefaultVoiceID
}

// DefaultPreset is the configured quality preset name.
func (c *Client) DefaultPreset() string {
	return c.cfg.QualityPreset
}

// MaxTextLength bounds the text accepted by Synthesize.
func (c *Client) MaxTextLength() int {
	return c.cfg.MaxTextLength
}

// ResolveSettings applies explicit settings over the named preset, or over the
// configured default preset when quality is empty.
func (c *Client) ResolveSettings(explicit *Settings, quality string) (Settings, error) {
	name := quality
	if name == "" {
		name = c.cfg.QualityPreset
	}
	p, ok := LookupPreset(name)
	if !ok {
		return Settings{}, apperr.Validation("invalid voice settings", fmt.Sprintf("unknown quality preset %q", name))
	}
	return p.Settings.overlay(explicit), nil
}

type wireSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func toWire(s Settings) wireSettings {
	var w wireSettings
	if s.Stability != nil {
		w.Stability = *s.Stability
	}
	if s.SimilarityBoost != nil {
		w.SimilarityBoost = *s.SimilarityBoost
	}
	if s.Style != nil {
		w.Style = *s.Style
	}
	if s.UseSpeakerBoost != nil {
		w.UseSpeakerBoost = *s.UseSpeakerBoost
	}
	return w
}

type synthesisBody struct {
	Text          string       `json:"text"`
	ModelID       string       `json:"model_id"`
	VoiceSettings wireSettings `json:"voice_settings"`
}

// Synthesize converts text to audio. Invalid requests fail with a validation
// error before any network call; API failures surface as upstream errors and
// are not retried.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	if errs := ValidateRequest(req, c.cfg.MaxTextLength); len(errs) > 0 {
		return nil, apperr.Validation("invalid synthesis request", errs...)
	}
	if !c.Configured() {
		return nil, apperr.Upstream("voice", errNotConfigured)
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.cfg.DefaultVoiceID
	}
	format := req.OutputFormat
	if format == "" {
		format = c.cfg.OutputFormat
	}
	settings, err := c.ResolveSettings(req.Settings, req.Quality)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(synthesisBody{
		Text:          req.Text,
		ModelID:       c.cfg.ModelID,
		VoiceSettings: toWire(settings),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding synthesis request: %w", err)
	}

	contentType, ext := ContentType(format)
	endpoint := fmt.Sprintf("%s/text-to-speech/%s?%s", c.cfg.BaseURL, url.PathEscape(voiceID),
		url.Values{"output_format": {format}}.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Upstream("voice", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", contentType)
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	data, err := c.do(httpReq)
	if err != nil {
		c.logger.Error("speech synthesis failed", zap.String("voice_id", voiceID), zap.Error(err))
		return nil, apperr.Upstream("voice", err)
	}

	c.logger.Info("speech synthesized",
		zap.String("voice_id", voiceID),
		zap.String("format", format),
		zap.Int("text_length", len(req.Text)),
		zap.Int("audio_bytes", len(data)))

	return &Audio{
		Data:        data,
		Format:      format,
		ContentType: contentType,
		Extension:   ext,
		VoiceID:     voiceID,
		Size:        len(data),
	}, nil
}

type voicesResponse struct {
	Voices []struct {
		VoiceID     string `json:"voice_id"`
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
		PreviewURL  string `json:"preview_url"`
	} `json:"voices"`
}

// Voices fetches the catalogue and flattens it.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	if !c.Configured() {
		return nil, apperr.Upstream("voice", errNotConfigured)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/voices", nil)
	if err != nil {
		return nil, apperr.Upstream("voice", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	data, err := c.do(httpReq)
	if err != nil {
		c.logger.Error("listing voices failed", zap.Error(err))
		return nil, apperr.Upstream("voice", err)
	}

	var resp voicesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperr.Upstream("voice", fmt.Errorf("decoding voices: %w", err))
	}

	voices := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Category:    v.Category,
			Description: v.Description,
			PreviewURL:  v.PreviewURL,
			Available:   true,
		})
	}
	return voices, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("voice API returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return io.ReadAll(resp.Body)
}
