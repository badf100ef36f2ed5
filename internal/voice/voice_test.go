package voice

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.VoiceConfig {
	return config.VoiceConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		DefaultVoiceID: "default-voice",
		ModelID:        "eleven_monolingual_v1",
		QualityPreset:  "balanced",
		OutputFormat:   "mp3_44100_128",
		MaxTextLength:  50,
	}
}

func TestValidateSettings(t *testing.T) {
	assert.NotEmpty(t, ValidateSettings(Settings{Stability: Float(1.5)}))
	assert.Empty(t, ValidateSettings(Settings{Stability: Float(0.5), SimilarityBoost: Float(0.5)}))
	assert.Empty(t, ValidateSettings(Settings{}))
	assert.Len(t, ValidateSettings(Settings{Stability: Float(-0.1), SimilarityBoost: Float(2), Style: Float(1.01)}), 3)
	assert.Empty(t, ValidateSettings(Settings{Stability: Float(0), Style: Float(1)}))
	assert.Len(t, ValidateSettings(Settings{Stability: Float(math.NaN()), Style: Float(math.Inf(1))}), 2)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     SynthesisRequest
		wantErr string
	}{
		{"valid", SynthesisRequest{Text: "Welcome home"}, ""},
		{"empty text", SynthesisRequest{Text: "   "}, "text is required"},
		{"too long", SynthesisRequest{Text: strings.Repeat("a", 11)}, "maximum is 10"},
		{"bad format", SynthesisRequest{Text: "hi", OutputFormat: "wav"}, "outputFormat must be one of"},
		{"bad preset", SynthesisRequest{Text: "hi", Quality: "studio"}, "unknown quality preset"},
		{"bad settings", SynthesisRequest{Text: "hi", Settings: &Settings{Stability: Float(1.5)}}, "stability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRequest(tt.req, 10)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Contains(t, strings.Join(errs, "; "), tt.wantErr)
		})
	}
}

func TestPresets(t *testing.T) {
	names := make([]string, 0)
	for _, p := range Presets() {
		names = append(names, p.Name)
		assert.Empty(t, ValidateSettings(p.Settings), p.Name)
		assert.NotEmpty(t, p.Description, p.Name)
	}
	assert.Equal(t, []string{"balanced", "expressive", "fast", "high_quality"}, names)

	p, ok := LookupPreset("balanced")
	require.True(t, ok)
	assert.Equal(t, 0.5, *p.Settings.Stability)
	assert.True(t, *p.Settings.UseSpeakerBoost)
}

func TestParsePresets_RejectsOutOfRange(t *testing.T) {
	_, err := parsePresets([]byte("presets:\n  loud:\n    stability: 1.2\n"))
	assert.ErrorContains(t, err, "loud")

	_, err = parsePresets([]byte("presets: ["))
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	ct, ext := ContentType("mp3_44100_128")
	assert.Equal(t, "audio/mpeg", ct)
	assert.Equal(t, "mp3", ext)

	ct, ext = ContentType("pcm_16000")
	assert.Equal(t, "audio/pcm", ct)
	assert.Equal(t, "pcm", ext)

	ct, _ = ContentType("unknown")
	assert.Equal(t, "application/octet-stream", ct)
}

func TestNewClient_UnknownPreset(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.QualityPreset = "studio"
	_, err := NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestResolveSettings(t *testing.T) {
	c, err := NewClient(testConfig("http://localhost"), nil)
	require.NoError(t, err)

	s, err := c.ResolveSettings(nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0.5, *s.Stability)
	assert.Equal(t, 0.75, *s.SimilarityBoost)

	s, err = c.ResolveSettings(nil, "high_quality")
	require.NoError(t, err)
	assert.Equal(t, 0.75, *s.Stability)

	s, err = c.ResolveSettings(&Settings{Stability: Float(0.1)}, "high_quality")
	require.NoError(t, err)
	assert.Equal(t, 0.1, *s.Stability)
	assert.Equal(t, 0.85, *s.SimilarityBoost)

	_, err = c.ResolveSettings(nil, "studio")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

type capturedRequest struct {
	path   string
	query  string
	apiKey string
	accept string
	body   map[string]any
}

func newFakeAPI(t *testing.T, status int, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery
		captured.apiKey = r.Header.Get("xi-api-key")
		captured.accept = r.Header.Get("Accept")
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &captured.body)
			}
		}
		w.WriteHeader(status)
		switch {
		case status != http.StatusOK:
			_, _ = w.Write([]byte(`{"detail":"quota exceeded"}`))
		case strings.HasSuffix(r.URL.Path, "/voices"):
			_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade","description":"calm","preview_url":"https://example.com/v1.mp3"}]}`))
		default:
			_, _ = w.Write([]byte("ID3-audio"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSynthesize(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusOK, &got)
	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	audio, err := c.Synthesize(context.Background(), SynthesisRequest{
		Text:     "Three bedrooms with a view",
		Settings: &Settings{Style: Float(0.3)},
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-audio"), audio.Data)
	assert.Equal(t, len("ID3-audio"), audio.Size)
	assert.Equal(t, "default-voice", audio.VoiceID)
	assert.Equal(t, "mp3_44100_128", audio.Format)
	assert.Equal(t, "audio/mpeg", audio.ContentType)

	assert.Equal(t, "/text-to-speech/default-voice", got.path)
	assert.Equal(t, "output_format=mp3_44100_128", got.query)
	assert.Equal(t, "test-key", got.apiKey)
	assert.Equal(t, "audio/mpeg", got.accept)
	assert.Equal(t, "Three bedrooms with a view", got.body["text"])
	assert.Equal(t, "eleven_monolingual_v1", got.body["model_id"])
	settings := got.body["voice_settings"].(map[string]any)
	assert.Equal(t, 0.5, settings["stability"])
	assert.Equal(t, 0.3, settings["style"])
	assert.Equal(t, true, settings["use_speaker_boost"])
}

func TestSynthesize_ExplicitVoiceAndFormat(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusOK, &got)
	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	audio, err := c.Synthesize(context.Background(), SynthesisRequest{
		Text: "hello", VoiceID: "other", OutputFormat: "pcm_24000", Quality: "fast",
	})
	require.NoError(t, err)
	assert.Equal(t, "other", audio.VoiceID)
	assert.Equal(t, "/text-to-speech/other", got.path)
	assert.Equal(t, "output_format=pcm_24000", got.query)
	assert.Equal(t, false, got.body["voice_settings"].(map[string]any)["use_speaker_boost"])
}

type countingTransport struct {
	next  http.RoundTripper
	calls int
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(r)
}

func TestSynthesize_CustomHTTPClient(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusOK, &got)
	transport := &countingTransport{next: srv.Client().Transport}
	c, err := NewClient(testConfig(srv.URL), nil, WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), SynthesisRequest{
		Text:     "hello",
		Settings: &Settings{UseSpeakerBoost: Bool(false)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	settings := got.body["voice_settings"].(map[string]any)
	assert.Equal(t, false, settings["use_speaker_boost"], "explicit value overrides the balanced preset")
	assert.Equal(t, 0.5, settings["stability"])
}

func TestSynthesize_ValidationBeforeNetwork(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusOK, &got)
	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), SynthesisRequest{Text: "hi", Settings: &Settings{Stability: Float(1.5)}})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.NotEmpty(t, apperr.DetailsOf(err))
	assert.Empty(t, got.path)
}

func TestSynthesize_UpstreamFailure(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusUnauthorized, &got)
	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = c.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.ErrorContains(t, err, "401")
}

func TestSynthesize_NotConfigured(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKey = ""
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.False(t, c.Configured())

	_, err = c.Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	_, err = c.Voices(context.Background())
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestVoices(t *testing.T) {
	var got capturedRequest
	srv := newFakeAPI(t, http.StatusOK, &got)
	c, err := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, err)

	voices, err := c.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, Voice{
		VoiceID:     "v1",
		Name:        "Rachel",
		Category:    "premade",
		Description: "calm",
		PreviewURL:  "https://example.com/v1.mp3",
		Available:   true,
	}, voices[0])
	assert.Equal(t, "/voices", got.path)
}
