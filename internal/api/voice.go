package api

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/RichardoC/realty-assistant/internal/apperr"
	"github.com/RichardoC/realty-assistant/internal/voice"
	"github.com/gin-gonic/gin"
)

type synthesizeRequest struct {
	Text          string          `json:"text" binding:"required"`
	VoiceID       string          `json:"voiceId" binding:"omitempty,max=64"`
	VoiceSettings *voice.Settings `json:"voiceSettings"`
	Quality       string          `json:"quality"`
	OutputFormat  string          `json:"outputFormat"`
}

func (r synthesizeRequest) toSynthesis() voice.SynthesisRequest {
	return voice.SynthesisRequest{
		Text:         r.Text,
		VoiceID:      r.VoiceID,
		Settings:     r.VoiceSettings,
		Quality:      r.Quality,
		OutputFormat: r.OutputFormat,
	}
}

// Synthesize returns binary audio for the given text.
func (h *Handler) Synthesize(c *gin.Context) {
	var req synthesizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindingError(err))
		return
	}
	synth := req.toSynthesis()
	if errs := voice.ValidateRequest(synth, h.voice.MaxTextLength()); len(errs) > 0 {
		h.fail(c, apperr.Validation("invalid synthesis request", errs...))
		return
	}

	audio, err := h.assistant.SynthesizeVoice(c.Request.Context(), synth)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("X-Voice-ID", audio.VoiceID)
	c.Header("X-Text-Length", strconv.Itoa(utf8.RuneCountInString(req.Text)))
	c.Header("X-Audio-Format", audio.Format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="speech.%s"`, audio.Extension))
	c.Data(http.StatusOK, audio.ContentType, audio.Data)
}

type chatAndSpeakRequest struct {
	chatMessageRequest
	VoiceID       string          `json:"voiceId" binding:"omitempty,max=64"`
	VoiceSettings *voice.Settings `json:"voiceSettings"`
	Quality       string          `json:"quality"`
	OutputFormat  string          `json:"outputFormat"`
}

// ChatAndSpeak runs a chat turn and returns the reply with base64 audio.
func (h *Handler) ChatAndSpeak(c *gin.Context) {
	var req chatAndSpeakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindingError(err))
		return
	}
	speech := voice.SynthesisRequest{
		VoiceID:      req.VoiceID,
		Settings:     req.VoiceSettings,
		Quality:      req.Quality,
		OutputFormat: req.OutputFormat,
	}
	// text is filled in from the reply, so validate the rest with a placeholder
	opts := speech
	opts.Text = "-"
	if errs := voice.ValidateRequest(opts, h.voice.MaxTextLength()); len(errs) > 0 {
		h.fail(c, apperr.Validation("invalid voice options", errs...))
		return
	}

	res, err := h.assistant.ChatAndSpeak(c.Request.Context(), req.toChat(), speech)
	if err != nil {
		h.fail(c, err)
		return
	}

	ok(c, gin.H{
		"conversationId": res.ConversationID,
		"response":       res.Response,
		"metadata":       res.Metadata,
		"audio": gin.H{
			"data":        res.Audio,
			"format":      res.AudioFormat,
			"contentType": res.ContentType,
			"voiceId":     res.VoiceID,
			"size":        res.AudioSize,
		},
	})
}

func (h *Handler) Voices(c *gin.Context) {
	voices, err := h.assistant.GetAvailableVoices(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"voices": voices, "count": len(voices), "defaultVoiceId": h.voice.DefaultVoiceID()})
}

func (h *Handler) VoicePresets(c *gin.Context) {
	ok(c, gin.H{
		"presets":       voice.Presets(),
		"default":       h.voice.DefaultPreset(),
		"outputFormats": voice.OutputFormats(),
	})
}

func (h *Handler) VoiceStats(c *gin.Context) {
	ok(c, gin.H{
		"service":        h.assistant.GetServiceStats(),
		"configured":     h.voice.Configured(),
		"defaultVoiceId": h.voice.DefaultVoiceID(),
		"defaultPreset":  h.voice.DefaultPreset(),
		"maxTextLength":  h.voice.MaxTextLength(),
	})
}
