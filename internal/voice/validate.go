package voice

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

type outputFormat struct {
	contentType string
	extension   string
}

var outputFormats = map[string]outputFormat{
	"mp3_44100_128": {"audio/mpeg", "mp3"},
	"mp3_22050_32":  {"audio/mpeg", "mp3"},
	"pcm_16000":     {"audio/pcm", "pcm"},
	"pcm_22050":     {"audio/pcm", "pcm"},
	"pcm_24000":     {"audio/pcm", "pcm"},
	"ulaw_8000":     {"audio/basic", "ulaw"},
}

// OutputFormats lists the accepted output formats.
func OutputFormats() []string {
	out := make([]string, 0, len(outputFormats))
	for f := range outputFormats {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ContentType returns the MIME type and file extension for format.
func ContentType(format string) (string, string) {
	if f, ok := outputFormats[format]; ok {
		return f.contentType, f.extension
	}
	return "application/octet-stream", "bin"
}

func checkUnit(name string, v *float64) string {
	if v == nil {
		return ""
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return fmt.Sprintf("%s must be between 0 and 1, got %g", name, *v)
	}
	return ""
}

// ValidateSettings returns one message per out-of-range value. An empty
// result means the settings are valid.
func ValidateSettings(s Settings) []string {
	var errs []string
	for _, msg := range []string{
		checkUnit("stability", s.Stability),
		checkUnit("similarityBoost", s.SimilarityBoost),
		checkUnit("style", s.Style),
	} {
		if msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

// ValidateRequest checks a synthesis request before any network call.
func ValidateRequest(req SynthesisRequest, maxTextLength int) []string {
	var errs []string
	if strings.TrimSpace(req.Text) == "" {
		errs = append(errs, "text is required")
	} else if n := utf8.RuneCountInString(req.Text); maxTextLength > 0 && n > maxTextLength {
		errs = append(errs, fmt.Sprintf("text has %d characters, maximum is %d", n, maxTextLength))
	}
	if req.OutputFormat != "" {
		if _, ok := outputFormats[req.OutputFormat]; !ok {
			errs = append(errs, fmt.Sprintf("outputFormat must be one of %s", strings.Join(OutputFormats(), ", ")))
		}
	}
	if req.Quality != "" {
		if _, ok := LookupPreset(req.Quality); !ok {
			errs = append(errs, fmt.Sprintf("unknown quality preset %q", req.Quality))
		}
	}
	if req.Settings != nil {
		errs = append(errs, ValidateSettings(*req.Settings)...)
	}
	return errs
}
