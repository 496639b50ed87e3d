package provider

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

const (
	// SupportedModel is the only model the provider accepts.
	SupportedModel = "sora"

	maxPixels        = 1920 * 1080
	defaultShortSide = 1080
)

// shortSides maps resolution labels to the length of the shorter edge.
var shortSides = map[string]int{
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
}

// aspectRatios maps aspect ratio labels to width:height.
var aspectRatios = map[string][2]int{
	"16:9": {16, 9},
	"9:16": {9, 16},
	"1:1":  {1, 1},
	"4:3":  {4, 3},
	"3:4":  {3, 4},
}

// Dimensions derives width and height from a resolution and aspect ratio label.
// A resolution alone is landscape 16:9, an aspect ratio alone uses a 1080
// short edge, and nothing at all is a 1080x1080 square.
func Dimensions(resolution, aspectRatio string) (int, int, error) {
	if resolution == "" && aspectRatio == "" {
		return defaultShortSide, defaultShortSide, nil
	}

	short := defaultShortSide
	if resolution != "" {
		s, ok := shortSides[resolution]
		if !ok {
			return 0, 0, domain.Validationf("unsupported resolution %q", resolution)
		}
		short = s
	}

	ratio := aspectRatios["16:9"]
	if aspectRatio != "" {
		r, ok := aspectRatios[aspectRatio]
		if !ok {
			return 0, 0, domain.Validationf("unsupported aspect ratio %q", aspectRatio)
		}
		ratio = r
	}

	w, h := ratio[0], ratio[1]
	if w >= h {
		return evenRound(float64(short) * float64(w) / float64(h)), short, nil
	}
	return short, evenRound(float64(short) * float64(h) / float64(w)), nil
}

func evenRound(v float64) int {
	return int(math.Round(v/2)) * 2
}

// Validate checks the request against provider constraints and fills in the
// model and dimensions. It never touches the network.
func (r *GenerationRequest) Validate(defaultModel string) error {
	if strings.TrimSpace(r.Prompt) == "" {
		return domain.Validationf("prompt is required")
	}
	if n := utf8.RuneCountInString(r.Prompt); n > domain.MaxPromptLength {
		return domain.Validationf("prompt must be 1-%d characters, got %d", domain.MaxPromptLength, n)
	}
	if r.DurationSeconds < domain.MinDurationSeconds || r.DurationSeconds > domain.MaxDurationSeconds {
		return domain.Validationf("duration must be %d-%d seconds, got %d",
			domain.MinDurationSeconds, domain.MaxDurationSeconds, r.DurationSeconds)
	}
	if r.Variants < domain.MinVariants || r.Variants > domain.MaxVariants {
		return domain.Validationf("variant count must be %d-%d, got %d",
			domain.MinVariants, domain.MaxVariants, r.Variants)
	}

	if r.Model == "" {
		r.Model = defaultModel
	}
	if r.Model != SupportedModel {
		return domain.Validationf("unsupported model %q (only %q)", r.Model, SupportedModel)
	}

	if (r.Width == 0) != (r.Height == 0) {
		return domain.Validationf("width and height must be given together, got %dx%d", r.Width, r.Height)
	}
	if r.Width == 0 {
		w, h, err := Dimensions(r.Resolution, r.AspectRatio)
		if err != nil {
			return err
		}
		r.Width, r.Height = w, h
	}
	if r.Width <= 0 || r.Height <= 0 {
		return domain.Validationf("width and height must be positive")
	}
	if r.Width*r.Height > maxPixels {
		return domain.Validationf("%dx%d exceeds the maximum of %d pixels (1920x1080)", r.Width, r.Height, maxPixels)
	}
	return nil
}
