package domain

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	MaxPromptLength        = 1000
	MinDurationSeconds     = 1
	MaxDurationSeconds     = 20
	DefaultDurationSeconds = 5
	MinVariants            = 1
	MaxVariants            = 4
	MaxBatchSize           = 10
)

// Resolutions lists the supported resolution labels. Nothing above 1080p.
var Resolutions = []string{"480p", "720p", "1080p"}

// AspectRatios lists the supported aspect ratio labels.
var AspectRatios = []string{"16:9", "9:16", "1:1", "4:3", "3:4"}

// CreateVideoRequest represents an incoming video generation request.
type CreateVideoRequest struct {
	Prompt          string   `json:"prompt" binding:"required"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Width           *int     `json:"width,omitempty"`
	Height          *int     `json:"height,omitempty"`
	Variants        *int     `json:"variants,omitempty"`
	Model           string   `json:"model,omitempty"`
	Priority        Priority `json:"priority,omitempty"`
}

// Validate checks the domain-level constraints of the request.
func (r *CreateVideoRequest) Validate() error {
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return Validationf("prompt is required")
	}
	if utf8.RuneCountInString(r.Prompt) > MaxPromptLength {
		return Validationf("prompt must be at most %d characters", MaxPromptLength)
	}
	if r.DurationSeconds != nil {
		d := *r.DurationSeconds
		if d < MinDurationSeconds || d > MaxDurationSeconds {
			return Validationf("duration must be between %d and %d seconds", MinDurationSeconds, MaxDurationSeconds)
		}
	}
	if r.Resolution != "" && !slices.Contains(Resolutions, r.Resolution) {
		return Validationf("unsupported resolution %q (supported: %s)", r.Resolution, strings.Join(Resolutions, ", "))
	}
	if r.AspectRatio != "" && !slices.Contains(AspectRatios, r.AspectRatio) {
		return Validationf("unsupported aspect ratio %q (supported: %s)", r.AspectRatio, strings.Join(AspectRatios, ", "))
	}
	if (r.Width == nil) != (r.Height == nil) {
		return Validationf("width and height must be given together")
	}
	if r.Width != nil && *r.Width <= 0 {
		return Validationf("width must be positive")
	}
	if r.Height != nil && *r.Height <= 0 {
		return Validationf("height must be positive")
	}
	if r.Variants != nil && (*r.Variants < MinVariants || *r.Variants > MaxVariants) {
		return Validationf("variants must be between %d and %d", MinVariants, MaxVariants)
	}
	if r.Priority != "" && !r.Priority.IsValid() {
		return Validationf("unsupported priority %q", r.Priority)
	}
	return nil
}

// Settings resolves the request into the settings stored on the job.
func (r *CreateVideoRequest) Settings() VideoSettings {
	s := VideoSettings{
		DurationSeconds: DefaultDurationSeconds,
		Resolution:      r.Resolution,
		AspectRatio:     r.AspectRatio,
		Variants:        MinVariants,
		Model:           r.Model,
	}
	if r.DurationSeconds != nil {
		s.DurationSeconds = *r.DurationSeconds
	}
	if r.Width != nil {
		s.Width = *r.Width
	}
	if r.Height != nil {
		s.Height = *r.Height
	}
	if r.Variants != nil {
		s.Variants = *r.Variants
	}
	return s
}

// JobPriority returns the requested priority or normal.
func (r *CreateVideoRequest) JobPriority() Priority {
	if r.Priority == "" {
		return PriorityNormal
	}
	return r.Priority
}

// CreateBatchRequest groups several video requests under one batch.
type CreateBatchRequest struct {
	Name   string               `json:"name,omitempty"`
	Videos []CreateVideoRequest `json:"videos" binding:"required"`
}
