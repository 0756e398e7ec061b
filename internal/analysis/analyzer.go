package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action is the proxy operation name.
type Action string

const (
	ActionGenerateText Action = "generateText"
	ActionAnalyzeImage Action = "analyzeImage"
	ActionOCR          Action = "ocr"
	ActionAnalyzeAudio Action = "analyzeAudio"
)

// DefaultMIMEType is assumed for images without a declared type.
const DefaultMIMEType = "image/jpeg"

// Simulated stethoscope inputs.
const (
	SimulatedHeartSounds = "SIMULATED_HEART_SOUNDS"
	SimulatedLungSounds  = "SIMULATED_LUNG_SOUNDS"
)

// Analyzer is the AI collaborator. Every method returns the model's text
// or an error; it never returns error text as a result.
type Analyzer interface {
	AnalyzeText(ctx context.Context, prompt string) (string, error)
	AnalyzeImage(ctx context.Context, img Image, prompt string) (string, error)
	ExtractText(ctx context.Context, img Image, prompt string) (string, error)
	AnalyzeSimulatedAudio(ctx context.Context, inputType, prompt string) (string, error)
}

// Image is base64 image data with its MIME type.
type Image struct {
	Data     string
	MIMEType string
}

// ErrNotDataURL is returned by ParseDataURL for anything but a base64
// data URL.
var ErrNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL splits "data:<mime>;base64,<data>" as stored in captured
// image fields.
func ParseDataURL(s string) (Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Image{}, ErrNotDataURL
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || data == "" {
		return Image{}, ErrNotDataURL
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, ErrNotDataURL
	}
	if mime == "" {
		mime = DefaultMIMEType
	}
	return Image{Data: data, MIMEType: mime}, nil
}

// RemoteError is a failed proxy call. Status is zero when no response was
// received.
type RemoteError struct {
	Action  Action
	Status  int
	Message string
	Details string
	Err     error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Action))
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err is a *RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
