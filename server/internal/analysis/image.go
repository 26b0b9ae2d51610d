package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thermowatch/thermowatch/pkg/types"
)

// DefaultMaxImageBytes is the upload size limit when none is configured.
const DefaultMaxImageBytes = 10 << 20

// Image is one uploaded thermogram.
type Image struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	ReceivedAt  time.Time `json:"received_at"`
	Data        []byte    `json:"-"`
}

// NewImage validates an upload. The content type must be image/* and the
// payload non-empty and no larger than maxBytes (DefaultMaxImageBytes if <= 0).
func NewImage(filename, contentType string, data []byte, maxBytes int) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(ct, "image/") {
		return Image{}, fmt.Errorf("%w: file must be an image, got %q", types.ErrInvalidInput, contentType)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: image is empty", types.ErrInvalidInput)
	}
	if len(data) > maxBytes {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit is %d", types.ErrInvalidInput, len(data), maxBytes)
	}
	return Image{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: ct,
		Size:        len(data),
		ReceivedAt:  time.Now().UTC(),
		Data:        data,
	}, nil
}
