package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedAsset is returned for content types that are neither image nor video
var ErrUnsupportedAsset = errors.New("unsupported asset type")

// ClassifyAsset derives the asset kind from a MIME type prefix.
func ClassifyAsset(contentType string) (AssetKind, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "video/"):
		return KindVideo, nil
	case strings.HasPrefix(ct, "image/"):
		return KindImage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAsset, contentType)
	}
}

// Asset is the file a user uploaded into a session slot.
type Asset struct {
	// Filename as supplied by the user
	Filename string `json:"filename"`

	// ContentType is the MIME type of the upload
	ContentType string `json:"contentType"`

	// Kind is derived from ContentType
	Kind AssetKind `json:"kind"`

	// Size in bytes
	Size int64 `json:"size"`

	// Handle references the stored original in the payload store
	Handle string `json:"handle"`

	// Data holds the raw bytes while a submission is being prepared; never persisted
	Data []byte `json:"-"`
}

// NewAsset classifies and wraps raw upload bytes.
func NewAsset(filename, contentType string, data []byte) (*Asset, error) {
	kind, err := ClassifyAsset(contentType)
	if err != nil {
		return nil, err
	}
	return &Asset{
		Filename:    filename,
		ContentType: contentType,
		Kind:        kind,
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// Payload is a binary blob held locally and addressed by handle, such as a
// processed image, a processed video or an uploaded original.
type Payload struct {
	Handle      string    `json:"handle"`
	ContentType string    `json:"contentType"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Size returns the payload length in bytes.
func (p *Payload) Size() int64 {
	return int64(len(p.Data))
}
