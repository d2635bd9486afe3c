package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Image is a captured label picture held by a session.
type Image struct {
	Data       []byte    `json:"-"`
	MIMEType   string    `json:"mime_type"`
	Filename   string    `json:"filename,omitempty"`
	Source     string    `json:"source"` // constants.SourceUpload | constants.SourceCamera
	SHA256     string    `json:"sha256"`
	Size       int       `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
}

// NewImage copies data and fills in the derived fields.
func NewImage(data []byte, mimeType, filename, source string) Image {
	buf := make([]byte, len(data))
	copy(buf, data)
	sum := sha256.Sum256(buf)
	return Image{
		Data:       buf,
		MIMEType:   mimeType,
		Filename:   filename,
		Source:     source,
		SHA256:     hex.EncodeToString(sum[:]),
		Size:       len(buf),
		CapturedAt: time.Now().UTC(),
	}
}

func (i Image) Empty() bool { return len(i.Data) == 0 }
