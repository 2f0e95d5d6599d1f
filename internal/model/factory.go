package model

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// DefaultImageType is assumed for image bytes whose format cannot be sniffed.
const DefaultImageType = "image/png"

// NewID returns a random unique token. It falls back to a pseudo-random
// base-36 string when the system entropy source is unavailable.
func NewID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return strconv.FormatUint(rand.Uint64(), 36) + strconv.FormatUint(rand.Uint64(), 36)
}

// NewQuestion creates an empty question with the given display number.
func NewQuestion(number string) Question {
	return Question{ID: NewID(), Number: number}
}

// NewPractical creates an empty practical holding a single question "1".
func NewPractical(practicalNo string) Practical {
	return Practical{
		PracticalNo: practicalNo,
		Questions:   []Question{NewQuestion("1")},
		Outputs:     []Blob{},
	}
}

// NewSession returns the initial editor state: no student data and practical "1".
func NewSession() Session {
	return Session{Practicals: []Practical{NewPractical("1")}}
}

// NewBlob wraps image bytes, sniffing the content type from the data.
func NewBlob(name string, data []byte) Blob {
	return Blob{Name: name, ContentType: SniffImageType(data), Data: data}
}

// SniffImageType returns the MIME type of an image, or DefaultImageType when
// the bytes are not a recognized image.
func SniffImageType(data []byte) string {
	kind, err := filetype.Image(data)
	if err != nil || kind == filetype.Unknown {
		return DefaultImageType
	}
	return kind.MIME.Value
}

// ImageExtension returns the file extension used for an image MIME type.
func ImageExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	case "image/webp":
		return "webp"
	}
	return "png"
}
