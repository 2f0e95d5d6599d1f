package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pavelanni/practicals/internal/model"
)

// DataURIs produces self-contained data: references. Decodable raster
// images larger than MaxWidth x MaxHeight are scaled down to fit; anything
// else is embedded as is.
type DataURIs struct {
	MaxWidth  int
	MaxHeight int
}

// Refs implements RefSource.
func (d DataURIs) Refs(_ int, blobs []model.Blob) ([]string, error) {
	refs := make([]string, 0, len(blobs))
	for _, b := range blobs {
		ct, data := d.thumbnail(b)
		refs = append(refs, dataURI(ct, data))
	}
	return refs, nil
}

func (d DataURIs) thumbnail(b model.Blob) (string, []byte) {
	ct := b.ContentType
	if ct == "" {
		ct = model.SniffImageType(b.Data)
	}
	if d.MaxWidth <= 0 || d.MaxHeight <= 0 {
		return ct, b.Data
	}
	img, err := imaging.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return ct, b.Data
	}
	bounds := img.Bounds()
	if bounds.Dx() <= d.MaxWidth && bounds.Dy() <= d.MaxHeight {
		return ct, b.Data
	}
	thumb := imaging.Fit(img, d.MaxWidth, d.MaxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return ct, b.Data
	}
	return "image/png", buf.Bytes()
}

func dataURI(contentType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}
