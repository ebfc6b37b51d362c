// Package photo normalizes submitted images and prepares compact copies for
// vision models.
package photo

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // decoder registration
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // decoder registration
)

const (
	// ContentType is the content type of every normalized photo.
	ContentType = "image/jpeg"

	// Target aspect ratio, width:height.
	RatioWidth  = 3
	RatioHeight = 2

	// StoreQuality is the JPEG quality of the persisted photo.
	StoreQuality = 90

	// ModelMaxSide and ModelQuality shape the copy sent to a vision model.
	ModelMaxSide = 1024
	ModelQuality = 85
)

// CropRect returns the centered 3:2 region of a w×h image.
// Images wider than 3:2 lose columns equally on both sides; all others lose rows.
func CropRect(w, h int) image.Rectangle {
	if w*RatioHeight > h*RatioWidth {
		newW := int(math.Round(float64(h) * RatioWidth / RatioHeight))
		left := (w - newW) / 2
		return image.Rect(left, 0, left+newW, h)
	}

	newH := int(math.Round(float64(w) * RatioHeight / RatioWidth))
	top := (h - newH) / 2
	return image.Rect(0, top, w, top+newH)
}

// Normalize decodes raw, crops it to 3:2 around the center and re-encodes it as
// an opaque JPEG at StoreQuality. It fails if raw is not a decodable image.
func Normalize(raw []byte) ([]byte, error) {
	img, err := decode(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	rect := CropRect(b.Dx(), b.Dy()).Add(b.Min)
	cropped := imaging.Crop(img, rect)
	if cropped.Bounds().Empty() {
		return nil, fmt.Errorf("cropping %dx%d image produced no pixels", b.Dx(), b.Dy())
	}

	return encodeJPEG(cropped, StoreQuality)
}

// CompressForModel returns a JPEG copy of raw no larger than ModelMaxSide on its
// longer side, at ModelQuality. The result is meant for transmission only.
func CompressForModel(raw []byte) ([]byte, error) {
	img, err := decode(raw)
	if err != nil {
		return nil, err
	}

	// Fit never upscales; smaller images come back as a plain copy.
	fitted := imaging.Fit(img, ModelMaxSide, ModelMaxSide, imaging.Lanczos)
	return encodeJPEG(fitted, ModelQuality)
}

func decode(raw []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decoding image: empty %dx%d image", b.Dx(), b.Dy())
	}
	return img, nil
}

// encodeJPEG discards any alpha channel and encodes img as JPEG.
func encodeJPEG(img *image.NRGBA, quality int) ([]byte, error) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
