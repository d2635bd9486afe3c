package ocr

import (
	"bytes"
	"image"
	_ "image/gif"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	contrastBoost   = 0.35
	sharpenSigma    = 1.0
	binaryThreshold = 150
)

// decode reads any registered format and applies the EXIF orientation, so
// phone photos taken sideways are upright before recognition.
func decode(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// preprocess prepares a photo of a label for tesseract: shrink oversized
// captures, drop colour, lift contrast and sharpen glyph edges. binarize
// additionally thresholds to black and white, which helps on glossy packaging.
func preprocess(img image.Image, maxDim int, binarize bool) image.Image {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
		}
	}
	gray := imaging.Grayscale(img)
	contrasted := adjust.Contrast(gray, contrastBoost)
	sharp := imaging.Sharpen(contrasted, sharpenSigma)
	if binarize {
		return segment.Threshold(sharp, binaryThreshold)
	}
	return sharp
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
