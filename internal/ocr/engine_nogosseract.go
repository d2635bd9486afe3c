//go:build !gosseract

package ocr

import "errors"

func newGosseractEngine(Config) (Engine, error) {
	return nil, errors.New("ocr engine gosseract is not compiled in; rebuild with -tags gosseract")
}
