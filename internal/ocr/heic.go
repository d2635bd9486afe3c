package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// convertHEIC converts HEIC/HEIF bytes to PNG bytes with an external
// converter ("heif-convert" | "magick" | "sips"). Phone cameras produce
// HEIC, which neither tesseract nor the Go decoders read.
func convertHEIC(ctx context.Context, r Runner, logger *zap.Logger, converter string, data []byte) ([]byte, []string, error) {
	tmpDir, err := os.MkdirTemp("", "labelscan-heic-*")
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "label.heic")
	out := filepath.Join(tmpDir, "label.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, nil, err
	}

	var args []string
	switch converter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return nil, nil, fmt.Errorf("HEIC not supported: set ocr heic_converter to one of: heif-convert | magick | sips")
	}
	if _, errb, err := r.Run(ctx, converter, args...); err != nil {
		return nil, []string{string(errb)}, fmt.Errorf("%s failed: %w", converter, err)
	}

	png, err := os.ReadFile(out)
	if err != nil {
		return nil, nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	logger.Debug("ocr.heic.converted", zap.String("converter", converter), zap.Int("png_bytes", len(png)))
	return png, nil, nil
}
