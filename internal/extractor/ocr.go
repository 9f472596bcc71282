package extractor

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/jonesrussell/promowatch/internal/logger"
)

// OCR reads the promocode from the cropped banner band with Tesseract,
// restricted to the code alphabet so surrounding artwork cannot leak in.
type OCR struct {
	log logger.Interface
}

// NewOCR creates the OCR strategy.
func NewOCR(log logger.Interface) *OCR {
	return &OCR{log: log.WithComponent("extractor.ocr")}
}

// Name returns the strategy name.
func (o *OCR) Name() string { return "ocr" }

// Extract crops the code band and runs character recognition over it.
func (o *OCR) Extract(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cropped, err := CropCodeRegion(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetWhitelist(codeAlphabet); err != nil {
		return "", fmt.Errorf("failed to set ocr whitelist: %w", err)
	}
	if err := client.SetImageFromBytes(cropped); err != nil {
		return "", fmt.Errorf("failed to load image into ocr: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	o.log.Debug("ocr raw output", "text", text)

	return normalizeCode(text)
}

var _ Interface = (*OCR)(nil)
