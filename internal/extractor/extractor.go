// Package extractor turns a post's media image into a promocode string.
//
// Two strategies are available: deterministic OCR over a cropped banner
// region, and a vision model prompt for layouts the crop heuristic cannot
// handle. Both return the code normalized to the site's alphabet.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

// codeAlphabet is the only character set the redemption form accepts.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// minCodeLength guards against OCR noise being mistaken for a code.
const minCodeLength = 4

// ErrNoCode is returned when the image yields no plausible promocode.
var ErrNoCode = errors.New("no promocode found in image")

// Interface extracts a promocode from raw image bytes.
type Interface interface {
	// Name identifies the strategy in logs and metrics.
	Name() string
	// Extract returns the promocode found in the image, or ErrNoCode.
	Extract(ctx context.Context, image []byte) (string, error)
}

// New builds the extractor selected by cfg.Strategy.
func New(cfg config.ExtractorConfig, log logger.Interface) (Interface, error) {
	switch cfg.Strategy {
	case config.StrategyOCR:
		return NewOCR(log), nil
	case config.StrategyGenAI:
		return NewGemini(cfg, log)
	default:
		return nil, fmt.Errorf("unknown extractor strategy: %q", cfg.Strategy)
	}
}

// normalizeCode reduces raw strategy output to a candidate code: the first
// whitespace-separated token, uppercased, with everything outside the code
// alphabet dropped.
func normalizeCode(raw string) (string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", ErrNoCode
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(fields[0]) {
		if strings.ContainsRune(codeAlphabet, r) {
			b.WriteRune(r)
		}
	}

	code := b.String()
	if len(code) < minCodeLength {
		return "", ErrNoCode
	}
	return code, nil
}
