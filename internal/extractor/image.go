package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	// Register decoders for the formats the platforms serve.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/jonesrussell/promowatch/internal/sources/apiclient"
)

// Promocode banners place the code in a fixed band of the image. These
// fractions describe that band relative to the full image size.
const (
	cropLeft   = 0.10
	cropRight  = 0.90
	cropTop    = 0.62
	cropBottom = 0.80
)

// FetchImage downloads the post's media through the shared rate-limited
// client.
func FetchImage(ctx context.Context, client *apiclient.Client, mediaURL string) ([]byte, error) {
	body, err := client.Get(ctx, apiclient.Request{URL: mediaURL})
	if err != nil {
		return nil, fmt.Errorf("image download: %w", err)
	}
	return body, nil
}

// CropCodeRegion cuts the banner band out of the image and re-encodes it as
// PNG, the format the OCR engine handles most reliably.
func CropCodeRegion(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	region := cropRect(src.Bounds())
	cropped := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(cropped, cropped.Bounds(), src, region.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}

// cropRect maps the fractional band onto concrete pixel bounds.
func cropRect(bounds image.Rectangle) image.Rectangle {
	width := bounds.Dx()
	height := bounds.Dy()

	return image.Rect(
		bounds.Min.X+int(float64(width)*cropLeft),
		bounds.Min.Y+int(float64(height)*cropTop),
		bounds.Min.X+int(float64(width)*cropRight),
		bounds.Min.Y+int(float64(height)*cropBottom),
	)
}
