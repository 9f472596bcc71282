package extractor

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/jonesrussell/promowatch/internal/config"
	"github.com/jonesrussell/promowatch/internal/logger"
)

const visionPrompt = `The image advertises a promotional code made of capital ` +
	`letters A-Z and digits 0-9. Reply with that code and nothing else. ` +
	`If the image contains no such code, reply with NONE.`

// Gemini extracts the promocode with a vision model. It sees the whole
// image, so it handles banner layouts the fixed crop cannot.
type Gemini struct {
	client *genai.Client
	model  string
	log    logger.Interface
}

// NewGemini creates the vision strategy.
func NewGemini(cfg config.ExtractorConfig, log logger.Interface) (*Gemini, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  cfg.GeminiModel,
		log:    log.WithComponent("extractor.gemini"),
	}, nil
}

// Name returns the strategy name.
func (g *Gemini) Name() string { return "genai" }

// Extract sends the image and prompt to the model and normalizes its reply.
func (g *Gemini) Extract(ctx context.Context, img []byte) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img, http.DetectContentType(img)),
			genai.NewPartFromText(visionPrompt),
		}, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("vision model request: %w", err)
	}

	text := result.Text()
	g.log.Debug("vision model reply", "text", text)

	code, err := normalizeCode(text)
	if err != nil {
		return "", err
	}
	if code == "NONE" {
		return "", ErrNoCode
	}
	return code, nil
}

var _ Interface = (*Gemini)(nil)
