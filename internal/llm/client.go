// Package llm is the extraction client for the Gemini inference service.
package llm

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/observability"
)

const (
	defaultPageModel      = "gemini-2.5-flash"
	defaultChemistryModel = "gemini-3-pro-preview"
)

// Generator is the subset of genai.Models used by the client.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options configures a Client.
type Options struct {
	PageModel      string
	ChemistryModel string
	Logger         *observability.Logger
}

// Client implements domain.Extractor. Each call is a single request with no retry.
type Client struct {
	gen            Generator
	pageModel      string
	chemistryModel string
	logger         *observability.Logger
}

// NewClient creates a Gemini-backed client.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, domain.ConfigError("missing inference service API key", nil)
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, domain.APIError("failed to create genai client", err)
	}

	return NewClientWithGenerator(c.Models, opts), nil
}

// NewClientWithGenerator wraps an existing generator, e.g. a test double.
func NewClientWithGenerator(gen Generator, opts Options) *Client {
	if opts.PageModel == "" {
		opts.PageModel = defaultPageModel
	}
	if opts.ChemistryModel == "" {
		opts.ChemistryModel = defaultChemistryModel
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	return &Client{
		gen:            gen,
		pageModel:      opts.PageModel,
		chemistryModel: opts.ChemistryModel,
		logger:         opts.Logger.WithOperation("extract"),
	}
}

// ExtractPageContent transcribes a page and locates its figures.
//
// Unparseable output yields FallbackPageContent with a nil error. A failed
// request yields the same fallback together with an api error.
func (c *Client) ExtractPageContent(ctx context.Context, page domain.RasterImage) (domain.PageContent, error) {
	raw, err := c.generate(ctx, c.pageModel, page, pagePrompt, pageSchema())
	if err != nil {
		return domain.FallbackPageContent(), err
	}

	content, err := parsePageContent(raw)
	if err != nil {
		c.logger.Warn().Err(err).Int("response_bytes", len(raw)).Msg("page response rejected, using fallback")
		return domain.FallbackPageContent(), nil
	}
	return content, nil
}

// ExtractChemicalStructure reads the most prominent structure in a crop as SMILES.
// Failure semantics match ExtractPageContent.
func (c *Client) ExtractChemicalStructure(ctx context.Context, crop domain.RasterImage) (domain.ChemicalResult, error) {
	raw, err := c.generate(ctx, c.chemistryModel, crop, chemistryPrompt, chemistrySchema())
	if err != nil {
		return domain.FallbackChemicalResult(), err
	}

	result, err := parseChemicalResult(raw)
	if err != nil {
		c.logger.Warn().Err(err).Int("response_bytes", len(raw)).Msg("chemistry response rejected, using fallback")
		return domain.FallbackChemicalResult(), nil
	}
	return result, nil
}

func (c *Client) generate(ctx context.Context, model string, img domain.RasterImage, prompt string, schema *genai.Schema) (string, error) {
	if img.IsEmpty() {
		return "", domain.ValidationError("image is empty", nil)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, domain.PNGMimeType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	start := time.Now()
	res, err := c.gen.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		c.logger.Error().Err(err).Str("model", model).Dur("elapsed", time.Since(start)).Msg("generate content failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", domain.APIError("inference request did not complete", err)
		}
		return "", domain.APIError("inference request failed", err)
	}

	c.logger.Debug().Str("model", model).Dur("elapsed", time.Since(start)).Msg("generate content done")

	if res == nil {
		return "", nil
	}
	return res.Text(), nil
}
