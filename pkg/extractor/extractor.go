// Package extractor is the public entry point for embedding the paper page
// pipeline in another program.
package extractor

import (
	"context"

	"github.com/spherical/paper-extractor/internal/config"
	"github.com/spherical/paper-extractor/internal/domain"
	"github.com/spherical/paper-extractor/internal/events"
	"github.com/spherical/paper-extractor/internal/llm"
	"github.com/spherical/paper-extractor/internal/observability"
	"github.com/spherical/paper-extractor/internal/pdf"
	"github.com/spherical/paper-extractor/internal/pipeline"
	"github.com/spherical/paper-extractor/internal/raster"
)

// Re-export domain types for the public API
type (
	PageRecord     = domain.PageRecord
	PageContent    = domain.PageContent
	PageStatus     = domain.PageStatus
	BoundingBox    = domain.BoundingBox
	ChemistryEntry = domain.ChemistryEntry
	ChemicalResult = domain.ChemicalResult
	StreamEvent    = domain.StreamEvent
	EventType      = domain.EventType
	LoadResult     = pipeline.LoadResult
	Config         = config.Config
)

// DefaultConfig returns the default configuration, without environment
// overrides applied.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// Event type constants
const (
	EventSessionLoaded = domain.EventSessionLoaded
	EventPageRendered  = domain.EventPageRendered
	EventRenderFailed  = domain.EventRenderFailed
	EventPageUpdated   = domain.EventPageUpdated
	EventSessionReset  = domain.EventSessionReset
)

// Page status constants
const (
	StatusIdle       = domain.StatusIdle
	StatusProcessing = domain.StatusProcessing
	StatusDone       = domain.StatusDone
	StatusError      = domain.StatusError
)

// Client owns one session and its in-process event broker.
type Client struct {
	cfg       *config.Config
	logger    *observability.Logger
	broker    *events.Broker
	session   *pipeline.Session
	validator *pdf.Validator
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger    *observability.Logger
	extractor domain.Extractor
}

// WithLogger sets the logger used by the client and its session.
func WithLogger(logger *observability.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithExtractor replaces the Gemini-backed extractor.
func WithExtractor(e domain.Extractor) Option {
	return func(o *clientOptions) { o.extractor = e }
}

// NewClient creates a client from the environment and an optional .env file.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(ctx, cfg, opts...)
}

// NewClientWithConfig creates a client with explicit configuration.
func NewClientWithConfig(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, domain.ConfigError("config is required", nil)
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	if o.extractor == nil {
		apiKey, err := cfg.RequireAPIKey()
		if err != nil {
			return nil, err
		}
		client, err := llm.NewClient(ctx, apiKey, llm.Options{
			PageModel:      cfg.Extraction.PageModel,
			ChemistryModel: cfg.Extraction.ChemistryModel,
			Logger:         o.logger,
		})
		if err != nil {
			return nil, err
		}
		o.extractor = client
	}

	broker := events.NewBroker(cfg.Events.Buffer, o.logger)
	session, err := pipeline.NewSession(pipeline.Options{
		Rasterizer:       pdf.NewConverter(),
		Extractor:        o.extractor,
		Cropper:          raster.NewCropper(),
		Publisher:        broker,
		Logger:           o.logger,
		PageTimeout:      cfg.Extraction.PageTimeout,
		ChemistryTimeout: cfg.Extraction.ChemistryTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:       cfg,
		logger:    o.logger,
		broker:    broker,
		session:   session,
		validator: pdf.NewValidator(cfg.Server.MaxUploadBytes),
	}, nil
}

// Load replaces the current document with the PDF bytes in data.
func (c *Client) Load(ctx context.Context, data []byte) (*LoadResult, error) {
	if err := c.validator.ValidateUpload("application/pdf", data); err != nil {
		return nil, err
	}
	return c.session.Load(ctx, data)
}

// LoadFile reads and loads a PDF from disk.
func (c *Client) LoadFile(ctx context.Context, path string) (*LoadResult, error) {
	data, err := c.validator.ReadPDF(path)
	if err != nil {
		return nil, err
	}
	return c.session.Load(ctx, data)
}

// ProcessPage starts content extraction for a page. The returned channel is
// closed once the page leaves the processing state.
func (c *Client) ProcessPage(ctx context.Context, pageNumber int) (<-chan struct{}, error) {
	return c.session.ProcessPage(ctx, pageNumber)
}

// IdentifyStructure starts chemistry recognition for one figure of a
// processed page. The pending entry is visible as soon as this returns.
func (c *Client) IdentifyStructure(ctx context.Context, pageNumber, figureIndex int) (<-chan struct{}, error) {
	return c.session.IdentifyStructure(ctx, pageNumber, figureIndex)
}

// Pages returns the current page records in page order.
func (c *Client) Pages() []PageRecord {
	return c.session.Pages()
}

// Page returns one page record.
func (c *Client) Page(pageNumber int) (PageRecord, error) {
	return c.session.Page(pageNumber)
}

// Subscribe streams session events until cancel is called or ctx ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan StreamEvent, func(), error) {
	return c.broker.Subscribe(ctx)
}

// Reset drops the current document.
func (c *Client) Reset() {
	c.session.Reset()
}

// Wait blocks until all background work has finished.
func (c *Client) Wait() {
	c.session.Wait()
}

// Close cancels outstanding work and releases resources.
func (c *Client) Close() error {
	err := c.session.Close()
	if berr := c.broker.Close(); err == nil {
		err = berr
	}
	return err
}
