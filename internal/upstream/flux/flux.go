// Package flux provides the adapter for the Flux Pro image-generation API.
// It translates validated argument mappings into single outbound calls and
// normalises responses through the upstream client.
package flux

import (
	"context"

	"github.com/bananabit/fluxgate/internal/upstream"
)

// DefaultBaseURL is the production Flux API endpoint.
const DefaultBaseURL = "https://api.aiml.services/v1"

// API paths, one per capability.
const (
	generatePath    = "/flux/generate"
	upscalePath     = "/flux/upscale"
	enhanceFacePath = "/flux/enhance"
)

// Client is the Flux adapter. It owns its own HTTP connection pool and
// shares no state with other adapters.
type Client struct {
	api *upstream.Client
}

// New creates a Flux client. baseURL falls back to [DefaultBaseURL] when
// empty.
func New(baseURL, apiKey string, opts ...upstream.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: upstream.NewClient("flux", baseURL, apiKey, opts...)}
}

// GenerateRequest is the outbound payload for a text-to-image call.
type GenerateRequest struct {
	Model             string  `json:"model"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Scheduler         string  `json:"scheduler,omitempty"`
	StylePreset       string  `json:"style_preset,omitempty"`
	NumImages         int     `json:"num_images"`
	Seed              *int64  `json:"seed,omitempty"`
}

// GenerateResponse carries the generated images. Each entry is either a
// base64-encoded image or a URL, depending on the upstream's delivery mode.
type GenerateResponse struct {
	Images []GeneratedImage `json:"images"`
}

// GeneratedImage is one artifact from a generation call.
type GeneratedImage struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"b64_json,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
}

// Generate performs one text-to-image call against the deadline carried in
// ctx.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		req.Model = "flux-pro-1.1"
	}
	var resp GenerateResponse
	if err := c.api.PostJSON(ctx, generatePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// upscaleRequest is the outbound payload for an upscaling call.
type upscaleRequest struct {
	Model       string  `json:"model"`
	Image       string  `json:"image"`
	ScaleFactor float64 `json:"scale_factor"`
}

// imageResponse carries a single processed image.
type imageResponse struct {
	Image string `json:"image"`
}

// Upscale upscales a base64-encoded image by factor.
func (c *Client) Upscale(ctx context.Context, image string, factor float64) (string, error) {
	var resp imageResponse
	err := c.api.PostJSON(ctx, upscalePath, upscaleRequest{
		Model:       "flux-pro-1.1",
		Image:       image,
		ScaleFactor: factor,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Image, nil
}

// enhanceFaceRequest is the outbound payload for a face-enhancement call.
type enhanceFaceRequest struct {
	Model    string  `json:"model"`
	Image    string  `json:"image"`
	Enhance  bool    `json:"face_enhance"`
	Strength float64 `json:"face_enhance_strength"`
}

// EnhanceFaces improves facial features in a base64-encoded image.
func (c *Client) EnhanceFaces(ctx context.Context, image string) (string, error) {
	var resp imageResponse
	err := c.api.PostJSON(ctx, enhanceFacePath, enhanceFaceRequest{
		Model:    "flux-pro-1.1",
		Image:    image,
		Enhance:  true,
		Strength: 0.8,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Image, nil
}

// Download fetches a generated image by URL.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	return c.api.GetBytes(ctx, url)
}
