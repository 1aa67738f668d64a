// Package generate implements the asynchronous image-generation flow: a
// request is validated against the model catalogue, recorded as processing,
// and executed in the background through the dispatch core so the global
// concurrency ceiling and request timeout apply. Callers poll the store for
// the terminal record.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bananabit/fluxgate/internal/catalog"
	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/model"
	"github.com/bananabit/fluxgate/internal/store"
	"github.com/bananabit/fluxgate/internal/upstream/flux"
)

// Request is one image-generation request as received over HTTP.
type Request struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	Width             int     `json:"width,omitempty"`
	Height            int     `json:"height,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Scheduler         string  `json:"scheduler,omitempty"`
	StylePreset       string  `json:"style_preset,omitempty"`
	NumImages         int     `json:"batch_size,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`

	// Post-processing flags; they only gate model capability checks here,
	// the heavy lifting happens upstream.
	FaceEnhance    bool     `json:"face_enhance,omitempty"`
	UpscaleFactor  *float64 `json:"upscale_factor,omitempty"`
	ControlImage   string   `json:"control_image,omitempty"`
	ControlType    string   `json:"control_type,omitempty"`
	ReferenceImage string   `json:"reference_image,omitempty"`
}

// Service runs generations through the dispatcher and records outcomes.
type Service struct {
	models     *model.Catalog
	store      store.Store
	dispatcher *dispatch.Dispatcher
}

// New creates a Service.
func New(models *model.Catalog, st store.Store, d *dispatch.Dispatcher) *Service {
	return &Service{models: models, store: st, dispatcher: d}
}

// Start validates req against the model's capabilities, stores a processing
// record, and kicks off the generation in the background. The returned
// record carries the generation id the caller polls with.
func (s *Service) Start(ctx context.Context, modelID string, req Request) (*store.Generation, error) {
	m, err := s.models.Get(modelID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapabilities(m, req); err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("generate: prompt must not be empty")
	}

	gen := &store.Generation{
		ID:        uuid.NewString(),
		ModelID:   modelID,
		Status:    store.StatusProcessing,
		CreatedAt: time.Now().UTC(),
		Metadata: map[string]any{
			"model_id": modelID,
			"prompt":   req.Prompt,
		},
	}
	if req.Seed != nil {
		gen.Metadata["seed"] = *req.Seed
	}
	if err := s.store.Put(ctx, gen); err != nil {
		return nil, fmt.Errorf("generate: record generation: %w", err)
	}

	// The background run outlives the HTTP request that started it.
	go s.process(context.WithoutCancel(ctx), gen.ID, req)

	return gen, nil
}

// Get returns the record for a generation id.
func (s *Service) Get(ctx context.Context, id string) (*store.Generation, error) {
	return s.store.Get(ctx, id)
}

// checkCapabilities mirrors the capability gating of the generate endpoint:
// optional request features require the matching model capability.
func (s *Service) checkCapabilities(m *model.Model, req Request) error {
	caps := []model.Capability{model.CapTextToImage}
	if req.ControlImage != "" {
		if req.ControlType == "" {
			return fmt.Errorf("generate: control_type must be specified when using control_image")
		}
		caps = append(caps, model.CapControlNet)
	}
	if req.FaceEnhance {
		caps = append(caps, model.CapFaceEnhance)
	}
	if req.ReferenceImage != "" {
		caps = append(caps, model.CapStyleTransfer)
	}
	if req.UpscaleFactor != nil {
		caps = append(caps, model.CapUpscaling)
	}
	return m.RequireCapabilities(caps...)
}

// process dispatches the actual upstream call and writes the terminal record.
func (s *Service) process(ctx context.Context, genID string, req Request) {
	inv := dispatch.NewInvocation(catalog.ToolGenerateImage, toArgs(req))

	payload, err := s.dispatcher.Dispatch(ctx, inv)

	gen, getErr := s.store.Get(ctx, genID)
	if getErr != nil {
		slog.Error("generate: lost generation record", "generation_id", genID, "err", getErr)
		return
	}

	if err != nil {
		gen.Status = store.StatusError
		gen.Error = err.Error()
	} else {
		gen.Status = store.StatusCompleted
		gen.Images = imagesFromPayload(payload)
	}

	if err := s.store.Put(ctx, gen); err != nil {
		slog.Error("generate: store terminal record", "generation_id", genID, "err", err)
	}
}

// toArgs converts a typed request into the argument mapping the tool schema
// expects. Zero values are omitted so schema defaults apply.
func toArgs(req Request) map[string]any {
	args := map[string]any{"prompt": req.Prompt}
	if req.NegativePrompt != "" {
		args["negative_prompt"] = req.NegativePrompt
	}
	if req.Width > 0 {
		args["width"] = req.Width
	}
	if req.Height > 0 {
		args["height"] = req.Height
	}
	if req.NumInferenceSteps > 0 {
		args["num_inference_steps"] = req.NumInferenceSteps
	}
	if req.GuidanceScale > 0 {
		args["guidance_scale"] = req.GuidanceScale
	}
	if req.Scheduler != "" {
		args["scheduler"] = req.Scheduler
	}
	if req.StylePreset != "" {
		args["style_preset"] = req.StylePreset
	}
	if req.NumImages > 0 {
		args["num_images"] = req.NumImages
	}
	if req.Seed != nil {
		args["seed"] = int(*req.Seed)
	}
	return args
}

// imagesFromPayload extracts image artifacts from the generate tool's
// payload.
func imagesFromPayload(payload any) []store.Image {
	resp, ok := payload.(*flux.GenerateResponse)
	if !ok || resp == nil {
		return nil
	}
	out := make([]store.Image, 0, len(resp.Images))
	for _, img := range resp.Images {
		out = append(out, store.Image{URL: img.URL, Base64: img.Base64, Seed: img.Seed})
	}
	return out
}
