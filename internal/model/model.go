// Package model holds the static catalogue of image-generation models and
// their capability sets. The catalogue is built once at startup and is
// read-only afterwards.
package model

import (
	"errors"
	"fmt"
	"slices"
)

// Capability names a feature an image model supports.
type Capability string

const (
	CapTextToImage   Capability = "text-to-image"
	CapImageToImage  Capability = "image-to-image"
	CapInpainting    Capability = "inpainting"
	CapControlNet    Capability = "controlnet"
	CapUpscaling     Capability = "upscaling"
	CapFaceEnhance   Capability = "face-enhance"
	CapStyleTransfer Capability = "style-transfer"
)

// ErrUnknownModel is returned by [Catalog.Get] for unregistered model ids.
var ErrUnknownModel = errors.New("unknown model")

// Model describes one image-generation model.
type Model struct {
	ID           string         `json:"model_id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Capabilities []Capability   `json:"capabilities"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Supports reports whether the model carries capability c.
func (m *Model) Supports(c Capability) bool {
	return slices.Contains(m.Capabilities, c)
}

// RequireCapabilities returns an error naming every capability in caps the
// model lacks.
func (m *Model) RequireCapabilities(caps ...Capability) error {
	var missing []Capability
	for _, c := range caps {
		if !m.Supports(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("model %q missing required capabilities: %v", m.ID, missing)
	}
	return nil
}

// Catalog is the read-only model registry.
type Catalog struct {
	models map[string]*Model
	order  []string
}

// NewCatalog builds a catalogue containing the built-in models.
func NewCatalog() *Catalog {
	c := &Catalog{models: make(map[string]*Model)}
	c.add(&Model{
		ID:      "flux-pro-1.1",
		Name:    "Flux Pro",
		Version: "1.1",
		Capabilities: []Capability{
			CapTextToImage, CapImageToImage, CapInpainting, CapControlNet,
			CapUpscaling, CapFaceEnhance, CapStyleTransfer,
		},
		Metadata: map[string]any{
			"provider":    "AIMLAPI",
			"description": "Advanced image generation and manipulation model",
		},
	})
	c.add(&Model{
		ID:      "sd-v1-5",
		Name:    "Stable Diffusion v1.5",
		Version: "1.5",
		Capabilities: []Capability{
			CapTextToImage, CapImageToImage,
		},
		Metadata: map[string]any{
			"provider":    "StabilityAI",
			"description": "Stable Diffusion v1.5 text-to-image model",
		},
	})
	return c
}

func (c *Catalog) add(m *Model) {
	c.models[m.ID] = m
	c.order = append(c.order, m.ID)
}

// Get returns the model with the given id, or an error wrapping
// [ErrUnknownModel].
func (c *Catalog) Get(id string) (*Model, error) {
	m, ok := c.models[id]
	if !ok {
		return nil, fmt.Errorf("model: %q: %w", id, ErrUnknownModel)
	}
	return m, nil
}

// List returns all models in registration order.
func (c *Catalog) List() []*Model {
	out := make([]*Model, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}
