package generate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bananabit/fluxgate/internal/catalog"
	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/model"
	"github.com/bananabit/fluxgate/internal/store"
	"github.com/bananabit/fluxgate/internal/upstream/flux"
	"github.com/bananabit/fluxgate/internal/upstream/scrapegraph"
)

// newService wires a full service against a stub Flux upstream.
func newService(t *testing.T, upstreamHandler http.HandlerFunc) (*Service, *store.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(upstreamHandler)
	t.Cleanup(srv.Close)

	gens := store.NewMemoryStore()
	reg, err := catalog.New(catalog.Deps{
		Flux:        flux.New(srv.URL, "key"),
		Scraper:     scrapegraph.New(srv.URL, "key"),
		Generations: gens,
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	d := dispatch.New(reg, dispatch.Config{MaxConcurrent: 2, RequestTimeout: 5 * time.Second})
	return New(model.NewCatalog(), gens, d), gens
}

// waitTerminal polls until the generation leaves the processing state.
func waitTerminal(t *testing.T, s *Service, id string) *store.Generation {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		gen, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if gen.Status != store.StatusProcessing {
			return gen
		}
		select {
		case <-deadline:
			t.Fatal("generation never reached a terminal state")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStart_CompletesGeneration(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"images":[{"url":"https://cdn.example/a.png","seed":11}]}`)) //nolint:errcheck
	})

	gen, err := s.Start(context.Background(), "flux-pro-1.1", Request{Prompt: "a fox"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if gen.Status != store.StatusProcessing {
		t.Errorf("initial status = %q, want processing", gen.Status)
	}
	if gen.ID == "" {
		t.Fatal("Start returned no generation id")
	}

	done := waitTerminal(t, s, gen.ID)
	if done.Status != store.StatusCompleted {
		t.Fatalf("terminal status = %q (error %q), want completed", done.Status, done.Error)
	}
	if len(done.Images) != 1 || done.Images[0].URL != "https://cdn.example/a.png" {
		t.Errorf("images = %+v", done.Images)
	}
	if done.Images[0].Seed != 11 {
		t.Errorf("seed = %d, want 11", done.Images[0].Seed)
	}
}

func TestStart_RecordsUpstreamFailure(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	gen, err := s.Start(context.Background(), "flux-pro-1.1", Request{Prompt: "a fox"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := waitTerminal(t, s, gen.ID)
	if done.Status != store.StatusError {
		t.Fatalf("terminal status = %q, want error", done.Status)
	}
	if !strings.Contains(done.Error, "upstream") {
		t.Errorf("error %q does not identify the upstream fault", done.Error)
	}
}

func TestStart_UnknownModel(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})

	_, err := s.Start(context.Background(), "dall-e-9000", Request{Prompt: "x"})
	if !errors.Is(err, model.ErrUnknownModel) {
		t.Errorf("Start returned %v, want ErrUnknownModel", err)
	}
}

func TestStart_EmptyPrompt(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})

	if _, err := s.Start(context.Background(), "flux-pro-1.1", Request{}); err == nil {
		t.Error("Start accepted an empty prompt")
	}
}

func TestStart_CapabilityGating(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	factor := 2.0

	tests := []struct {
		name    string
		modelID string
		req     Request
		wantErr bool
	}{
		{"sd rejects upscale", "sd-v1-5", Request{Prompt: "x", UpscaleFactor: &factor}, true},
		{"sd rejects face enhance", "sd-v1-5", Request{Prompt: "x", FaceEnhance: true}, true},
		{"sd rejects style transfer", "sd-v1-5", Request{Prompt: "x", ReferenceImage: "img"}, true},
		{"control image needs type", "flux-pro-1.1", Request{Prompt: "x", ControlImage: "img"}, true},
		{"flux accepts everything", "flux-pro-1.1", Request{Prompt: "x", FaceEnhance: true, UpscaleFactor: &factor}, false},
		{"sd plain text-to-image", "sd-v1-5", Request{Prompt: "x"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Start(context.Background(), tc.modelID, tc.req)
			if tc.wantErr && err == nil {
				t.Error("Start accepted an unsupported request")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Start rejected a supported request: %v", err)
			}
		})
	}
}

func TestStart_SeedRecordedInMetadata(t *testing.T) {
	s, _ := newService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"images":[]}`)) //nolint:errcheck
	})
	seed := int64(42)

	gen, err := s.Start(context.Background(), "flux-pro-1.1", Request{Prompt: "x", Seed: &seed})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if gen.Metadata["seed"] != seed {
		t.Errorf("metadata seed = %v, want %d", gen.Metadata["seed"], seed)
	}
	waitTerminal(t, s, gen.ID)
}
