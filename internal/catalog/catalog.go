// Package catalog builds the gateway's static tool registry: the fixed set
// of tool descriptors, their argument schemas, and the handlers that bind
// them to the upstream adapters. The catalogue is assembled once at startup.
package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bananabit/fluxgate/internal/store"
	"github.com/bananabit/fluxgate/internal/tool"
	"github.com/bananabit/fluxgate/internal/upstream/flux"
	"github.com/bananabit/fluxgate/internal/upstream/scrapegraph"
)

// Tool names. The registry is keyed by these; transports and the generation
// service refer to them by constant.
const (
	ToolEcho            = "echo"
	ToolGenerateImage   = "generate_image"
	ToolGenerationGet   = "get_generation_result"
	ToolSaveImage       = "save_generated_image"
	ToolUpscaleImage    = "upscale_image"
	ToolEnhanceFaces    = "enhance_faces"
	ToolExtractContent  = "extract_webpage_content"
	ToolScrapeWebpage   = "scrape_webpage"
	ToolSearchWeb       = "search_web"
	ToolSentiment       = "analyze_sentiment"
	ToolSummarize       = "summarize_text"
	ToolMarkdownify     = "markdownify"
)

// Deps holds the collaborators the tool handlers close over.
type Deps struct {
	Flux        *flux.Client
	Scraper     *scrapegraph.Client
	Generations store.Store
}

// New builds the full tool registry. Registration of the built-in catalogue
// cannot collide, so any error here is a programming mistake and is
// returned for the caller to fail startup on.
func New(deps Deps) (*tool.Registry, error) {
	reg := tool.NewRegistry()

	descriptors := []*tool.Descriptor{
		echoTool(),
		generateImageTool(deps.Flux),
		generationResultTool(deps.Generations),
		saveImageTool(deps.Flux),
		upscaleTool(deps.Flux),
		enhanceFacesTool(deps.Flux),
		extractTool(deps.Scraper, ToolExtractContent, "Extract content from a specific URL"),
		extractTool(deps.Scraper, ToolScrapeWebpage, "Scrape content from a webpage using ScrapeGraph"),
		searchTool(deps.Scraper),
		sentimentTool(deps.Scraper),
		summarizeTool(deps.Scraper),
		markdownifyTool(deps.Scraper),
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return reg, nil
}

func echoTool() *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolEcho,
		Description: "Echo the given text back. Useful for connectivity checks.",
		Params: []tool.Param{
			{Name: "text", Type: tool.TypeString, Required: true, Description: "Text to echo"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"text": args["text"]}, nil
		},
	}
}

func generateImageTool(c *flux.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolGenerateImage,
		Description: "Generate an image using the Flux Pro model",
		Params: []tool.Param{
			{Name: "prompt", Type: tool.TypeString, Required: true, Description: "Text description of the desired image"},
			{Name: "negative_prompt", Type: tool.TypeString, Description: "Text description of what to avoid"},
			{Name: "width", Type: tool.TypeInteger, Default: 768, Description: "Image width"},
			{Name: "height", Type: tool.TypeInteger, Default: 768, Description: "Image height"},
			{Name: "num_inference_steps", Type: tool.TypeInteger, Default: 30, Description: "Number of denoising steps"},
			{Name: "guidance_scale", Type: tool.TypeNumber, Default: 7.5, Description: "How closely to follow the prompt"},
			{Name: "scheduler", Type: tool.TypeString, Default: "euler_ancestral", Description: "Scheduler type"},
			{Name: "style_preset", Type: tool.TypeString, Description: "Predefined style to apply"},
			{Name: "num_images", Type: tool.TypeInteger, Default: 1, Description: "Number of images to generate"},
			{Name: "seed", Type: tool.TypeInteger, Description: "Random seed for reproducibility"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			req := flux.GenerateRequest{
				Prompt:            argString(args, "prompt"),
				NegativePrompt:    argString(args, "negative_prompt"),
				Width:             argInt(args, "width"),
				Height:            argInt(args, "height"),
				NumInferenceSteps: argInt(args, "num_inference_steps"),
				GuidanceScale:     argFloat(args, "guidance_scale"),
				Scheduler:         argString(args, "scheduler"),
				StylePreset:       argString(args, "style_preset"),
				NumImages:         argInt(args, "num_images"),
			}
			if _, ok := args["seed"]; ok {
				seed := int64(argInt(args, "seed"))
				req.Seed = &seed
			}
			return c.Generate(ctx, req)
		},
	}
}

func generationResultTool(gens store.Store) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolGenerationGet,
		Description: "Get the status and results of an image generation",
		Params: []tool.Param{
			{Name: "generation_id", Type: tool.TypeString, Required: true, Description: "Id returned by a previous generation"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			gen, err := gens.Get(ctx, argString(args, "generation_id"))
			if err != nil {
				if errorsIsNotFound(err) {
					return map[string]any{"status": "not_found", "error": "generation not found"}, nil
				}
				return nil, err
			}

			urls := make([]string, 0, len(gen.Images))
			for _, img := range gen.Images {
				if img.URL != "" {
					urls = append(urls, img.URL)
				}
			}
			out := map[string]any{
				"status":      gen.Status,
				"metadata":    gen.Metadata,
				"image_count": len(gen.Images),
				"image_urls":  urls,
			}
			if gen.Status == store.StatusError {
				out["error"] = gen.Error
			}
			return out, nil
		},
	}
}

func saveImageTool(c *flux.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolSaveImage,
		Description: "Save a base64 encoded image or image URL to a file",
		Params: []tool.Param{
			{Name: "image_data", Type: tool.TypeString, Required: true, Description: "Base64 image data or an http(s) URL"},
			{Name: "save_path", Type: tool.TypeString, Required: true, Description: "Destination file path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			data := argString(args, "image_data")
			savePath := argString(args, "save_path")

			var raw []byte
			if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
				var err error
				raw, err = c.Download(ctx, data)
				if err != nil {
					return nil, err
				}
			} else {
				if idx := strings.Index(data, "base64,"); idx >= 0 {
					data = data[idx+len("base64,"):]
				}
				var err error
				raw, err = base64.StdEncoding.DecodeString(data)
				if err != nil {
					return nil, fmt.Errorf("decode base64 image data: %w", err)
				}
			}

			if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
				return nil, fmt.Errorf("create directory for %q: %w", savePath, err)
			}
			if err := os.WriteFile(savePath, raw, 0o644); err != nil {
				return nil, fmt.Errorf("write image to %q: %w", savePath, err)
			}
			return map[string]any{"path": savePath, "status": "saved"}, nil
		},
	}
}

func upscaleTool(c *flux.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolUpscaleImage,
		Description: "Upscale a base64 encoded image",
		Params: []tool.Param{
			{Name: "image", Type: tool.TypeString, Required: true, Description: "Base64 encoded image"},
			{Name: "scale_factor", Type: tool.TypeNumber, Default: 2.0, Description: "Upscaling factor"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			img, err := c.Upscale(ctx, argString(args, "image"), argFloat(args, "scale_factor"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"image": img}, nil
		},
	}
}

func enhanceFacesTool(c *flux.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolEnhanceFaces,
		Description: "Improve facial features in a base64 encoded image",
		Params: []tool.Param{
			{Name: "image", Type: tool.TypeString, Required: true, Description: "Base64 encoded image"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			img, err := c.EnhanceFaces(ctx, argString(args, "image"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"image": img}, nil
		},
	}
}

func extractTool(c *scrapegraph.Client, name, description string) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        name,
		Description: description,
		Params: []tool.Param{
			{Name: "url", Type: tool.TypeString, Required: true, Description: "Page URL to extract"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return c.Extract(ctx, argString(args, "url"))
		},
	}
}

func searchTool(c *scrapegraph.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolSearchWeb,
		Description: "Search the web and scrape matching pages",
		Params: []tool.Param{
			{Name: "query", Type: tool.TypeString, Required: true, Description: "Search query or scraping instruction"},
			{Name: "max_results", Type: tool.TypeInteger, Default: 10, Description: "Maximum number of results"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return c.Search(ctx, argString(args, "query"), argInt(args, "max_results"))
		},
	}
}

func sentimentTool(c *scrapegraph.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolSentiment,
		Description: "Analyze sentiment of text",
		Params: []tool.Param{
			{Name: "text", Type: tool.TypeString, Required: true, Description: "Text to analyze"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return c.AnalyzeSentiment(ctx, argString(args, "text"))
		},
	}
}

func summarizeTool(c *scrapegraph.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolSummarize,
		Description: "Summarize text content",
		Params: []tool.Param{
			{Name: "text", Type: tool.TypeString, Required: true, Description: "Text to summarize"},
			{Name: "max_length", Type: tool.TypeInteger, Default: 100, Description: "Maximum summary length in words"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			summary, err := c.Summarize(ctx, argString(args, "text"), argInt(args, "max_length"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"summary": summary}, nil
		},
	}
}

func markdownifyTool(c *scrapegraph.Client) *tool.Descriptor {
	return &tool.Descriptor{
		Name:        ToolMarkdownify,
		Description: "Convert webpage content to clean markdown format",
		Params: []tool.Param{
			{Name: "url", Type: tool.TypeString, Required: true, Description: "Page URL to convert"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			md, err := c.Markdownify(ctx, argString(args, "url"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"markdown": md}, nil
		},
	}
}
