package application

import (
	"bytes"
	"context"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Raw HTML in markdown templates passes through untouched; payloads are
// trusted tenant content, not end-user input.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// ContentSource is everything a request can use to produce a payload. The
// first usable source wins in the order TemplateID, TemplateSlug, RawContent,
// then the "html" or "content" entries of Data.
type ContentSource struct {
	TemplateID   string
	TemplateSlug string
	RawContent   string
	Data         map[string]string
}

// RenderedContent is a resolved and rendered payload.
type RenderedContent struct {
	TemplateID string
	Body       string
}

// TemplateRenderer resolves templates under the visibility rule and renders
// placeholders.
type TemplateRenderer struct {
	store driven.TemplateStore
}

// NewTemplateRenderer creates a TemplateRenderer.
func NewTemplateRenderer(store driven.TemplateStore) *TemplateRenderer {
	return &TemplateRenderer{store: store}
}

// Resolve finds the content for src on behalf of ownerID and renders it.
func (r *TemplateRenderer) Resolve(ctx context.Context, ownerID string, src ContentSource) (RenderedContent, error) {
	var (
		tpl *model.Template
		err error
	)
	switch {
	case src.TemplateID != "":
		tpl, err = r.store.GetByID(ctx, src.TemplateID)
	case src.TemplateSlug != "":
		tpl, err = r.store.GetBySlug(ctx, src.TemplateSlug, ownerID)
	}
	if err != nil {
		return RenderedContent{}, internalError("load template", err)
	}

	if src.TemplateID != "" || src.TemplateSlug != "" {
		if tpl == nil {
			return RenderedContent{}, notFoundError("Template not found")
		}
		if !tpl.VisibleTo(ownerID) {
			return RenderedContent{}, forbiddenError("You don't have access to this template")
		}
		return RenderedContent{TemplateID: tpl.ID, Body: RenderTemplate(*tpl, src.Data)}, nil
	}

	raw := src.RawContent
	if raw == "" {
		raw = src.Data["html"]
	}
	if raw == "" {
		raw = src.Data["content"]
	}
	if raw == "" {
		return RenderedContent{}, validationError("Either templateId/templateSlug or raw html/content required")
	}
	return RenderedContent{Body: Render(raw, src.Data)}, nil
}

// Render substitutes {{key}} placeholders with values from data. Whitespace
// inside the braces is ignored, unknown keys are left as written, and values
// are inserted verbatim without HTML escaping.
func Render(content string, data map[string]string) string {
	if len(data) == 0 {
		return content
	}
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return match
	})
}

// RenderTemplate renders tpl and converts markdown templates to HTML.
func RenderTemplate(tpl model.Template, data map[string]string) string {
	body := Render(tpl.Content, data)
	if tpl.Format != model.FormatMarkdown {
		return body
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return body
	}
	return buf.String()
}
