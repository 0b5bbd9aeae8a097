// Package templateapi implements the TemplateStore port against a remote
// template service over HTTP.
package templateapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TemplateStore = (*Client)(nil)

// templateDTO is the wire shape returned by the template service.
type templateDTO struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	OwnerID  string `json:"ownerId"`
	Content  string `json:"content"`
	Format   string `json:"format"`
	IsPublic bool   `json:"isPublic"`
}

// Client reads templates from the template service. Responses are cached in
// memory and revalidated with ETags, so repeated sends of the same template
// cost a conditional request at most.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string
}

// NewClient creates a Client for baseURL with an in-memory HTTP cache.
func NewClient(baseURL, token string) (*Client, error) {
	return NewClientWithHTTPClient(httpcache.NewMemoryCacheTransport().Client(), baseURL, token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing template service URL: %w", err)
	}
	return &Client{http: httpClient, baseURL: u, token: token}, nil
}

// GetByID fetches /templates/{id}.
func (c *Client) GetByID(ctx context.Context, id string) (*model.Template, error) {
	u := c.baseURL.JoinPath("templates", id)
	return c.fetch(ctx, u)
}

// GetBySlug fetches /templates?slug=..&owner=.., letting the service apply the
// owned-before-public preference.
func (c *Client) GetBySlug(ctx context.Context, slug, ownerID string) (*model.Template, error) {
	u := c.baseURL.JoinPath("templates")
	q := url.Values{}
	q.Set("slug", slug)
	q.Set("owner", ownerID)
	u.RawQuery = q.Encode()
	return c.fetch(ctx, u)
}

func (c *Client) fetch(ctx context.Context, u *url.URL) (*model.Template, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create template request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch template: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("template service returned %d for %s", resp.StatusCode, u.Path)
	}

	var dto templateDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}

	format := model.TemplateFormat(dto.Format)
	if format == "" {
		format = model.FormatHTML
	}
	return &model.Template{
		ID:       dto.ID,
		Slug:     dto.Slug,
		OwnerID:  dto.OwnerID,
		Content:  dto.Content,
		Format:   format,
		IsPublic: dto.IsPublic,
	}, nil
}
