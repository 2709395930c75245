package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	toolcore "github.com/codeer-ai/lybot/internal/tool"
)

const (
	lyUserAgent       = "lybot/1.0 (+https://github.com/codeer-ai/lybot)"
	maxLYResponseSize = 8 << 20
)

// lyClient issues read-only queries against the Legislative Yuan open data API.
type lyClient struct {
	Client    *http.Client
	BaseURL   string
	Term      int
	PageLimit int
}

func newLYClient(options toolcore.BuiltinOptions) *lyClient {
	options = options.WithDefaults()
	return &lyClient{
		Client:    options.HTTPClient,
		BaseURL:   options.LYAPIBaseURL,
		Term:      options.Term,
		PageLimit: options.PageLimit,
	}
}

func (c *lyClient) term(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.Term > 0 {
		return c.Term
	}
	return toolcore.DefaultBuiltinTerm
}

// listParams returns the paging parameters shared by every list endpoint.
func (c *lyClient) listParams() url.Values {
	limit := c.PageLimit
	if limit <= 0 {
		limit = toolcore.DefaultBuiltinPageLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", "1")
	return params
}

func (c *lyClient) endpoint(segments ...string) (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = toolcore.DefaultBuiltinLYAPIBaseURL
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid ly api endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid ly api endpoint")
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	for _, segment := range segments {
		path += "/" + url.PathEscape(segment)
	}
	parsed.Path = path
	parsed.RawPath = ""
	return parsed.String(), nil
}

// get fetches a JSON document. Non-2xx statuses and non-JSON bodies are errors.
func (c *lyClient) get(ctx context.Context, params url.Values, segments ...string) ([]byte, error) {
	endpoint, err := c.endpoint(segments...)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", lyUserAgent)
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: toolcore.DefaultBuiltinLYAPITimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("ly api request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLYResponseSize))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("ly api returned invalid JSON")
	}
	return body, nil
}

// relationURL is the absolute URL of a sub-resource, handed to the model as a link.
func (c *lyClient) relationURL(segments ...string) string {
	endpoint, err := c.endpoint(segments...)
	if err != nil {
		return ""
	}
	return endpoint
}
