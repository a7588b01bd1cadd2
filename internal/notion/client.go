// Package notion talks to the Notion REST API: database queries, page
// create/update and block children replacement.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"omochi-bot/internal/metrics"
)

// ErrNotConfigured is returned by every call when the token or database id
// is missing.
var ErrNotConfigured = errors.New("notion: token or database id not configured")

const (
	DefaultBaseURL    = "https://api.notion.com"
	DefaultAPIVersion = "2022-06-28"

	maxChildrenPerCall = 100
)

// APIError is a non-2xx answer from Notion.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Notion API error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("Notion API error %d: %s", e.Status, e.Message)
}

type Options struct {
	Token      string
	DatabaseID string
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	Metrics    *metrics.Metrics

	// database property names
	TitleProperty string
	LabelProperty string
	MemoProperty  string
}

type Client struct {
	token      string
	databaseID string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	metrics    *metrics.Metrics

	titleProp string
	labelProp string
	memoProp  string
}

func New(opts Options) *Client {
	c := &Client{
		token:      strings.TrimSpace(opts.Token),
		databaseID: strings.TrimSpace(opts.DatabaseID),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiVersion: opts.APIVersion,
		httpClient: opts.HTTPClient,
		metrics:    opts.Metrics,
		titleProp:  opts.TitleProperty,
		labelProp:  opts.LabelProperty,
		memoProp:   opts.MemoProperty,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.titleProp == "" {
		c.titleProp = "title"
	}
	if c.labelProp == "" {
		c.labelProp = "ラベル"
	}
	if c.memoProp == "" {
		c.memoProp = "作成者メモ"
	}
	return c
}

func (c *Client) Configured() bool { return c.token != "" && c.databaseID != "" }

// Page is the subset of a Notion page the sync needs.
type Page struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	LastEditedTime time.Time `json:"last_edited_time"`
}

// NewPage describes a page to create in the configured database.
type NewPage struct {
	Title    string
	Label    string
	Memo     string
	Children []Block
}

// FindPage returns the first page whose title starts with titlePrefix and
// whose label equals label, or nil when there is none.
func (c *Client) FindPage(ctx context.Context, titlePrefix, label string) (*Page, error) {
	payload := map[string]any{
		"filter": map[string]any{
			"and": []any{
				map[string]any{"property": c.titleProp, "title": map[string]any{"starts_with": titlePrefix}},
				map[string]any{"property": c.labelProp, "select": map[string]any{"equals": label}},
			},
		},
		"page_size": 1,
	}
	var resp struct {
		Results []Page `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(c.databaseID)+"/query", payload, &resp); err != nil {
		return nil, fmt.Errorf("query pages %q: %w", titlePrefix, err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	p := resp.Results[0]
	return &p, nil
}

// LastEdited returns the page's last_edited_time; zero when Notion did not
// report one.
func (c *Client) LastEdited(ctx context.Context, pageID string) (time.Time, error) {
	var p Page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(pageID), nil, &p); err != nil {
		return time.Time{}, fmt.Errorf("get page %s: %w", pageID, err)
	}
	return p.LastEditedTime, nil
}

// CreatePage creates a page in the database and returns its id. Children
// beyond the per-request limit are appended afterwards.
func (c *Client) CreatePage(ctx context.Context, np NewPage) (string, error) {
	first, rest := np.Children, []Block(nil)
	if len(first) > maxChildrenPerCall {
		first, rest = np.Children[:maxChildrenPerCall], np.Children[maxChildrenPerCall:]
	}
	props := map[string]any{
		c.titleProp: titleValue(np.Title),
		c.labelProp: map[string]any{"select": map[string]any{"name": np.Label}},
		c.memoProp:  map[string]any{"rich_text": richText(np.Memo)},
	}
	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": props,
		"children":   nonNil(first),
	}
	var created Page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", payload, &created); err != nil {
		return "", fmt.Errorf("create page %q: %w", np.Title, err)
	}
	if len(rest) > 0 {
		if err := c.AppendChildren(ctx, created.ID, rest); err != nil {
			return created.ID, err
		}
	}
	return created.ID, nil
}

func (c *Client) UpdateTitle(ctx context.Context, pageID, title string) error {
	payload := map[string]any{
		"properties": map[string]any{c.titleProp: titleValue(title)},
	}
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), payload, nil); err != nil {
		return fmt.Errorf("update title of %s: %w", pageID, err)
	}
	return nil
}

// ListChildren returns the ids of all direct child blocks, following
// pagination.
func (c *Client) ListChildren(ctx context.Context, blockID string) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		path := "/v1/blocks/" + url.PathEscape(blockID) + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}
		var resp struct {
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
			HasMore    bool   `json:"has_more"`
			NextCursor string `json:"next_cursor"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("list children of %s: %w", blockID, err)
		}
		for _, r := range resp.Results {
			ids = append(ids, r.ID)
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return ids, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *Client) DeleteBlock(ctx context.Context, blockID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/blocks/"+url.PathEscape(blockID), nil, nil); err != nil {
		return fmt.Errorf("delete block %s: %w", blockID, err)
	}
	return nil
}

// AppendChildren appends blocks in chunks of at most 100.
func (c *Client) AppendChildren(ctx context.Context, blockID string, blocks []Block) error {
	for start := 0; start < len(blocks); start += maxChildrenPerCall {
		end := start + maxChildrenPerCall
		if end > len(blocks) {
			end = len(blocks)
		}
		payload := map[string]any{"children": blocks[start:end]}
		if err := c.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(blockID)+"/children", payload, nil); err != nil {
			return fmt.Errorf("append children to %s: %w", blockID, err)
		}
	}
	return nil
}

// ReplacePage sets the title and replaces every child block of the page.
func (c *Client) ReplacePage(ctx context.Context, pageID, title string, blocks []Block) error {
	if err := c.UpdateTitle(ctx, pageID, title); err != nil {
		return err
	}
	ids, err := c.ListChildren(ctx, pageID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.DeleteBlock(ctx, id); err != nil {
			return err
		}
	}
	return c.AppendChildren(ctx, pageID, blocks)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.NotionRequest(method, 0)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.NotionRequest(method, resp.StatusCode)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		apiErr.Code = parsed.Code
		if strings.TrimSpace(parsed.Message) != "" {
			apiErr.Message = parsed.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func titleValue(title string) map[string]any {
	return map[string]any{"title": richText(title)}
}

func nonNil(b []Block) []Block {
	if b == nil {
		return []Block{}
	}
	return b
}
