// Package confluence is a small client for the Confluence REST API (v1
// content endpoints) covering what a page migration needs: resolving a
// space's homepage, finding a child page by title, and creating and updating
// pages in storage format.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aidanlsb/wikimigrate/internal/logging"
	"github.com/aidanlsb/wikimigrate/internal/pagetree"
	"github.com/aidanlsb/wikimigrate/internal/remote"
)

const (
	defaultTimeout = 30 * time.Second
	childPageLimit = 100
	maxErrorBody   = 4 << 10
)

// Config configures a Client.
type Config struct {
	// BaseURL is the wiki root, e.g. https://acme.atlassian.net/wiki.
	BaseURL  string
	Username string
	Token    string
	Space    string

	// TitleMatch decides when a remote page title equals a local one.
	TitleMatch pagetree.TitleMatch

	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client talks to one space of a Confluence site.
type Client struct {
	base      string
	username  string
	token     string
	space     string
	match     pagetree.TitleMatch
	userAgent string
	http      *http.Client
	log       logging.Logger
}

// New returns a client for cfg.Space.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("confluence: base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("confluence: invalid base URL %q: %w", base, err)
	}
	if strings.TrimSpace(cfg.Space) == "" {
		return nil, errors.New("confluence: space key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	match := cfg.TitleMatch
	if match == "" {
		match = pagetree.MatchExact
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "wikimigrate"
	}

	return &Client{
		base:      base,
		username:  cfg.Username,
		token:     cfg.Token,
		space:     cfg.Space,
		match:     match,
		userAgent: userAgent,
		http:      httpClient,
		log:       logging.OrNoOp(cfg.Logger),
	}, nil
}

// Space returns the space key the client writes to.
func (c *Client) Space() string { return c.space }

type links struct {
	WebUI string `json:"webui"`
	Base  string `json:"base"`
	Next  string `json:"next"`
}

type content struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Version *struct {
		Number int `json:"number"`
	} `json:"version,omitempty"`
	Body *struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body,omitempty"`
	Ancestors []struct {
		ID string `json:"id"`
	} `json:"ancestors,omitempty"`
	Links links `json:"_links"`
}

func (c *Client) toPage(ct *content) *remote.Page {
	p := &remote.Page{ID: ct.ID, Title: ct.Title}
	if ct.Version != nil {
		p.Version = ct.Version.Number
	}
	if ct.Body != nil {
		p.Body = ct.Body.Storage.Value
	}
	if n := len(ct.Ancestors); n > 0 {
		p.ParentID = ct.Ancestors[n-1].ID
	}
	if ct.Links.WebUI != "" {
		base := ct.Links.Base
		if base == "" {
			base = c.base
		}
		p.URL = strings.TrimRight(base, "/") + ct.Links.WebUI
	} else if p.ID != "" {
		p.URL = c.base + "/pages/viewpage.action?pageId=" + url.QueryEscape(p.ID)
	}
	return p
}

// HomePage returns the homepage of the space.
func (c *Client) HomePage(ctx context.Context) (*remote.Page, error) {
	var space struct {
		Key      string   `json:"key"`
		Homepage *content `json:"homepage"`
		Expand   struct {
			Homepage string `json:"homepage"`
		} `json:"_expandable"`
	}
	path := "/rest/api/space/" + url.PathEscape(c.space)
	if err := c.do(ctx, http.MethodGet, path, url.Values{"expand": {"homepage"}}, nil, &space); err != nil {
		return nil, err
	}

	if space.Homepage != nil && space.Homepage.ID != "" {
		return c.Page(ctx, space.Homepage.ID)
	}
	if id := strings.TrimPrefix(space.Expand.Homepage, "/rest/api/content/"); id != "" && id != space.Expand.Homepage {
		return c.Page(ctx, id)
	}
	return nil, remote.Classify(fmt.Errorf("space %s has no homepage", c.space), remote.CategoryRejected, "resolve space homepage")
}

// Page fetches a page by id.
func (c *Client) Page(ctx context.Context, id string) (*remote.Page, error) {
	var ct content
	path := "/rest/api/content/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, url.Values{"expand": {"version,body.storage"}}, nil, &ct); err != nil {
		return nil, err
	}
	return c.toPage(&ct), nil
}

// FindChild returns the direct child of parentID whose title matches title,
// or nil when there is none.
func (c *Client) FindChild(ctx context.Context, parentID, title string) (*remote.Page, error) {
	path := "/rest/api/content/" + url.PathEscape(parentID) + "/child/page"
	start := 0
	for {
		var page struct {
			Results []content `json:"results"`
			Size    int       `json:"size"`
			Limit   int       `json:"limit"`
			Links   links     `json:"_links"`
		}
		query := url.Values{
			"expand": {"version,body.storage"},
			"limit":  {strconv.Itoa(childPageLimit)},
			"start":  {strconv.Itoa(start)},
		}
		if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		for i := range page.Results {
			if c.match.Equal(page.Results[i].Title, title) {
				p := c.toPage(&page.Results[i])
				p.ParentID = parentID
				return p, nil
			}
		}

		if len(page.Results) == 0 || page.Links.Next == "" {
			return nil, nil
		}
		start += len(page.Results)
	}
}

type storageBody struct {
	Storage struct {
		Value          string `json:"value"`
		Representation string `json:"representation"`
	} `json:"storage"`
}

func newStorageBody(value string) storageBody {
	var b storageBody
	b.Storage.Value = value
	b.Storage.Representation = "storage"
	return b
}

type ref struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key,omitempty"`
}

// CreatePage creates a page under parentID.
func (c *Client) CreatePage(ctx context.Context, parentID, title, body string) (*remote.Page, error) {
	req := struct {
		Type      string      `json:"type"`
		Title     string      `json:"title"`
		Space     ref         `json:"space"`
		Ancestors []ref       `json:"ancestors,omitempty"`
		Body      storageBody `json:"body"`
	}{
		Type:  "page",
		Title: title,
		Space: ref{Key: c.space},
		Body:  newStorageBody(body),
	}
	if parentID != "" {
		req.Ancestors = []ref{{ID: parentID}}
	}

	var ct content
	if err := c.do(ctx, http.MethodPost, "/rest/api/content", nil, req, &ct); err != nil {
		return nil, err
	}
	p := c.toPage(&ct)
	p.ParentID = parentID
	p.Body = body
	c.log.Debug("page created", "id", p.ID, "title", title, "parent", parentID)
	return p, nil
}

// UpdatePage replaces the body of page, bumping its version.
func (c *Client) UpdatePage(ctx context.Context, page *remote.Page, body string) (*remote.Page, error) {
	version := page.Version
	if version <= 0 {
		version = 1
	}
	req := struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Title   string `json:"title"`
		Version struct {
			Number int `json:"number"`
		} `json:"version"`
		Body storageBody `json:"body"`
	}{
		ID:    page.ID,
		Type:  "page",
		Title: page.Title,
		Body:  newStorageBody(body),
	}
	req.Version.Number = version + 1

	var ct content
	path := "/rest/api/content/" + url.PathEscape(page.ID)
	if err := c.do(ctx, http.MethodPut, path, nil, req, &ct); err != nil {
		return nil, err
	}
	p := c.toPage(&ct)
	p.ParentID = page.ParentID
	p.Body = body
	if p.Version == 0 {
		p.Version = version + 1
	}
	c.log.Debug("page updated", "id", p.ID, "version", p.Version)
	return p, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" || c.token != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return remote.Classify(err, remote.CategoryTransient, method+" "+path+" failed")
	}
	defer resp.Body.Close()

	c.log.Debug("confluence request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(started).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return remote.FromStatus(&remote.StatusError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body),
		})
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.Classify(fmt.Errorf("decode %s %s: %w", method, path, err), remote.CategoryTransient, "invalid response")
	}
	return nil
}

// errorMessage extracts the message of a Confluence error response.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}
