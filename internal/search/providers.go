package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/nugget/designer-agent/internal/httpkit"
)

const (
	braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

	defaultCount = 5
	maxSnippet   = 240
)

// HTTPProvider is a JSON search API reached over HTTP. SearXNG and Brave
// differ only in how the query is encoded and how hits are decoded, so
// both are built on it.
type HTTPProvider struct {
	name     string
	endpoint string
	header   http.Header
	client   *http.Client

	// query encodes the request parameters; count is already defaulted.
	query func(q string, count int, opts Options) url.Values
	// decode reads raw hits from a 200 response body.
	decode func(io.Reader) ([]Result, error)
}

func newHTTPProvider(name, endpoint string) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		header:   http.Header{"Accept": {"application/json"}},
		client: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithRetryOnThrottle(),
		),
	}
}

// NewSearXNG returns a provider for the SearXNG instance rooted at
// baseURL (e.g. "http://localhost:8080").
func NewSearXNG(baseURL string) *HTTPProvider {
	p := newHTTPProvider("searxng", strings.TrimRight(baseURL, "/")+"/search")
	p.query = func(q string, _ int, opts Options) url.Values {
		v := url.Values{"q": {q}, "format": {"json"}}
		if opts.Language != "" {
			v.Set("language", opts.Language)
		}
		return v
	}
	p.decode = func(r io.Reader) ([]Result, error) {
		var body struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Content string `json:"content"`
			} `json:"results"`
		}
		if err := json.NewDecoder(r).Decode(&body); err != nil {
			return nil, err
		}
		out := make([]Result, 0, len(body.Results))
		for _, h := range body.Results {
			out = append(out, Result{Title: h.Title, URL: h.URL, Snippet: h.Content})
		}
		return out, nil
	}
	return p
}

// NewBrave returns a provider for the Brave Search API.
func NewBrave(apiKey string) *HTTPProvider {
	p := newHTTPProvider("brave", braveEndpoint)
	p.header.Set("X-Subscription-Token", apiKey)
	p.query = func(q string, count int, opts Options) url.Values {
		v := url.Values{"q": {q}, "count": {strconv.Itoa(count)}}
		if opts.Language != "" {
			v.Set("search_lang", opts.Language)
		}
		return v
	}
	p.decode = func(r io.Reader) ([]Result, error) {
		var body struct {
			Web struct {
				Results []struct {
					Title       string `json:"title"`
					URL         string `json:"url"`
					Description string `json:"description"`
				} `json:"results"`
			} `json:"web"`
		}
		if err := json.NewDecoder(r).Decode(&body); err != nil {
			return nil, err
		}
		out := make([]Result, 0, len(body.Web.Results))
		for _, h := range body.Web.Results {
			out = append(out, Result{Title: h.Title, URL: h.URL, Snippet: h.Description})
		}
		return out, nil
	}
	return p
}

func (p *HTTPProvider) Name() string { return p.name }

// Search runs q and returns at most opts.Count references.
func (p *HTTPProvider) Search(ctx context.Context, q string, opts Options) ([]Result, error) {
	count := opts.Count
	if count <= 0 {
		count = defaultCount
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.endpoint+"?"+p.query(q, count, opts).Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	for k, v := range p.header {
		req.Header[k] = v
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 64<<10)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d: %s", p.name, resp.StatusCode,
			httpkit.ReadErrorBody(resp.Body, 512))
	}

	hits, err := p.decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return references(hits, count), nil
}

// references turns raw hits into design references: hits without a
// usable URL and repeated URLs are dropped, markup is stripped from
// titles and snippets, and each result is tagged with its site.
func references(hits []Result, limit int) []Result {
	seen := make(map[string]bool, len(hits))
	out := make([]Result, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		u, err := url.Parse(strings.TrimSpace(h.URL))
		if err != nil || u.Host == "" {
			continue
		}
		key := u.Host + u.EscapedPath() + "?" + u.RawQuery
		if seen[key] {
			continue
		}
		seen[key] = true

		title := plainText(h.Title)
		if title == "" {
			title = u.Host
		}
		out = append(out, Result{
			Title:   title,
			URL:     u.String(),
			Snippet: clip(plainText(h.Snippet), maxSnippet),
			Source:  strings.TrimPrefix(u.Hostname(), "www."),
		})
	}
	return out
}

// plainText drops tags from an HTML fragment, unescapes entities and
// collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			sb.WriteByte(' ')
		}
	}
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
