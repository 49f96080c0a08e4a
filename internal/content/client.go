// ABOUTME: WordPress REST API client over the caching fetch coordinator
// ABOUTME: Paginated categories/posts/search with totals from response headers

package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sabeel/lessonstore/internal/fetch"
)

// Pagination totals communicated by the API via response headers.
const (
	HeaderTotal      = "X-WP-Total"
	HeaderTotalPages = "X-WP-TotalPages"
)

// Freshness windows per endpoint. Category lists change rarely; post lists
// and search results churn more.
const (
	CategoriesMaxAge = 24 * time.Hour
	PostsMaxAge      = time.Hour
	SearchMaxAge     = 30 * time.Minute
)

// DefaultPerPage is the page size requested from the API.
const DefaultPerPage = 20

// Page is one page of an API collection. Body stays opaque JSON; Total and
// TotalPages come from headers and are zero when the cache entry predates
// header capture or the API omitted them.
type Page struct {
	Body       json.RawMessage
	Total      int
	TotalPages int
}

// PostSummary is the minimal view of a post the domain layer needs (activity
// records, download metadata). Everything else in the body stays opaque.
type PostSummary struct {
	ID    string
	Title string
}

// Summaries extracts id/title pairs from an opaque posts collection.
func (p *Page) Summaries() []PostSummary {
	results := gjson.GetBytes(p.Body, "@this").Array()
	summaries := make([]PostSummary, 0, len(results))
	for _, post := range results {
		summaries = append(summaries, PostSummary{
			ID:    post.Get("id").String(),
			Title: post.Get("title.rendered").String(),
		})
	}
	return summaries
}

// Client is a thin read-only client for the remote content API. All requests
// flow through the caching fetcher, so reads are served offline from stale
// cache when the network is down.
type Client struct {
	fetcher *fetch.Fetcher
	baseURL string
	perPage int
}

// New creates a content client. baseURL is the site root, e.g.
// "https://example.org"; the wp-json route prefix is appended here.
func New(fetcher *fetch.Fetcher, baseURL string, perPage int) *Client {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Client{fetcher: fetcher, baseURL: baseURL + "/wp-json/wp/v2", perPage: perPage}
}

// KeepHeaders lists the response headers the fetcher should persist for this
// client's pagination.
func KeepHeaders() []string {
	return []string{HeaderTotal, HeaderTotalPages}
}

// Categories fetches the category collection.
func (c *Client) Categories(ctx context.Context, forceRefresh bool) (*Page, error) {
	u := fmt.Sprintf("%s/categories?per_page=100&hide_empty=true", c.baseURL)
	return c.page(ctx, u, fetch.Options{MaxAge: CategoriesMaxAge, ForceRefresh: forceRefresh})
}

// PostsByCategory fetches one page of posts in a category.
func (c *Client) PostsByCategory(ctx context.Context, categoryID string, page int, forceRefresh bool) (*Page, error) {
	u := fmt.Sprintf("%s/posts?categories=%s&page=%d&per_page=%d&_embed=true",
		c.baseURL, url.QueryEscape(categoryID), page, c.perPage)
	return c.page(ctx, u, fetch.Options{MaxAge: PostsMaxAge, ForceRefresh: forceRefresh})
}

// Post fetches a single post by id.
func (c *Client) Post(ctx context.Context, id string, forceRefresh bool) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/posts/%s?_embed=true", c.baseURL, url.PathEscape(id))
	p, err := c.page(ctx, u, fetch.Options{MaxAge: PostsMaxAge, ForceRefresh: forceRefresh})
	if err != nil {
		return nil, err
	}
	return p.Body, nil
}

// Search fetches one page of posts matching query.
func (c *Client) Search(ctx context.Context, query string, page int) (*Page, error) {
	u := fmt.Sprintf("%s/posts?search=%s&page=%d&per_page=%d",
		c.baseURL, url.QueryEscape(query), page, c.perPage)
	return c.page(ctx, u, fetch.Options{MaxAge: SearchMaxAge})
}

func (c *Client) page(ctx context.Context, u string, opts fetch.Options) (*Page, error) {
	resp, err := c.fetcher.FetchWithCache(ctx, u, opts)
	if err != nil {
		return nil, err
	}
	return &Page{
		Body:       resp.Body,
		Total:      headerInt(resp, HeaderTotal),
		TotalPages: headerInt(resp, HeaderTotalPages),
	}, nil
}

func headerInt(resp *fetch.Response, name string) int {
	n, err := strconv.Atoi(resp.Header(name))
	if err != nil {
		return 0
	}
	return n
}
