// Package oaipmh is a small OAI-PMH client for the arXiv repository.
package oaipmh

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/paperflow/arxetl/internal/raw"
)

const (
	// BaseURL is the arXiv OAI-PMH endpoint.
	BaseURL = "https://oaipmh.arxiv.org/oai"

	// DefaultTimeout bounds one request. ListRecords pages can be large.
	DefaultTimeout = 120 * time.Second

	// DefaultInterval is the polite delay between requests.
	DefaultInterval = 3 * time.Second

	// DefaultMaxRetries is the retry count for transport and 5xx failures.
	DefaultMaxRetries = 3

	// DefaultUserAgent identifies the harvester.
	DefaultUserAgent = "arxetl/1.0"

	// DayLayout is the OAI-PMH day granularity.
	DayLayout = "2006-01-02"
)

// Doer sends HTTP requests. *http.Client and *pester.Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a rate-limited OAI-PMH client.
type Client struct {
	httpClient Doer
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	log        log.FieldLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(d Doer) ClientOption {
	return func(c *Client) { c.httpClient = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithInterval sets the minimum delay between requests. Zero disables limiting.
func WithInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the arXiv endpoint.
func NewClient(opts ...ClientOption) *Client {
	hc := pester.New()
	hc.Backoff = pester.ExponentialBackoff
	hc.MaxRetries = DefaultMaxRetries
	hc.RetryOnHTTP429 = true
	hc.Timeout = DefaultTimeout

	c := &Client{
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Every(DefaultInterval), 1),
		baseURL:    BaseURL,
		userAgent:  DefaultUserAgent,
		log:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request selects records for ListRecords. From and Until are inclusive days.
type Request struct {
	MetadataPrefix raw.Format
	Set            string
	From           time.Time
	Until          time.Time
}

// Page is one ListRecords response.
type Page struct {
	Records         []Record
	ResumptionToken string
	CompleteSize    string
}

func (c *Client) listURL(req Request, token string) string {
	q := url.Values{}
	q.Set("verb", "ListRecords")
	if token != "" {
		// Only the verb may accompany a resumption token.
		q.Set("resumptionToken", token)
		return c.baseURL + "?" + q.Encode()
	}
	q.Set("metadataPrefix", string(req.MetadataPrefix))
	if req.Set != "" {
		q.Set("set", req.Set)
	}
	if !req.From.IsZero() {
		q.Set("from", req.From.UTC().Format(DayLayout))
	}
	if !req.Until.IsZero() {
		q.Set("until", req.Until.UTC().Format(DayLayout))
	}
	return c.baseURL + "?" + q.Encode()
}

// ListRecords fetches one page. An empty token starts a new list.
func (c *Client) ListRecords(ctx context.Context, req Request, token string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	u := c.listURL(req, token)
	c.log.WithField("url", u).Debug("OAI-PMH request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body[:min(200, len(body))]))
		if retry := resp.Header.Get("Retry-After"); retry != "" {
			msg += " (retry after " + retry + ")"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var doc Response
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if doc.Error != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       doc.Error.Code,
			Message:    strings.TrimSpace(doc.Error.Message),
		}
	}

	page := &Page{}
	if doc.ListRecords == nil {
		return page, nil
	}
	page.Records = doc.ListRecords.Records
	if rt := doc.ListRecords.ResumptionToken; rt != nil {
		page.ResumptionToken = strings.TrimSpace(rt.Token)
		page.CompleteSize = rt.CompleteListSize
	}
	return page, nil
}

// Harvest calls fn for every record of the list, following resumption
// tokens. noRecordsMatch ends the harvest without error. An error from fn
// stops the harvest and is returned.
func (c *Client) Harvest(ctx context.Context, req Request, fn func(Record) error) error {
	token := ""
	pages := 0
	for {
		page, err := c.ListRecords(ctx, req, token)
		if err != nil {
			if IsNoRecordsMatch(err) {
				c.log.WithField("format", req.MetadataPrefix).Info("no records match")
				return nil
			}
			return err
		}
		pages++
		for _, rec := range page.Records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		c.log.WithFields(log.Fields{
			"format":  req.MetadataPrefix,
			"page":    pages,
			"records": len(page.Records),
			"size":    page.CompleteSize,
		}).Debug("harvested page")

		if page.ResumptionToken == "" {
			return nil
		}
		token = page.ResumptionToken
	}
}
