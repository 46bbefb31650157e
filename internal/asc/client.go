package asc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrop/storeflight/internal/logging"
)

const defaultBaseURL = "https://api.appstoreconnect.apple.com/v1"

// transport-level retry for idempotent GETs on 5xx
const (
	getRetryAttempts  = 2
	getRetryBaseDelay = 500 * time.Millisecond
)

// Client talks to the App Store Connect REST API. It implements every
// service interface in services.go.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	log     logging.Logger
}

// NewClient returns a client for the given endpoint. An empty baseURL
// selects the production App Store Connect endpoint.
func NewClient(baseURL string, tokens TokenProvider, log logging.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		tokens:  tokens,
		log:     log,
	}
}

// JSON:API plumbing. Attributes stay raw until the typed service method
// decodes them.

type resourceData struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

type singleDocument struct {
	Data resourceData `json:"data"`
}

type listDocument struct {
	Data  []resourceData `json:"data"`
	Links struct {
		Next string `json:"next,omitempty"`
	} `json:"links"`
}

type relationshipRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type relationshipOne struct {
	Data relationshipRef `json:"data"`
}

type relationshipMany struct {
	Data []relationshipRef `json:"data"`
}

type linkageDocument struct {
	Data []relationshipRef `json:"data"`
}

type errorDocument struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.doURL(ctx, method, c.baseURL+path, body, out)
}

// doURL issues one API request. GETs are retried on 5xx responses and
// transport errors; mutating requests are never retried at this layer.
func (c *Client) doURL(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempt := func(ctx context.Context) error {
		err := c.doOnce(ctx, method, url, payload, out)
		if err != nil && method == http.MethodGet && isTransientGetError(err) {
			return retry.RetryableError(err)
		}
		return err
	}

	backoff := retry.WithMaxRetries(getRetryAttempts, retry.NewExponential(getRetryBaseDelay))
	return retry.Do(ctx, backoff, attempt)
}

func isTransientGetError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return IsRetryableStatus(apiErr.StatusCode)
	}
	// transport-level failure, no HTTP response at all
	return true
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	c.log.Debug(ctx, "api request", "method", method, "url", url)

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Title: resp.Status}

	var doc errorDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err == nil && len(doc.Errors) > 0 {
		first := doc.Errors[0]
		apiErr.Code = first.Code
		apiErr.Title = first.Title
		apiErr.Detail = first.Detail
	}

	return apiErr
}

// getList fetches every page of a collection by following links.next.
func (c *Client) getList(ctx context.Context, path string) ([]resourceData, error) {
	var all []resourceData

	url := c.baseURL + path
	for url != "" {
		var doc listDocument
		if err := c.doURL(ctx, http.MethodGet, url, nil, &doc); err != nil {
			return nil, err
		}
		all = append(all, doc.Data...)
		url = doc.Links.Next
	}

	return all, nil
}
