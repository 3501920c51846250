// Package weaviate provides a typed client for the Weaviate REST and
// GraphQL APIs. It covers the object, schema and query surface the
// document store needs; vectors are always supplied by the caller.
package weaviate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kart-io/docqa/pkg/component"
	weaviateopts "github.com/kart-io/docqa/pkg/options/weaviate"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// Sentinel errors mapped from Weaviate REST responses.
var (
	// ErrAlreadyExists is returned by CreateObject when an object with
	// the same ID is present (Weaviate answers 422 "already exists").
	ErrAlreadyExists = errors.New("weaviate: object already exists")

	// ErrNotFound is returned when an object or class does not exist.
	ErrNotFound = errors.New("weaviate: not found")
)

// Client is a Weaviate API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ component.Client = (*Client)(nil)

// New creates a new Weaviate client.
func New(opts *weaviateopts.Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Name returns the component identifier.
func (c *Client) Name() string {
	return "weaviate"
}

// Ping checks the server's readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/.well-known/ready", nil)
	if err != nil {
		return fmt.Errorf("weaviate ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weaviate not ready: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Object is a Weaviate data object.
type Object struct {
	ID         string                 `json:"id,omitempty"`
	Class      string                 `json:"class"`
	Properties map[string]interface{} `json:"properties"`
	Vector     []float32              `json:"vector,omitempty"`
}

// CreateObject inserts a new object. Returns ErrAlreadyExists when an
// object with the same ID is already stored; any other failure is opaque.
func (c *Client) CreateObject(ctx context.Context, obj *Object) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/objects", obj)
	if err != nil {
		return fmt.Errorf("create object failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(string(body), "already exists") {
		return ErrAlreadyExists
	}
	return fmt.Errorf("create object failed with status %d: %s", resp.StatusCode, string(body))
}

// GetObject fetches one object by class and ID. Returns ErrNotFound when
// the object does not exist.
func (c *Client) GetObject(ctx context.Context, class, id string) (*Object, error) {
	path := fmt.Sprintf("/v1/objects/%s/%s", url.PathEscape(class), url.PathEscape(id))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get object failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("get object failed with status %d: %s", resp.StatusCode, string(body))
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	return &obj, nil
}

// ReplaceObject overwrites all properties and the vector of an existing
// object.
func (c *Client) ReplaceObject(ctx context.Context, obj *Object) error {
	path := fmt.Sprintf("/v1/objects/%s/%s", url.PathEscape(obj.Class), url.PathEscape(obj.ID))
	resp, err := c.doJSON(ctx, http.MethodPut, path, obj)
	if err != nil {
		return fmt.Errorf("replace object failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("replace object failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// DeleteObject removes one object by class and ID. Deleting a missing
// object returns ErrNotFound.
func (c *Client) DeleteObject(ctx context.Context, class, id string) error {
	path := fmt.Sprintf("/v1/objects/%s/%s", url.PathEscape(class), url.PathEscape(id))
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("delete object failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete object failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// ClassProperty describes one property of a class schema.
type ClassProperty struct {
	Name     string   `json:"name"`
	DataType []string `json:"dataType"`
}

// ClassSchema describes a Weaviate class.
type ClassSchema struct {
	Class      string          `json:"class"`
	Properties []ClassProperty `json:"properties"`

	// Vectorizer is "none" for collections with caller-supplied vectors.
	Vectorizer string `json:"vectorizer,omitempty"`
}

// ClassExists reports whether the named class is defined.
func (c *Client) ClassExists(ctx context.Context, class string) (bool, error) {
	path := "/v1/schema/" + url.PathEscape(class)
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("schema check failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("schema check failed with status %d", resp.StatusCode)
	}
}

// CreateClass defines a new class.
func (c *Client) CreateClass(ctx context.Context, schema *ClassSchema) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/schema", schema)
	if err != nil {
		return fmt.Errorf("create class failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create class failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.do(ctx, method, path, bytes.NewReader(body))
}
