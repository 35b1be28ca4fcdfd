package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/value"
)

// ErrNoSample is returned by LatestSample when the server holds no sample yet.
var ErrNoSample = errors.New("no sensor sample received yet")

// ResponseError is returned for non-2xx responses.
type ResponseError struct {
	Code   int
	Status string
	Body   string
}

func (e *ResponseError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("request failed: %s", e.Status)
}

// Client is a thin HTTP client for the sensord API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health fetches the server health summary.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.getJSON(ctx, "/healthz", &resp)
	return resp, err
}

// SubmitSample posts a continuous sensor sample.
func (c *Client) SubmitSample(ctx context.Context, sample value.Value) (DataResponse, error) {
	var resp DataResponse
	err := c.postJSON(ctx, "/sensor", sample, &resp)
	return resp, err
}

// LatestSample fetches the most recent sensor sample.
func (c *Client) LatestSample(ctx context.Context) (value.Value, error) {
	var resp DataResponse
	if err := c.getJSON(ctx, "/sensor/last", &resp); err != nil {
		var se *ResponseError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return value.Value{}, ErrNoSample
		}
		return value.Value{}, err
	}
	return resp.Data, nil
}

// SubmitPothole posts a pothole detection payload.
func (c *Client) SubmitPothole(ctx context.Context, payload value.Value) (PotholeResponse, error) {
	var resp PotholeResponse
	err := c.postJSON(ctx, "/pothole", payload, &resp)
	return resp, err
}

// Potholes lists recent pothole events, newest first. limit <= 0 uses the
// server default.
func (c *Client) Potholes(ctx context.Context, limit int) (PotholesResponse, error) {
	var resp PotholesResponse
	endpoint := "/potholes"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	err := c.getJSON(ctx, endpoint, &resp)
	return resp, err
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &ResponseError{
			Code:   res.StatusCode,
			Status: res.Status,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	if out == nil {
		return nil
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
