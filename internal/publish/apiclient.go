package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/crosspost/internal/util"
)

// maxResponseBytes bounds how much of any platform response is read.
const maxResponseBytes = 1 << 20

// APIError is a non-2xx platform API response. Body carries the raw response
// text for diagnostics; URL is stripped of query parameters so tokens passed
// as query params never leak into errors or logs.
type APIError struct {
	Status int
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d from %s: %s", e.Status, e.URL, e.Body)
}

// apiClient is the authenticated HTTP helper shared by all adapters. Every
// call raises *APIError on non-2xx with the body captured.
type apiClient struct {
	http *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{http: &http.Client{Timeout: 60 * time.Second}}
}

func (c *apiClient) getJSON(ctx context.Context, token, rawURL string, out any) error {
	return c.doJSON(ctx, http.MethodGet, token, rawURL, "", nil, out)
}

func (c *apiClient) deleteJSON(ctx context.Context, token, rawURL string, out any) error {
	return c.doJSON(ctx, http.MethodDelete, token, rawURL, "", nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, token, rawURL string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, token, rawURL, "application/json; charset=utf-8", bytes.NewReader(body), out)
}

func (c *apiClient) postForm(ctx context.Context, token, rawURL string, form url.Values, out any) error {
	return c.doJSON(ctx, http.MethodPost, token, rawURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), out)
}

func (c *apiClient) doJSON(ctx context.Context, method, token, rawURL, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, util.MaskURL(rawURL), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, URL: util.MaskURL(rawURL), Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// putBytes uploads a binary blob, for chunked/resumable upload protocols.
// headers lets callers set Content-Range and platform-specific headers.
func (c *apiClient) putBytes(ctx context.Context, token, rawURL string, headers map[string]string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rawURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", util.MaskURL(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return &APIError{Status: resp.StatusCode, URL: util.MaskURL(rawURL), Body: strings.TrimSpace(string(body))}
	}
	return nil
}

// fetchBytes downloads source media into memory for protocols that upload
// bytes instead of passing a URL through.
func (c *apiClient) fetchBytes(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media %s: %w", util.MaskURL(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &APIError{Status: resp.StatusCode, URL: util.MaskURL(rawURL), Body: "media fetch failed"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
