// Package decoder turns scanner input into decoded QR text.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoCode means the image held no readable barcode.
	ErrNoCode = errors.New("no barcode found in image")
	// ErrUnavailable means no decoding service is configured.
	ErrUnavailable = errors.New("decoder service not configured")
)

// Decoded is one barcode read from an image.
type Decoded struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

// Client calls the barcode decoding microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client. An empty baseURL leaves the client unavailable.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool { return c != nil && c.BaseURL != "" }

// Decode uploads image and returns the first QR payload found.
func (c *Client) Decode(ctx context.Context, filename string, image io.Reader) (Decoded, error) {
	if !c.Enabled() {
		return Decoded{}, ErrUnavailable
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return Decoded{}, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return Decoded{}, fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Decoded{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/decode", &buf)
	if err != nil {
		return Decoded{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Decoded{}, fmt.Errorf("decoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return Decoded{}, ErrNoCode
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Decoded{}, fmt.Errorf("decoder error %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Codes []Decoded `json:"codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Decoded{}, fmt.Errorf("failed to decode response: %w", err)
	}
	for _, code := range out.Codes {
		if strings.TrimSpace(code.Text) != "" {
			return code, nil
		}
	}
	return Decoded{}, ErrNoCode
}

// Health checks if the decoding service is available.
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return ErrUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("decoder unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("decoder unhealthy: %s", resp.Status)
	}
	return nil
}
