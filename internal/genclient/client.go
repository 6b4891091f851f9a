// Package genclient talks to the test-case generation service: health
// checks, streamed generation and spreadsheet export.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

// ErrNoDocument is returned when a request carries no PRD text, no images
// and no Feishu link.
var ErrNoDocument = errors.New("genclient: request needs prd text, images or a feishu url")

// Image is one uploaded PRD picture.
type Image struct {
	Name string
	Data []byte
}

// GenerateRequest is the form the service's generate endpoint accepts.
type GenerateRequest struct {
	PRDText      string
	Images       []Image
	FeishuURL    string
	Context      string
	Requirements string
}

func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.PRDText) == "" && len(r.Images) == 0 && strings.TrimSpace(r.FeishuURL) == "" {
		return ErrNoDocument
	}
	return nil
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// TransportError is a failure while reading a response that had already
// started streaming, including cancellation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Export is a file produced by the service's export endpoint.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Client struct {
	baseURL string
	// http has no overall timeout: generation streams for as long as the
	// model writes. Use the context to bound a call.
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{Method: req.Method, Path: req.URL.Path, Status: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	return resp, nil
}

// Ping checks that the service is up.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode ping response: %w", err)
	}
	if out.Status != "success" {
		return fmt.Errorf("unexpected ping status %q", out.Status)
	}
	return nil
}

// Generate submits req and calls onChunk with each piece of the streamed
// markdown as it arrives. Chunks never end in the middle of a UTF-8
// sequence; bytes that are not valid UTF-8 are passed through unchanged.
//
// A failure before the body starts is returned as is (*StatusError or the
// dial error). A failure while reading the body, including ctx
// cancellation, is returned as *TransportError after every byte read so
// far has been delivered.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, onChunk func(string)) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body, contentType, err := encodeForm(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/test-cases/generate", body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", contentType)
	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readChunks(resp.Body, onChunk)
}

func encodeForm(req GenerateRequest) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if strings.TrimSpace(req.FeishuURL) != "" {
		if err := w.WriteField("feishu_url", req.FeishuURL); err != nil {
			return nil, "", err
		}
	} else {
		for _, img := range req.Images {
			fw, err := w.CreateFormFile("images", filepath.Base(img.Name))
			if err != nil {
				return nil, "", err
			}
			if _, err := fw.Write(img.Data); err != nil {
				return nil, "", err
			}
		}
		if req.PRDText != "" {
			if err := w.WriteField("prd_text", req.PRDText); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.WriteField("context", req.Context); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("requirements", req.Requirements); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// Export posts records to the service and returns the generated file.
func (c *Client) Export(ctx context.Context, records []testcase.Record) (Export, error) {
	blob, err := json.Marshal(records)
	if err != nil {
		return Export{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/test-cases/export", bytes.NewReader(blob))
	if err != nil {
		return Export{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return Export{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Export{}, &TransportError{Err: err}
	}
	return Export{
		Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func attachmentName(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "test_cases.xlsx"
}
