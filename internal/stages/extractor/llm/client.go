// Package llm is a small, dependency-free vision LLM client for Stage C.
// Its request/response shape is modeled directly on a Messages-API-style
// vision provider: an image content block plus a text prompt, JSON response
// mode, and a response JSON schema the model is instructed to conform to.
// No vendor SDK is wired here — the LLM provider is an explicit external
// collaborator the pipeline talks to only through this HTTP interface
// (spec §1).
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/invoiceflow/pipeline/internal/kernel/errs"
)

const apiVersionHeader = "2026-03-01"

// Client calls the vision extraction endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// New builds a Client. baseURL/apiKey/model are read from config.LLM at
// startup.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type request struct {
	Model           string         `json:"model"`
	MaxOutputTokens int            `json:"max_output_tokens"`
	Temperature     float64        `json:"temperature"`
	ResponseFormat  responseFormat `json:"response_format"`
	Messages        []message      `json:"messages"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *source `json:"source,omitempty"`
}

type source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ExtractInvoice sends one page image plus the vendor-specific prompt and
// returns the raw JSON text the model produced. Callers are responsible for
// decoding and validating it against model.Invoice (spec §4.5 step 5).
//
// Errors are classified: HTTP transport failures, 429/5xx and context
// deadline exceeded are Transient (so retry.Policy retries them); a
// non-2xx response with any other status, or a response containing no text
// block, is Permanent — the model or the request was rejected outright and
// retrying the identical request cannot help.
func (c *Client) ExtractInvoice(ctx context.Context, prompt string, imageBytes []byte, mediaType string, jsonSchema map[string]any) (string, error) {
	req := request{
		Model:           c.model,
		MaxOutputTokens: 4096,
		Temperature:     0.1,
		ResponseFormat:  responseFormat{Type: "json_schema", JSONSchema: jsonSchema},
		Messages: []message{
			{
				Role: "user",
				Content: []block{
					{
						Type: "image",
						Source: &source{
							Type:      "base64",
							MediaType: mediaType,
							Data:      base64.StdEncoding.EncodeToString(imageBytes),
						},
					},
					{Type: "text", Text: prompt},
				},
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errs.WrapPermanent(fmt.Errorf("llm: marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vision/extract", bytes.NewReader(body))
	if err != nil {
		return "", errs.WrapPermanent(fmt.Errorf("llm: build request: %w", err))
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("x-api-version", apiVersionHeader)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errs.Transientf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Transientf("llm: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", errs.Transientf("llm: provider returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return "", errs.Permanentf("llm: provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errs.Permanentf("llm: response is not valid JSON: %w", err)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errs.Permanentf("llm: response contained no text content block")
}
