// Package nodebody provides ready-made Task-kind NodeBody implementations:
// an HTTP request body and an LLM completion body, adapted from the
// teacher's node executor catalog to the engine's single Execute op.
package nodebody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
	domainerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// HTTPRequestBody performs a single HTTP request, reading its
// configuration from the node's input: "url" (required), "method"
// (default GET), "headers" (map[string]string), "body" (string or
// map[string]any), and "output_key" (default "output").
type HTTPRequestBody struct {
	Client *http.Client
}

// NewHTTPRequestBody returns an HTTPRequestBody with a 30s client timeout.
func NewHTTPRequestBody() *HTTPRequestBody {
	return &HTTPRequestBody{Client: &http.Client{Timeout: 30 * time.Second}}
}

// Execute implements engine.NodeBody.
func (b *HTTPRequestBody) Execute(ctx context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	url, _ := nctx.Input["url"].(string)
	if url == "" {
		return nil, domainerrors.New(domainerrors.KindValidation, "", wctx.InstanceID, nctx.NodeID, "http body requires 'url' in input", nil)
	}
	method, _ := nctx.Input["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	outputKey, _ := nctx.Input["output_key"].(string)
	if outputKey == "" {
		outputKey = "output"
	}

	var bodyReader io.Reader
	switch v := nctx.Input["body"].(type) {
	case string:
		bodyReader = bytes.NewBufferString(v)
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "failed to marshal request body", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "failed to build request", err)
	}
	if headers, ok := nctx.Input["headers"].(map[string]string); ok {
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "failed to read response body", err)
	}

	nctx.Output[outputKey] = string(respBody)
	nctx.Output["status_code"] = resp.StatusCode

	if resp.StatusCode >= 400 {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, fmt.Sprintf("http request returned status %d", resp.StatusCode), nil)
	}

	return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCompleted, Output: nctx.Output}, nil
}
