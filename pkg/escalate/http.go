package escalate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/karteekp20/aegisgate/pkg/httputil"
)

// HTTPClassifier talks to a shadow-agent service over HTTP. The service
// contract is a single POST returning {malicious, confidence, reason}.
type HTTPClassifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	inflight *httputil.Semaphore
}

// NewHTTPClassifier creates a classifier for the given endpoint.
// maxInflight caps concurrent shadow calls (default 16).
func NewHTTPClassifier(endpoint, apiKey string, maxInflight int) *HTTPClassifier {
	if maxInflight <= 0 {
		maxInflight = 16
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   httputil.FastClient(),
		inflight: httputil.NewSemaphore(maxInflight),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify implements Classifier.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	if err := c.inflight.Acquire(ctx); err != nil {
		return Verdict{}, err
	}
	defer c.inflight.Release()

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("shadow agent call: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := httputil.ReadErrorBody(resp.Body)
		return Verdict{}, fmt.Errorf("shadow agent status %d: %s", resp.StatusCode, msg)
	}

	raw, err := httputil.ReadResponseBody(resp.Body, 0)
	if err != nil {
		return Verdict{}, fmt.Errorf("read response: %w", err)
	}
	var verdict Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return Verdict{}, fmt.Errorf("verdict confidence %.2f out of range", verdict.Confidence)
	}
	return verdict, nil
}
