/**
 * PaddleOCR Client - PaddleHub serving "ocr_system" endpoint
 *
 * The server is started with `hub serving start -m ocr_system` and
 * answers POST /predict/ocr_system with line detections for each image.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// PaddleClient handles communication with a PaddleOCR serving endpoint
type PaddleClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *logging.Logger
}

// PaddleRequest is the serving request body
type PaddleRequest struct {
	Images []string `json:"images"` // Base64 encoded images
}

// PaddleResponse is the serving response body
type PaddleResponse struct {
	Msg     string              `json:"msg"`
	Status  string              `json:"status"`
	Results [][]PaddleDetection `json:"results"`
}

// PaddleDetection is one detected text line
type PaddleDetection struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	TextRegion [][]float64 `json:"text_region"` // Polygon points [x, y]
}

// NewPaddleClient creates a new PaddleOCR client
func NewPaddleClient(endpoint string) *PaddleClient {
	return &PaddleClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger("PaddleClient"),
	}
}

// Detect sends one PNG image and returns its detections
func (c *PaddleClient) Detect(ctx context.Context, imageData []byte) ([]PaddleDetection, error) {
	reqBody, err := json.Marshal(&PaddleRequest{
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to PaddleOCR failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PaddleOCR returned error status %d: %s", resp.StatusCode, string(body))
	}

	var parsed PaddleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// PaddleHub reports success as status "000"
	if parsed.Status != "" && parsed.Status != "000" {
		return nil, fmt.Errorf("PaddleOCR operation failed: status %s: %s", parsed.Status, parsed.Msg)
	}

	if len(parsed.Results) == 0 {
		return []PaddleDetection{}, nil
	}

	c.logger.Debug("PaddleOCR detection complete", "detections", len(parsed.Results[0]))
	return parsed.Results[0], nil
}
