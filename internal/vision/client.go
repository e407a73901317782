package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// #region service
// Service abstracts the face detection/embedding capability so tests can
// inject a fake without a running sidecar.
type Service interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
}
// #endregion service

// #region client-struct
// Client wraps the HTTP connection to the face detection/embedding sidecar.
type Client struct {
	svc Service
}
// #endregion client-struct

// #region constructor
// NewClient creates a Client talking to the sidecar at baseURL.
// model names the embedding model the sidecar should run; empty uses its default.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{svc: &httpService{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}}
}

// NewClientWithService creates a Client with an injected service implementation.
// Used for testing without a real sidecar.
func NewClientWithService(svc Service) *Client {
	return &Client{svc: svc}
}
// #endregion constructor

// #region detect
// DetectAndEmbed returns all faces found in the frame, in detection order,
// with embeddings normalized to unit length. Zero faces is a valid result,
// not an error.
func (c *Client) DetectAndEmbed(ctx context.Context, image []byte) ([]Face, error) {
	faces, err := c.svc.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	for i := range faces {
		faces[i].Embedding = Normalize(faces[i].Embedding)
	}
	return faces, nil
}
// #endregion detect

// #region http-service
// httpService is the real transport: POST /v1/detect with a base64 frame.
type httpService struct {
	baseURL string
	model   string
	http    *http.Client
}

type detectRequest struct {
	Image string `json:"image"`
	Model string `json:"model,omitempty"`
}

type detectResponse struct {
	Faces []Face `json:"faces"`
}

func (s *httpService) Detect(ctx context.Context, image []byte) ([]Face, error) {
	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(image),
		Model: s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Faces, nil
}
// #endregion http-service
