package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DesoClient posts through a DeSo node's submit-post endpoint. Signing of
// the resulting transaction is left to the node.
type DesoClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	nodeURL    string
	publicKey  string
}

func NewDesoClient(logger *slog.Logger, nodeURL, publicKey string, httpClient *http.Client) *DesoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &DesoClient{
		logger:     logger.With("channel", "deso"),
		httpClient: httpClient,
		nodeURL:    strings.TrimRight(nodeURL, "/"),
		publicKey:  publicKey,
	}
}

type desoBody struct {
	Body string `json:"Body"`
}

type desoSubmitPostRequest struct {
	UpdaterPublicKeyBase58Check string   `json:"UpdaterPublicKeyBase58Check"`
	ParentStakeID               string   `json:"ParentStakeID,omitempty"`
	BodyObj                     desoBody `json:"BodyObj"`
	MinFeeRateNanosPerKB        uint64   `json:"MinFeeRateNanosPerKB"`
}

type desoSubmitPostResponse struct {
	PostEntryResponse struct {
		PostHashHex string `json:"PostHashHex"`
	} `json:"PostEntryResponse"`
}

type desoErrorResponse struct {
	Error string `json:"error"`
}

func (c *DesoClient) Name() string { return "deso" }

func (c *DesoClient) CreatePost(ctx context.Context, text string) (string, error) {
	return c.submit(ctx, "", text)
}

func (c *DesoClient) CreateReply(ctx context.Context, parentID, text string) (string, error) {
	return c.submit(ctx, parentID, text)
}

func (c *DesoClient) submit(ctx context.Context, parentID, text string) (string, error) {
	reqBytes, err := json.Marshal(desoSubmitPostRequest{
		UpdaterPublicKeyBase58Check: c.publicKey,
		ParentStakeID:               parentID,
		BodyObj:                     desoBody{Body: text},
		MinFeeRateNanosPerKB:        1000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request for DeSo: %w", err)
	}

	url := c.nodeURL + "/api/v0/submit-post"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request for DeSo: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Sending submit-post to DeSo node", "url", url, "is_reply", parentID != "")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to send request to DeSo", "error", err)
		return "", fmt.Errorf("failed to send request to DeSo: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("DeSo request failed (status %d), and failed to read response body: %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errMsg := fmt.Sprintf("DeSo API error: status %d", httpResp.StatusCode)
		var errResp desoErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			errMsg = fmt.Sprintf("DeSo API error: status %d, message: %s", httpResp.StatusCode, errResp.Error)
		}
		c.logger.WarnContext(ctx, "DeSo submit-post failed", "status_code", httpResp.StatusCode, "error", errMsg)
		return "", fmt.Errorf("%s", errMsg)
	}

	var res desoSubmitPostResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", fmt.Errorf("failed to parse DeSo response: %w", err)
	}
	if res.PostEntryResponse.PostHashHex == "" {
		return "", ErrEmptyPostID
	}

	c.logger.InfoContext(ctx, "Posted to DeSo", "post_hash_hex", res.PostEntryResponse.PostHashHex, "is_reply", parentID != "")
	return res.PostEntryResponse.PostHashHex, nil
}
