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

// XClient posts through the X v2 tweets endpoint using a bearer token.
type XClient struct {
	logger      *slog.Logger
	httpClient  *http.Client
	apiURL      string
	bearerToken string
}

func NewXClient(logger *slog.Logger, apiURL, bearerToken string, httpClient *http.Client) *XClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &XClient{
		logger:      logger.With("channel", "x"),
		httpClient:  httpClient,
		apiURL:      strings.TrimRight(apiURL, "/"),
		bearerToken: bearerToken,
	}
}

type xReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type xCreateTweetRequest struct {
	Text  string  `json:"text"`
	Reply *xReply `json:"reply,omitempty"`
}

type xCreateTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type xErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *XClient) Name() string { return "x" }

func (c *XClient) CreatePost(ctx context.Context, text string) (string, error) {
	return c.tweet(ctx, xCreateTweetRequest{Text: text})
}

func (c *XClient) CreateReply(ctx context.Context, parentID, text string) (string, error) {
	return c.tweet(ctx, xCreateTweetRequest{Text: text, Reply: &xReply{InReplyToTweetID: parentID}})
}

func (c *XClient) tweet(ctx context.Context, body xCreateTweetRequest) (string, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request for X: %w", err)
	}

	url := c.apiURL + "/2/tweets"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request for X: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to send request to X", "error", err)
		return "", fmt.Errorf("failed to send request to X: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("X request failed (status %d), and failed to read response body: %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errMsg := fmt.Sprintf("X API error: status %d", httpResp.StatusCode)
		var errResp xErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail != "" {
			errMsg = fmt.Sprintf("X API error: status %d, %s: %s", httpResp.StatusCode, errResp.Title, errResp.Detail)
		}
		c.logger.WarnContext(ctx, "X create tweet failed", "status_code", httpResp.StatusCode, "error", errMsg)
		return "", fmt.Errorf("%s", errMsg)
	}

	var res xCreateTweetResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return "", fmt.Errorf("failed to parse X response: %w", err)
	}
	if res.Data.ID == "" {
		return "", ErrEmptyPostID
	}

	c.logger.InfoContext(ctx, "Posted to X", "tweet_id", res.Data.ID, "is_reply", body.Reply != nil)
	return res.Data.ID, nil
}
