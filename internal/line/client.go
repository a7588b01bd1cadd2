package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	DefaultBaseURL = "https://api.line.me"

	// LINE rejects text messages longer than this.
	maxTextRunes = 5000
)

var ErrNoAccessToken = errors.New("line: channel access token not configured")

// Client sends replies through the Messaging API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(token, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		token:      strings.TrimSpace(token),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// api builds a messaging client bound to ctx. WithContext mutates the
// client, so one is made per call.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.token,
		messaging_api.WithEndpoint(c.baseURL),
		messaging_api.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("messaging api client: %w", err)
	}
	return api.WithContext(ctx), nil
}

// Reply answers replyToken with a single text message.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if c.token == "" {
		return ErrNoAccessToken
	}
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes])
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}
	_, err = api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{&messaging_api.TextMessage{Text: text}},
	})
	if err != nil {
		return fmt.Errorf("LINE reply failed: %w", err)
	}
	return nil
}
