package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrAPI marks a response whose ok flag was false.
var ErrAPI = errors.New("telegram api error")

// Client is a minimal Bot API client covering long polling and replies.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *resty.Client
	// poll has no client timeout; getUpdates bounds itself by context.
	poll *resty.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http:    resty.New().SetTimeout(timeout),
		poll:    resty.New(),
	}
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// GetUpdates long-polls for updates at or after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, pollTimeout time.Duration) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout+c.timeout)
	defer cancel()
	req := c.poll.R().SetContext(ctx).SetQueryParams(map[string]string{
		"offset":          strconv.FormatInt(offset, 10),
		"timeout":         strconv.FormatInt(int64(pollTimeout/time.Second), 10),
		"allowed_updates": `["message"]`,
	})
	var updates []Update
	if err := c.call(req, resty.MethodGet, "getUpdates", &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	req := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"chat_id": chatID, "text": text})
	return c.call(req, resty.MethodPost, "sendMessage", nil)
}

// SendDocument uploads content as a file attachment with an optional caption.
func (c *Client) SendDocument(ctx context.Context, chatID, fileName string, content []byte, caption string) error {
	fields := map[string]string{"chat_id": chatID}
	if caption != "" {
		fields["caption"] = caption
	}
	req := c.http.R().SetContext(ctx).
		SetFormData(fields).
		SetFileReader("document", fileName, bytes.NewReader(content))
	return c.call(req, resty.MethodPost, "sendDocument", nil)
}

func (c *Client) call(req *resty.Request, httpMethod, method string, out interface{}) error {
	resp, err := req.Execute(httpMethod, c.baseURL+"/bot"+c.token+"/"+method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, redact(err, c.token))
	}
	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		if !resp.IsSuccess() {
			return fmt.Errorf("telegram %s status=%d body=%s", method, resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
		}
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%w: %s: %s", ErrAPI, method, strings.TrimSpace(parsed.Description))
	}
	if out == nil || len(parsed.Result) == 0 {
		return nil
	}
	return json.Unmarshal(parsed.Result, out)
}

// redact keeps the bot token out of transport errors, which embed the URL.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
