// Package shopapi is the REST client for the shop backend. It implements the
// conversation, history, order summary and upload collaborators.
package shopapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"github.com/memohai/shopchat/internal/conversation"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/message"
	"github.com/memohai/shopchat/internal/orderref"
)

const (
	// DefaultTimeout bounds a single REST request.
	DefaultTimeout = 15 * time.Second
	// UploadField is the multipart field carrying uploaded files.
	UploadField = "files"
	userAgent   = "shopchat/1.0"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc).SetBaseURL(c.baseURL).SetHeader("User-Agent", userAgent)
		}
	}
}

// Client talks to the shop REST API. Every request carries the bearer token
// of the configured token source.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *resty.Client
	tokens  oauth2.TokenSource
	logger  *slog.Logger
}

// NewClient creates a client for baseURL.
func NewClient(log *slog.Logger, baseURL string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("shop api base url is required")
	}
	c := &Client{
		baseURL: baseURL,
		timeout: DefaultTimeout,
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("User-Agent", userAgent),
		tokens: tokens,
		logger: log.With(slog.String("component", "shopapi")),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Applied last so the timeout survives a transport swap.
	c.http.SetTimeout(c.timeout)
	return c, nil
}

// ListConversations returns the conversations of the current user.
func (c *Client) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	var out []conversation.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", func(r *resty.Request) {
		r.SetResult(&out)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateShopConversation creates the shop conversation of the current user.
func (c *Client) CreateShopConversation(ctx context.Context) (conversation.Conversation, error) {
	var out conversation.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations/shop", func(r *resty.Request) {
		r.SetResult(&out)
	}); err != nil {
		return conversation.Conversation{}, err
	}
	return out, nil
}

// ListMessages returns one newest-first history page.
func (c *Client) ListMessages(ctx context.Context, q message.PageQuery) ([]message.Message, error) {
	params := map[string]string{
		"conversationId": q.ConversationID,
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	if !q.Before.IsZero() {
		params["before"] = q.Before.UTC().Format(time.RFC3339Nano)
	}
	var out []message.Message
	if err := c.do(ctx, http.MethodGet, "/messages", func(r *resty.Request) {
		r.SetQueryParams(params).SetResult(&out)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderSummaryResponse is the wire shape of GET /orders/{id}/summary.
type OrderSummaryResponse struct {
	SKU             string          `json:"sku"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	ShippingAddress struct {
		ReceiverFullname string `json:"receiverFullname"`
	} `json:"shippingAddress"`
}

// OrderSummary fetches the summary of orderID. A 404 yields ErrNotFound.
func (c *Client) OrderSummary(ctx context.Context, orderID string) (OrderSummaryResponse, error) {
	var out OrderSummaryResponse
	if err := c.do(ctx, http.MethodGet, "/orders/{id}/summary", func(r *resty.Request) {
		r.SetPathParam("id", orderID).SetResult(&out)
	}); err != nil {
		return OrderSummaryResponse{}, err
	}
	return out, nil
}

// FetchOrderSummary implements orderref.Fetcher.
func (c *Client) FetchOrderSummary(ctx context.Context, orderID string) (*orderref.Summary, error) {
	resp, err := c.OrderSummary(ctx, orderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &orderref.Summary{
		OrderID:      orderID,
		SKU:          resp.SKU,
		TotalPrice:   resp.TotalPrice,
		ReceiverName: resp.ShippingAddress.ReceiverFullname,
	}, nil
}

type uploadResponse struct {
	URLs []string `json:"urls"`
}

// Upload implements media.Uploader. The returned URLs match the input order.
func (c *Client) Upload(ctx context.Context, images []media.Image) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	fields := make([]*resty.MultipartField, 0, len(images))
	for _, img := range images {
		fields = append(fields, &resty.MultipartField{
			Param:       UploadField,
			FileName:    img.Name,
			ContentType: img.Mime,
			Reader:      bytes.NewReader(img.Data),
		})
	}
	var out uploadResponse
	if err := c.do(ctx, http.MethodPost, "/uploads", func(r *resty.Request) {
		r.SetMultipartFields(fields...).SetResult(&out)
	}); err != nil {
		return nil, err
	}
	if len(out.URLs) != len(images) {
		return nil, fmt.Errorf("%w: upload returned %d urls for %d files", ErrRequestFailed, len(out.URLs), len(images))
	}
	return out.URLs, nil
}

func (c *Client) do(ctx context.Context, method, path string, build func(r *resty.Request)) error {
	req := c.http.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		req.SetAuthToken(tok.AccessToken)
	}
	if build != nil {
		build(req)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	if resp.IsError() {
		c.logger.Debug("shop api error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode()),
		)
		return statusError(method, path, resp)
	}
	return nil
}
