package shopapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/memohai/shopchat/internal/conversation"
	"github.com/memohai/shopchat/internal/media"
	"github.com/memohai/shopchat/internal/message"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(nil, srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"}))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListConversationsSendsBearer(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/conversations", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "c1", "kind": "shop", "participantIds": []string{"u1", "shop"}},
		})
	})
	items, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, conversation.KindShop, items[0].Kind)
	assert.True(t, items[0].HasParticipant("shop"))
}

func TestCreateShopConversation(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/shop", r.URL.Path)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "c9", "kind": "shop"})
	})
	conv, err := c.CreateShopConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c9", conv.ID)
}

func TestListMessagesQuery(t *testing.T) {
	t.Parallel()

	before := time.Date(2026, 3, 10, 9, 0, 0, 123000000, time.FixedZone("ICT", 7*3600))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "c1", q.Get("conversationId"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "2026-03-10T02:00:00.123Z", q.Get("before"))
		writeJSON(w, http.StatusOK, []message.Message{{ID: "m1", ConversationID: "c1", CreatedAt: before.Add(-time.Minute)}})
	})
	page, err := c.ListMessages(context.Background(), message.PageQuery{ConversationID: "c1", Limit: 20, Before: before})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].ID)
}

func TestListMessagesLatestOmitsBefore(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["before"]
		assert.False(t, ok)
		writeJSON(w, http.StatusOK, []message.Message{})
	})
	page, err := c.ListMessages(context.Background(), message.PageQuery{ConversationID: "c1", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestFetchOrderSummary(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/A1/summary":
			writeJSON(w, http.StatusOK, map[string]any{
				"sku":             "SKU-1",
				"totalPrice":      "199000.00",
				"shippingAddress": map[string]any{"receiverFullname": "Trần Thị B"},
			})
		case "/orders/missing/summary":
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
		}
	})
	ctx := context.Background()

	summary, err := c.FetchOrderSummary(ctx, "A1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "SKU-1", summary.SKU)
	assert.Equal(t, "Trần Thị B", summary.ReceiverName)
	assert.True(t, summary.TotalPrice.Equal(decimal.NewFromInt(199000)))

	summary, err = c.FetchOrderSummary(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, err = c.OrderSummary(ctx, "missing")
	assert.True(t, IsNotFound(err))

	_, err = c.FetchOrderSummary(ctx, "broken")
	require.ErrorIs(t, err, ErrRequestFailed)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestUploadMultipart(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		files := r.MultipartForm.File[UploadField]
		urls := make([]string, 0, len(files))
		for _, fh := range files {
			f, err := fh.Open()
			if !assert.NoError(t, err) {
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()
			urls = append(urls, "https://cdn.test/"+fh.Filename+"?n="+string(rune('0'+len(data))))
		}
		writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
	})
	urls, err := c.Upload(context.Background(), []media.Image{
		{Name: "a.png", Mime: "image/png", Data: []byte("12")},
		{Name: "b.jpg", Mime: "image/jpeg", Data: []byte("123")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.test/a.png?n=2", "https://cdn.test/b.jpg?n=3"}, urls)
}

func TestUploadURLCountMismatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"urls": []string{}})
	})
	_, err := c.Upload(context.Background(), []media.Image{{Name: "a.png", Mime: "image/png", Data: []byte("x")}})
	require.ErrorIs(t, err, ErrRequestFailed)
}

func TestUnauthorizedStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
	})
	_, err := c.ListConversations(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

type failingTokens struct{}

func (failingTokens) Token() (*oauth2.Token, error) { return nil, errors.New("no token") }

func TestTokenSourceFailure(t *testing.T) {
	t.Parallel()

	c, err := NewClient(nil, "http://127.0.0.1:1", failingTokens{})
	require.NoError(t, err)
	_, err = c.ListConversations(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, "  ", nil)
	require.Error(t, err)
}

func TestTimeoutSurvivesHTTPClientOption(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusOK, []any{})
	}))
	t.Cleanup(srv.Close)
	tokens := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1"})

	for name, opts := range map[string][]Option{
		"timeout first": {WithTimeout(50 * time.Millisecond), WithHTTPClient(&http.Client{})},
		"timeout last":  {WithHTTPClient(&http.Client{}), WithTimeout(50 * time.Millisecond)},
	} {
		opts := opts
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, err := NewClient(nil, srv.URL, tokens, opts...)
			require.NoError(t, err)
			assert.Equal(t, 50*time.Millisecond, c.http.GetClient().Timeout)

			start := time.Now()
			_, err = c.ListConversations(context.Background())
			require.ErrorIs(t, err, ErrRequestFailed)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestDefaultTimeoutWithHTTPClient(t *testing.T) {
	t.Parallel()

	c, err := NewClient(nil, "http://shop.test", nil, WithHTTPClient(&http.Client{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.http.GetClient().Timeout)
}
