package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// StoreOptions selects where the bearer token comes from. Token wins over
// TokenFile when both are set.
type StoreOptions struct {
	Token     string
	TokenFile string
}

// Store provides the bearer token shared by the REST client and the
// realtime channel. It implements oauth2.TokenSource; tokens are cached
// until their exp claim and the token file is re-read after that.
type Store struct {
	source oauth2.TokenSource
	logger *slog.Logger
}

// NewStore creates a credential store.
func NewStore(log *slog.Logger, opts StoreOptions) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	src := &fileTokenSource{
		static: strings.TrimSpace(opts.Token),
		path:   strings.TrimSpace(opts.TokenFile),
		now:    time.Now,
	}
	if src.static == "" && src.path == "" {
		return nil, ErrNoCredentials
	}
	return &Store{
		source: oauth2.ReuseTokenSource(nil, src),
		logger: log.With(slog.String("component", "auth")),
	}, nil
}

// Token implements oauth2.TokenSource.
func (s *Store) Token() (*oauth2.Token, error) {
	tok, err := s.source.Token()
	if err != nil {
		s.logger.Warn("token unavailable", slog.Any("error", err))
		return nil, err
	}
	return tok, nil
}

// AccessToken returns the raw bearer token.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := s.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type fileTokenSource struct {
	static string
	path   string
	now    func() time.Time
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	raw := s.static
	if raw == "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil, ErrNoCredentials
	}
	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	// Opaque tokens carry no expiry and are used as-is.
	expiresAt, ok, err := ExpiryOf(raw)
	if err != nil || !ok {
		return tok, nil
	}
	if !expiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w at %s", ErrTokenExpired, expiresAt.UTC().Format(time.RFC3339))
	}
	tok.Expiry = expiresAt
	return tok, nil
}
