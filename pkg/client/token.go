package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// tokenParam is the redirect query parameter carrying the verification token.
const tokenParam = "dt-id"

// TokenResolver turns a token server URI into a one-time verification
// token. The token server answers with 303 See Other; the token is read from
// the Location header of that answer and the redirect is never followed.
type TokenResolver struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTokenResolver returns a resolver sharing hc's transport. hc itself is
// not modified. Fetches are bounded by the context passed to Resolve.
func NewTokenResolver(hc *http.Client, logger *zap.Logger) *TokenResolver {
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	noRedirect := *hc
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &TokenResolver{httpClient: &noRedirect, logger: logger}
}

// redirect is the outcome of a token server fetch: either the server
// redirected and location holds the target, or it did not.
type redirect struct {
	located    bool
	statusCode int
	location   string
}

func (r *TokenResolver) fetch(ctx context.Context, uri string) (redirect, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return redirect{}, &TransportError{API: "TokenServer", URL: uri, Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return redirect{}, transportFailure(ctx, "TokenServer", uri, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusSeeOther {
		return redirect{statusCode: resp.StatusCode}, nil
	}
	return redirect{located: true, statusCode: resp.StatusCode, location: resp.Header.Get("Location")}, nil
}

// Resolve fetches tokenServerURI and returns the dt-id carried by its
// redirect. It fails with a *TokenResolutionError when the server does not
// redirect or the redirect has no token, and with a *TransportError when the
// fetch itself fails.
func (r *TokenResolver) Resolve(ctx context.Context, tokenServerURI string) (string, error) {
	rd, err := r.fetch(ctx, tokenServerURI)
	if err != nil {
		return "", err
	}
	if !rd.located {
		r.logger.Warn("token server did not redirect",
			zap.String("uri", tokenServerURI), zap.Int("status", rd.statusCode))
		return "", &TokenResolutionError{
			Reason:     TokenUnexpectedResponse,
			URI:        tokenServerURI,
			StatusCode: rd.statusCode,
		}
	}
	token, err := ParseToken(rd.location)
	if err != nil {
		r.logger.Warn("token server redirect without token", zap.String("location", rd.location))
		return "", err
	}
	return token, nil
}

// ParseToken extracts the dt-id query parameter from a redirect location.
// The query is split on '&' and each pair on its first '='; the key match
// is case-sensitive and the value is returned verbatim. Other pairs are
// skipped, with or without '='. A missing parameter or an empty value is a
// *TokenResolutionError.
//
//	ParseToken("https://ts.example/cb?dt-id=ABC123") // "ABC123", nil
func ParseToken(location string) (string, error) {
	notFound := &TokenResolutionError{Reason: TokenNotFound, URI: location, StatusCode: http.StatusSeeOther}

	_, query, ok := strings.Cut(location, "?")
	if !ok {
		return "", notFound
	}
	for _, pair := range strings.Split(query, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != tokenParam {
			continue
		}
		if value == "" {
			return "", notFound
		}
		return value, nil
	}
	return "", notFound
}
