package carrier

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roach88/parceltrack/internal/model"
)

const (
	// tokenSlack is the minimum remaining lifetime of a reused token.
	tokenSlack = 60 * time.Second

	// defaultTokenLifetime applies when the endpoint omits expires_in.
	defaultTokenLifetime = time.Hour
)

var errNoAccessToken = errors.New("token response without access_token")

// tokenCache obtains client-credentials bearer tokens and keeps them in the
// durable configuration store as <PREFIX>_TOKEN and <PREFIX>_EXPIRES (unix
// seconds), so every process shares one token.
type tokenCache struct {
	deps   Deps
	prefix string
}

func newTokenCache(d Deps, prefix string) *tokenCache {
	return &tokenCache{deps: d, prefix: prefix}
}

// tokenRequest names the endpoint and credentials of one token fetch.
type tokenRequest struct {
	carrier  string
	tokenURL string
	basic    string
	scopes   []string
}

// Token returns a cached token with more than a minute left, or fetches a
// new one. On failure it returns the response describing why.
func (c *tokenCache) Token(ctx context.Context, tr tokenRequest) (string, *response) {
	now := c.deps.Clock.Now()
	cfg := c.deps.Config

	tok, _, _ := cfg.Lookup(ctx, c.prefix+"_TOKEN")
	expRaw, _, _ := cfg.Lookup(ctx, c.prefix+"_EXPIRES")
	if exp, err := strconv.ParseInt(strings.TrimSpace(expRaw), 10, 64); err == nil && tok != "" {
		if time.Unix(exp, 0).Sub(now) > tokenSlack {
			return tok, nil
		}
	}

	id, secret, ok := decodeBasic(tr.basic)
	if !ok {
		return "", &response{status: model.StatusMissingCredentials}
	}
	cc := clientcredentials.Config{
		ClientID:     id,
		ClientSecret: secret,
		TokenURL:     tr.tokenURL,
		Scopes:       tr.scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	octx := context.WithValue(ctx, oauth2.HTTPClient, c.deps.HTTP)
	t, err := cc.Token(octx)
	if err == nil && t.AccessToken == "" {
		err = errNoAccessToken
	}
	if err != nil {
		return "", tokenFailure(err, now)
	}

	expiry := t.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultTokenLifetime)
	}
	if err := cfg.Set(ctx, c.prefix+"_TOKEN", t.AccessToken); err != nil {
		c.deps.Logger.Warn("carrier.token.store.failed", "prefix", c.prefix, "error", err)
	}
	if err := cfg.Set(ctx, c.prefix+"_EXPIRES", strconv.FormatInt(expiry.Unix(), 10)); err != nil {
		c.deps.Logger.Warn("carrier.token.store.failed", "prefix", c.prefix, "error", err)
	}
	c.deps.Logger.Debug("carrier.token.refreshed", "prefix", c.prefix, "expires", expiry)
	return t.AccessToken, nil
}

// tokenFailure maps a token endpoint error onto the status taxonomy.
func tokenFailure(err error, now time.Time) *response {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		r := &response{code: code, status: model.HTTPStatus(code), body: re.Body}
		if code == 429 {
			ra := 1
			if re.Response.Header != nil {
				ra = retryAfter(re.Response.Header, now)
			}
			r.status = model.StatusRateLimited
			r.retryAfter = &ra
		}
		return r
	}
	var ue *url.Error
	var ne net.Error
	if errors.As(err, &ue) || errors.As(err, &ne) {
		return &response{status: model.StatusNetworkError, body: []byte(err.Error())}
	}
	return &response{status: model.StatusParsingError, body: []byte(err.Error())}
}

// decodeBasic splits a base64 "id:secret" credential.
func decodeBasic(basic string) (id, secret string, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(basic))
	if err != nil {
		return "", "", false
	}
	id, secret, ok = strings.Cut(string(raw), ":")
	return id, secret, ok && id != ""
}
