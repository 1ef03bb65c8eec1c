package carrier

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

const (
	maxBodyBytes   = 4 << 20
	diagSnippetLen = 250
	rawSnippetLen  = 1000
)

// response is the outcome of one HTTP call. status is empty on 2xx.
type response struct {
	code       int
	status     string
	body       []byte
	retryAfter *int
}

func (r response) ok() bool { return r.status == "" }

// call describes one remote request.
type call struct {
	carrier  string
	function string
	code     string
	method   string
	url      string
	header   http.Header
}

type fetcher struct {
	deps Deps
}

// do performs c and maps the outcome. It never returns an error.
func (f *fetcher) do(ctx context.Context, c call) response {
	method := c.method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, nil)
	if err != nil {
		return response{status: model.StatusNetworkError, body: []byte(err.Error())}
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := f.deps.HTTP.Do(req)
	if err != nil {
		return response{status: model.StatusNetworkError, body: []byte(err.Error())}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{code: resp.StatusCode, status: model.StatusNetworkError, body: []byte(err.Error())}
	}

	r := response{code: resp.StatusCode, body: body}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		r.status = model.StatusRateLimited
		ra := retryAfter(resp.Header, f.deps.Clock.Now())
		r.retryAfter = &ra
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		r.status = model.StatusNotFound
	default:
		r.status = model.HTTPStatus(resp.StatusCode)
	}
	return r
}

// fail records a failed call and converts it into a result.
func (f *fetcher) fail(ctx context.Context, c call, r response) model.StatusResult {
	f.record(ctx, c, r)
	res := model.StatusResult{Carrier: c.carrier, Status: r.status, RetryAfter: r.retryAfter}
	if r.status != model.StatusNotFound {
		res.Raw = truncate(string(r.body), rawSnippetLen)
	}
	return res
}

func (f *fetcher) record(ctx context.Context, c call, r response) {
	f.deps.Logger.Warn("carrier.http.error",
		"carrier", c.carrier,
		"function", c.function,
		"http_code", r.code,
		"status", r.status,
	)
	if f.deps.Diagnostics == nil {
		return
	}
	err := f.deps.Diagnostics.AppendDiagnostic(ctx, model.DiagnosticEntry{
		Time:        f.deps.Clock.Now(),
		Carrier:     c.carrier,
		Function:    c.function,
		HTTPCode:    r.code,
		Tag:         r.status,
		Code:        c.code,
		RetryAfter:  r.retryAfter,
		BodySnippet: truncate(string(r.body), diagSnippetLen),
	})
	if err != nil {
		f.deps.Logger.Warn("carrier.diagnostic.failed", "error", err)
	}
}

// parseFailure builds a PARSING_ERROR result for an unreadable 2xx body.
func (f *fetcher) parseFailure(ctx context.Context, c call, r response) model.StatusResult {
	r.status = model.StatusParsingError
	return f.fail(ctx, c, r)
}

// retryAfter reads the wait hint of a 429 in seconds, minimum 1.
// Retry-After may be delta seconds or an HTTP date. X-RateLimit-Reset may
// be delta seconds or a unix timestamp.
func retryAfter(h http.Header, now time.Time) int {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return max(1, n)
		}
		if t, err := http.ParseTime(v); err == nil {
			return max(1, int(t.Sub(now).Seconds()))
		}
	}
	if v := strings.TrimSpace(h.Get("X-RateLimit-Reset")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n > 1_000_000_000 {
				n -= now.Unix()
			}
			return max(1, int(n))
		}
	}
	return 1
}

// expandURL substitutes the URL-encoded code into the {{code}} placeholder.
func expandURL(tpl, code string) string {
	enc := strings.ReplaceAll(url.QueryEscape(code), "+", "%20")
	return strings.ReplaceAll(tpl, "{{code}}", enc)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// setting reads a trimmed configuration value.
func (f *fetcher) setting(ctx context.Context, key string) string {
	return config.String(ctx, f.deps.Config, key)
}

// formatTime renders a carrier timestamp as a cell time. Unparseable
// values are returned as given.
func (f *fetcher) formatTime(s string) string {
	if s == "" {
		return ""
	}
	t, ok := model.ParseFlexible(s, f.deps.Location)
	if !ok {
		return s
	}
	return model.FormatCellTime(t, f.deps.Location)
}

