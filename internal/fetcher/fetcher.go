// Package fetcher performs single HTTP requests for the crawl engine and
// classifies every outcome instead of surfacing transport errors. The
// engine never retries: a failed page is recorded as failed and the crawl
// moves on.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// Kind tags the outcome of one fetch attempt.
type Kind int

const (
	// KindSuccess is a 2xx response with a readable body.
	KindSuccess Kind = iota
	// KindHTTPError is any non-2xx response; a body may still be present.
	KindHTTPError
	// KindNetworkError covers timeouts, refused connections, and DNS
	// failures. No response was received.
	KindNetworkError
	// KindTooLarge means the body exceeded the configured byte ceiling.
	KindTooLarge
)

// Result is the classified outcome of a fetch. Exactly one of the variants
// applies; consumers switch on Kind rather than probing fields.
type Result struct {
	Kind        Kind
	StatusCode  int
	Body        []byte
	ContentType string
	FinalURL    *url.URL
	NetErr      types.ErrorKind
	Latency     time.Duration
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
	ProxyURL     string
}

// Fetcher retrieves one page per call.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) Result
}

// HTTPFetcher implements Fetcher via the Go http.Client. Redirects are
// followed; the final status code is recorded against the requested URL.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxBodyBytes int64
}

// NewHTTPFetcher constructs an HTTP fetcher from the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

var errBodyTooLarge = errors.New("response body exceeds limit")

// Fetch downloads a single URL and classifies what happened. It never
// returns an error; transport failures become KindNetworkError results.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) Result {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{Kind: KindNetworkError, NetErr: types.ErrorDNS, Latency: time.Since(start)}
	}
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.extraHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return Result{Kind: KindNetworkError, NetErr: classifyNetErr(err), Latency: time.Since(start)}
	}

	body, err := f.readBody(resp)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return Result{
				Kind:       KindTooLarge,
				StatusCode: resp.StatusCode,
				NetErr:     types.ErrorTooLarge,
				Latency:    time.Since(start),
			}
		}
		return Result{Kind: KindNetworkError, NetErr: classifyNetErr(err), Latency: time.Since(start)}
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	kind := KindSuccess
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		kind = KindHTTPError
	}
	return Result{
		Kind:        kind,
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
		Latency:     time.Since(start),
	}
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// classifyNetErr maps transport failures onto the three network error
// kinds. Anything connection-level that is neither a timeout nor a DNS
// failure counts as refused.
func classifyNetErr(err error) types.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.ErrorTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return types.ErrorDNS
	}
	return types.ErrorRefused
}
