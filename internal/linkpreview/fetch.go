// Package linkpreview fetches title, description and image metadata for a
// link so list items can show a card next to the URL.
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

var (
	ErrInvalidURL      = errors.New("link preview: url must be absolute http or https")
	ErrBlockedHost     = errors.New("link preview: host resolves to a private address")
	ErrRedirectBlocked = errors.New("link preview: redirect to another host")
	ErrNoTitle         = errors.New("link preview: page has no title")
)

const (
	DefaultTimeout = time.Second
	maxRedirects   = 5
	maxBodyBytes   = 1 << 20
	userAgent      = "PrioritylistBot/1.0 (+link preview)"
)

// DefaultRedirectHosts are always acceptable redirect targets.
var DefaultRedirectHosts = []string{"www.youtube.com"}

type Preview struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

type Options struct {
	Timeout       time.Duration
	RedirectHosts []string
	// AllowPrivate disables the private address check. Tests only.
	AllowPrivate bool
}

type Fetcher struct {
	client        *http.Client
	redirectHosts map[string]bool
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RedirectHosts == nil {
		opts.RedirectHosts = DefaultRedirectHosts
	}
	f := &Fetcher{redirectHosts: map[string]bool{}}
	for _, host := range opts.RedirectHosts {
		f.redirectHosts[strings.ToLower(host)] = true
	}

	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivate {
		dialer.Control = refusePrivate
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}
	f.client = &http.Client{
		Timeout:       opts.Timeout,
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// refusePrivate runs after DNS resolution, so it sees the address that is
// actually dialled.
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast()
}

func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("link preview: stopped after %d redirects", maxRedirects)
	}
	if !f.redirectAllowed(via[0].URL.Hostname(), req.URL.Hostname()) {
		return fmt.Errorf("%w: %s", ErrRedirectBlocked, req.URL.Hostname())
	}
	return nil
}

// redirectAllowed accepts the same host, its www. twin, or a listed host.
func (f *Fetcher) redirectAllowed(base, target string) bool {
	base, target = strings.ToLower(base), strings.ToLower(target)
	if target == base || target == "www."+base || "www."+target == base {
		return true
	}
	return f.redirectHosts[target]
}

// Fetch downloads rawURL and extracts its preview. A page without a title is
// an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Preview, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return Preview{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Preview{}, fmt.Errorf("link preview: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("link preview: fetch %s: %w", target.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Preview{}, fmt.Errorf("link preview: %s returned http %d", target.Host, resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return Preview{}, ErrNoTitle
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	preview, err := parseHTML(io.LimitReader(resp.Body, maxBodyBytes), finalURL)
	if err != nil {
		return Preview{}, err
	}
	if preview.Title == "" {
		return Preview{}, ErrNoTitle
	}
	return preview, nil
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, nil
	default:
		return nil, ErrInvalidURL
	}
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
