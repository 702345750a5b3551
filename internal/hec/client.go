package hec

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// eventPath is the fixed JSON event endpoint suffix appended to the
	// configured base URL.
	eventPath = "/services/collector/event/1.0"

	// healthPath is the collector's health endpoint, used by HealthCheck.
	healthPath = "/services/collector/health"

	contentTypeJSON = "application/json; charset=utf-8"

	// maxReplyBytes caps how much of an error response body is captured
	// for diagnostics.
	maxReplyBytes = 64 << 10

	defaultTimeout = 15 * time.Second
)

// SendMode controls how the host overlaps flushes of separate batches.
type SendMode int

const (
	// SendParallel lets batches race: separate flushes may be in flight
	// concurrently with no cross-batch ordering guarantee.
	SendParallel SendMode = iota
	// SendSequential means the host fully awaits one batch's send before
	// appending events into the next. The client itself does not
	// serialize concurrent Post calls; the guarantee is the host's.
	SendSequential
)

// String returns the configuration spelling of the mode.
func (m SendMode) String() string {
	if m == SendSequential {
		return "sequential"
	}
	return "parallel"
}

// ParseSendMode converts a configuration string into a SendMode.
func ParseSendMode(s string) (SendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "parallel":
		return SendParallel, nil
	case "sequential":
		return SendSequential, nil
	default:
		return SendParallel, fmt.Errorf("unknown send mode %q", s)
	}
}

// Config contains construction parameters for a Client. All values are
// fixed for the client's lifetime.
type Config struct {
	// URL is the collector base URL, e.g. https://splunk.example.com:8088.
	// The event path suffix is appended automatically. Required.
	URL string

	// Token is the HEC authentication token. Required.
	Token string

	// Channel is an optional data-channel identifier sent as
	// X-Splunk-Request-Channel.
	Channel string

	// Index, Source and SourceType name the default destination metadata
	// applied to events without an explicit override.
	Index      string
	Source     string
	SourceType string

	// IgnoreSSLErrors accepts any server certificate. Overridden
	// validation failures are still published through the error
	// subscription for visibility.
	IgnoreSSLErrors bool

	// UseProxy enables proxying. With an empty ProxyURL the environment
	// proxy settings apply; otherwise the explicit URL and credentials
	// are used. When false, no proxy is used at all.
	UseProxy      bool
	ProxyURL      string
	ProxyUser     string
	ProxyPassword string

	// MaxConnsPerServer limits concurrent connections to the collector.
	// Zero means the transport default.
	MaxConnsPerServer int

	// UseHTTP10 is a compatibility mode for legacy middleboxes: HTTP/2
	// is disabled and connections are kept alive explicitly.
	UseHTTP10 bool

	// SendMode declares how the host overlaps batch flushes.
	SendMode SendMode

	// Gzip compresses payloads with Content-Encoding: gzip.
	Gzip bool

	// Timeout bounds each HTTP call. Zero means a 15 second default.
	Timeout time.Duration

	// Formatter optionally rewrites event payloads before serialization.
	Formatter Formatter
}

// Client posts serialized event payloads to a Splunk HEC endpoint. It
// owns the long-lived HTTP transport and is built once at startup via
// New; construction fails fast when the URL or token is missing.
//
// The transport and headers are shared read-only across concurrent Post
// calls. The metadata cache is not locked: a client instance expects a
// single logical writer, per the hosting framework's target contract.
type Client struct {
	cfg       Config
	eventURL  string
	healthURL string
	client    *http.Client
	reporter  reporter
	metadata  metadataCache
}

// New builds a client for the given configuration. It returns a
// *ConfigurationError when the URL or token is empty or the URL does not
// parse as an absolute HTTP(S) URL. No network calls are made.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, &ConfigurationError{Setting: "url", Reason: "server URL is required"}
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &ConfigurationError{Setting: "token", Reason: "HEC token is required"}
	}

	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, &ConfigurationError{Setting: "url", Reason: err.Error()}
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, &ConfigurationError{Setting: "url", Reason: fmt.Sprintf("not an absolute http(s) URL: %q", cfg.URL)}
	}
	baseStr := strings.TrimRight(base.String(), "/")

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:       cfg,
		eventURL:  baseStr + eventPath,
		healthURL: baseStr + healthPath,
	}

	transport, err := buildTransport(cfg, &c.reporter)
	if err != nil {
		// Availability over strictness: a transport that cannot honor the
		// requested proxy settings degrades to the default transport
		// instead of failing construction.
		slog.Warn("falling back to default HTTP transport", "error", err)
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	c.client = &http.Client{Transport: transport, Timeout: cfg.Timeout}

	return c, nil
}

// buildTransport derives the client transport from the configuration.
func buildTransport(cfg Config, rep *reporter) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.MaxConnsPerServer > 0 {
		t.MaxConnsPerHost = cfg.MaxConnsPerServer
	}

	if !cfg.UseProxy {
		t.Proxy = nil
	} else if cfg.ProxyURL != "" {
		pu, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("proxy URL: %w", err)
		}
		if cfg.ProxyUser != "" {
			pu.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPassword)
		}
		t.Proxy = http.ProxyURL(pu)
	}
	// UseProxy with an empty ProxyURL keeps the cloned default, which
	// reads the environment proxy settings.

	if cfg.UseHTTP10 {
		t.ForceAttemptHTTP2 = false
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	if cfg.IgnoreSSLErrors {
		t.TLSClientConfig = insecureTLSConfig(rep)
	}

	return t, nil
}

// insecureTLSConfig accepts every server certificate but re-runs
// verification out of band so overridden policy failures are still
// visible through the error subscription.
func insecureTLSConfig(rep *reporter) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true, // #nosec G402 -- explicit operator opt-in via ignore_ssl_errors
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return nil
			}
			opts := x509.VerifyOptions{
				DNSName:       cs.ServerName,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			if _, err := cs.PeerCertificates[0].Verify(opts); err != nil {
				rep.publish(&DeliveryError{
					Err: fmt.Errorf("certificate validation overridden: %w", err),
				})
			}
			return nil
		},
	}
}

// OnError registers an observer for delivery and validation failures.
// Observers are invoked synchronously from the failing call, in
// registration order. With no observer registered, failures are
// deliberately dropped.
func (c *Client) OnError(fn func(*DeliveryError)) {
	c.reporter.subscribe(fn)
}

// Metadata returns the memoized destination tuple for the given source,
// creating it on first use. See the cache contract on metadataCache.get:
// the source alone is the key and first-seen index/sourcetype win.
func (c *Client) Metadata(index, source, sourcetype string) *Metadata {
	return c.metadata.get(index, source, sourcetype)
}

// defaultMetadata resolves the tuple for the client's configured
// destination settings.
func (c *Client) defaultMetadata() *Metadata {
	return c.metadata.get(c.cfg.Index, c.cfg.Source, c.cfg.SourceType)
}

// NewBatch returns an empty batch bound to this client.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// Post sends one payload of concatenated JSON event objects to the
// collector and returns the observed HTTP status code.
//
// Post never surfaces delivery failures as errors: a non-200 response or
// a transport failure is published to the error subscription and a
// best-effort status code (the response's, or 400 when no response was
// obtained) is returned so the calling pipeline can continue. The error
// return is reserved for context cancellation, which propagates as a
// control signal.
func (c *Client) Post(ctx context.Context, payload []byte) (int, error) {
	body := payload
	encoding := ""
	if c.cfg.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return c.transportFailure(payload, err)
		}
		if err := zw.Close(); err != nil {
			return c.transportFailure(payload, err)
		}
		body = buf.Bytes()
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventURL, bytes.NewReader(body))
	if err != nil {
		return c.transportFailure(payload, err)
	}

	req.Header.Set("Authorization", "Splunk "+c.cfg.Token)
	req.Header.Set("Content-Type", contentTypeJSON)
	if c.cfg.Channel != "" {
		req.Header.Set("X-Splunk-Request-Channel", c.cfg.Channel)
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if c.cfg.UseHTTP10 {
		// Keep-alive is implicit from HTTP/1.1 on; legacy mode states it.
		req.Header.Set("Connection", "keep-alive")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, cerr
		}
		return c.transportFailure(payload, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
		c.reporter.publish(&DeliveryError{
			StatusCode: resp.StatusCode,
			Reply:      string(reply),
			Response:   resp,
			Payload:    string(payload),
		})
		slog.Debug("HEC post rejected", "status", resp.StatusCode)
		return resp.StatusCode, nil
	}

	slog.Debug("HEC post succeeded", "bytes", len(body))
	return http.StatusOK, nil
}

// transportFailure records a failure that produced no HTTP response.
// The status is classified as 400 since no code was determined.
func (c *Client) transportFailure(payload []byte, err error) (int, error) {
	c.reporter.publish(&DeliveryError{
		StatusCode: http.StatusBadRequest,
		Payload:    string(payload),
		Err:        err,
	})
	return http.StatusBadRequest, nil
}

// HealthCheck verifies that the collector is reachable and the token is
// accepted. Unlike Post, failures are returned as errors: this is a
// synchronous startup/diagnostic probe, not part of the delivery path.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Splunk "+c.cfg.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusForbidden {
		return errors.New("invalid HEC token (403 Forbidden)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HEC health check failed with status %s", resp.Status)
	}
	return nil
}

// SendMode reports the mode the client was configured with.
func (c *Client) SendMode() SendMode { return c.cfg.SendMode }

// Close releases the transport's idle connections and clears all error
// observers. The client must not be used afterwards.
func (c *Client) Close() {
	c.reporter.clear()
	c.client.CloseIdleConnections()
}
