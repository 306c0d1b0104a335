package gelf

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// ErrEmptyBody is returned by SendRaw when there is nothing to send.
var ErrEmptyBody = errors.New("gelf: empty message body")

// Client delivers GELF entries to a Graylog HTTP input. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	conf       Config
	builder    Builder
	logger     *zap.Logger
	store      CertificateStore
	compressor *compressor
	rest       *resty.Client
	reporter   *reporter

	// cert is the most recently resolved client certificate, handed to
	// the TLS stack when the collector asks for one.
	cert atomic.Pointer[tls.Certificate]
}

var _ Sender = (*Client)(nil)

// New creates a client for conf. A zero port means DefaultPort.
func New(conf Config, options ...Option) (_ *Client, err error) {
	var o = defaultOptionConf()

	for _, option := range options {
		if err = option.apply(&o); err != nil {
			return nil, err
		}
	}

	if conf.Port == 0 {
		conf.Port = DefaultPort
	}
	if conf.Host == "" {
		return nil, ErrMissingHost
	}
	if conf.Port < 1 || conf.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, conf.Port)
	}

	var c = &Client{
		conf: conf,
		builder: Builder{
			Facility: conf.Facility,
			Host:     o.host,
			Now:      o.now,
		},
		logger: o.logger,
		store:  o.store,
		reporter: &reporter{
			logger:     o.logger,
			onSuccess:  o.onSuccess,
			onError:    o.onError,
			onTLSError: o.onTLSError,
		},
	}

	if conf.UseCompression {
		if c.compressor, err = newCompressor(conf.CompressionLevel); err != nil {
			return nil, fmt.Errorf("gelf: compression level %d: %w", conf.CompressionLevel, err)
		}
	}

	var rt = o.transport
	if rt == nil {
		rt = c.newTransport(o)
	}
	if o.tracing {
		rt = otelhttp.NewTransport(rt, o.otelOptions...)
	}

	c.rest = resty.New().
		SetTransport(rt).
		SetLogger(o.logger.Sugar())

	if d := conf.RequestTimeout(); d > 0 {
		c.rest.SetTimeout(d)
	}

	return c, nil
}

func (c *Client) newTransport(o optionConf) *http.Transport {
	v := &verifier{
		roots:    o.rootCAs,
		validate: o.validator,
		reject:   c.reporter.tlsError,
	}

	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			// the verifier runs the standard checks itself
			InsecureSkipVerify:   true,
			VerifyConnection:     v.verifyConnection,
			GetClientCertificate: c.clientCertificate,
		},
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
	}

	if c.conf.ExpectContinue {
		t.ExpectContinueTimeout = time.Second
	}

	return t
}

func (c *Client) clientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	if cert := c.cert.Load(); cert != nil {
		return cert, nil
	}
	// an empty certificate tells the server we have none
	return &tls.Certificate{}, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.conf
}

// Build returns the entry a send with the same arguments would deliver.
func (c *Client) Build(short, full string, data any) (*Entry, error) {
	return c.builder.Build(short, full, data)
}

// OnSendSuccess registers an observer for successful sends.
func (c *Client) OnSendSuccess(fn func(*SendResult)) {
	c.reporter.addSuccess(fn)
}

// OnSendError registers an observer for failed sends.
func (c *Client) OnSendError(fn func(*SendError)) {
	c.reporter.addError(fn)
}

// OnTLSValidationError registers an observer for rejected collector
// certificates. A rejection is also reported as a failed send.
func (c *Client) OnTLSValidationError(fn func(*TLSValidationError)) {
	c.reporter.addTLSError(fn)
}

// Send builds an entry from data and delivers it.
func (c *Client) Send(ctx context.Context, short, full string, data any, options ...SendOption) (*SendResult, error) {
	sc := newSendConf(options)
	content, body, err := c.encode(short, full, data, sc)
	if err != nil {
		return nil, err
	}
	return c.result(c.deliver(ctx, content, body, sc))
}

// SendFields builds an entry from fields and delivers it.
func (c *Client) SendFields(ctx context.Context, short, full string, fields Fields, options ...SendOption) (*SendResult, error) {
	return c.Send(ctx, short, full, fields, options...)
}

// SendAsync validates and serializes the entry on the calling goroutine and
// delivers it on another. The channel yields one Outcome and is closed.
func (c *Client) SendAsync(ctx context.Context, short, full string, data any, options ...SendOption) (<-chan Outcome, error) {
	sc := newSendConf(options)
	content, body, err := c.encode(short, full, data, sc)
	if err != nil {
		return nil, err
	}

	ch := make(chan Outcome, 1)

	go func() {
		defer close(ch)
		res, serr := c.deliver(ctx, content, body, sc)
		ch <- Outcome{Result: res, Err: serr}
	}()

	return ch, nil
}

// SendFieldsAsync is SendAsync for a structured key/value attachment.
func (c *Client) SendFieldsAsync(ctx context.Context, short, full string, fields Fields, options ...SendOption) (<-chan Outcome, error) {
	return c.SendAsync(ctx, short, full, fields, options...)
}

// SendRaw delivers body as captured from an earlier attempt. Bodies that
// are already gzip are sent unchanged; others are compressed when the
// configuration asks for it.
func (c *Client) SendRaw(ctx context.Context, body []byte, options ...SendOption) (*SendResult, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return c.result(c.deliver(ctx, "", body, newSendConf(options)))
}

func (c *Client) result(res *SendResult, serr *SendError) (*SendResult, error) {
	if serr != nil {
		return nil, serr
	}
	return res, nil
}

func (c *Client) encode(short, full string, data any, sc sendConf) (string, []byte, error) {
	e, err := c.builder.Build(short, full, data)
	if err != nil {
		return "", nil, err
	}
	e.Level = sc.level

	var buf bytes.Buffer
	if err = e.MarshalJSONBuf(&buf); err != nil {
		return "", nil, fmt.Errorf("gelf: serialize entry: %w", err)
	}

	return buf.String(), buf.Bytes(), nil
}

// deliver runs one attempt and reports exactly one outcome.
func (c *Client) deliver(ctx context.Context, content string, body []byte, sc sendConf) (*SendResult, *SendError) {
	var (
		url = c.conf.URL(sc.override)
		res = SendResult{
			CorrelationID:  sc.id,
			MessageContent: content,
			MessageBody:    body,
		}
		compressed = IsGzip(body)
	)

	if !compressed && c.compressor != nil {
		z, err := c.compressor.compress(body)
		if err != nil {
			return nil, c.fail(res, url, fmt.Errorf("gelf: compress: %w", err))
		}
		res.MessageBody = z
		compressed = true
	}

	cert, err := resolveCertificate(c.conf, c.store)
	if err != nil {
		return nil, c.fail(res, url, err)
	}
	if cert != nil {
		c.cert.Store(cert)
	}

	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", ContentType).
		SetBody(res.MessageBody)

	if compressed {
		req.SetHeader("Content-Encoding", "gzip")
	}
	if c.conf.ExpectContinue {
		req.SetHeader("Expect", "100-continue")
	}

	c.logger.Debug("sending gelf message",
		zap.Stringer("correlation_id", res.CorrelationID),
		zap.String("url", url),
		zap.Int("bytes", len(res.MessageBody)),
		zap.Bool("compressed", compressed),
	)

	resp, err := req.Post(url)
	if err != nil {
		return nil, c.fail(res, url, err)
	}
	if !resp.IsSuccess() {
		return nil, c.fail(res, url, &StatusError{
			StatusCode: resp.StatusCode(),
			Status:     resp.Status(),
			Body:       resp.String(),
		})
	}

	c.reporter.success(&res)

	return &res, nil
}

func (c *Client) fail(res SendResult, url string, err error) *SendError {
	serr := &SendError{SendResult: res, URL: url, Err: err}

	c.logger.Warn("gelf send failed",
		zap.Stringer("correlation_id", res.CorrelationID),
		zap.String("url", url),
		zap.Int("bytes", len(res.MessageBody)),
		zap.Error(err),
	)

	c.reporter.failure(serr)

	return serr
}
