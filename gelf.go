// Package gelf ships log events to a Graylog collector over HTTP(S) in the
// GELF 1.1 wire format, optionally gzip compressed and authenticated with a
// TLS client certificate.
package gelf

import (
	"crypto/x509"
	"errors"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	// Version is the GELF specification version written in every entry.
	Version = "1.1"

	// DefaultPort is the Graylog GELF HTTP input port.
	DefaultPort = 12201

	// ContentType is sent with every request.
	ContentType = "application/json; charset=UTF-8"

	gelfPath = "/gelf"
)

type (
	// Option interface.
	Option interface {
		apply(conf *optionConf) error
	}

	// optionConf holds the collaborators of a Client that cannot come from
	// a configuration file.
	optionConf struct {
		logger      *zap.Logger
		host        string
		now         func() time.Time
		store       CertificateStore
		validator   ServerCertificateValidator
		rootCAs     *x509.CertPool
		transport   http.RoundTripper
		tracing     bool
		otelOptions []otelhttp.Option
		onSuccess   []func(*SendResult)
		onError     []func(*SendError)
		onTLSError  []func(*TLSValidationError)
	}

	// optionFunc wraps a func so it satisfies the Option interface.
	optionFunc func(conf *optionConf) error
)

func (f optionFunc) apply(conf *optionConf) error {
	return f(conf)
}

func defaultOptionConf() optionConf {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return optionConf{
		logger: zap.NewNop(),
		host:   host,
		now:    time.Now,
	}
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(conf *optionConf) error {
		if logger == nil {
			return errors.New("gelf: nil logger")
		}
		conf.logger = logger
		return nil
	})
}

// WithHostname overrides the originating host written to every entry.
// The default is os.Hostname.
func WithHostname(host string) Option {
	return optionFunc(func(conf *optionConf) error {
		if host == "" {
			return errors.New("gelf: empty hostname")
		}
		conf.host = host
		return nil
	})
}

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(conf *optionConf) error {
		if now == nil {
			return errors.New("gelf: nil clock")
		}
		conf.now = now
		return nil
	})
}

// WithCertificateStore sets the store searched when the configuration
// names a client certificate by subject.
func WithCertificateStore(store CertificateStore) Option {
	return optionFunc(func(conf *optionConf) error {
		conf.store = store
		return nil
	})
}

// WithServerCertificateValidator installs a hook deciding whether the
// collector's certificate is accepted.
func WithServerCertificateValidator(v ServerCertificateValidator) Option {
	return optionFunc(func(conf *optionConf) error {
		conf.validator = v
		return nil
	})
}

// WithRootCAs sets the pool used to verify the collector's certificate.
// The system pool is used when unset.
func WithRootCAs(pool *x509.CertPool) Option {
	return optionFunc(func(conf *optionConf) error {
		conf.rootCAs = pool
		return nil
	})
}

// WithTransport replaces the HTTP transport. TLS settings derived from the
// configuration only apply to the built-in transport.
func WithTransport(rt http.RoundTripper) Option {
	return optionFunc(func(conf *optionConf) error {
		if rt == nil {
			return errors.New("gelf: nil transport")
		}
		conf.transport = rt
		return nil
	})
}

// WithTracing wraps the transport with OpenTelemetry client instrumentation.
func WithTracing(options ...otelhttp.Option) Option {
	return optionFunc(func(conf *optionConf) error {
		conf.tracing = true
		conf.otelOptions = append(conf.otelOptions, options...)
		return nil
	})
}

// WithSuccessHandler registers an observer for successful sends.
func WithSuccessHandler(fn func(*SendResult)) Option {
	return optionFunc(func(conf *optionConf) error {
		if fn != nil {
			conf.onSuccess = append(conf.onSuccess, fn)
		}
		return nil
	})
}

// WithErrorHandler registers an observer for failed sends.
func WithErrorHandler(fn func(*SendError)) Option {
	return optionFunc(func(conf *optionConf) error {
		if fn != nil {
			conf.onError = append(conf.onError, fn)
		}
		return nil
	})
}

// WithTLSErrorHandler registers an observer for rejected server certificates.
func WithTLSErrorHandler(fn func(*TLSValidationError)) Option {
	return optionFunc(func(conf *optionConf) error {
		if fn != nil {
			conf.onTLSError = append(conf.onTLSError, fn)
		}
		return nil
	})
}
