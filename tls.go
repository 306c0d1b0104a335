package gelf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
)

// ErrServerCertificateRejected aborts a handshake whose server certificate
// was refused by the validator.
var ErrServerCertificateRejected = errors.New("gelf: server certificate rejected")

// TLSValidationError describes the collector certificate presented during a
// handshake. Err holds the standard verification failure, nil when the
// chain verified.
type TLSValidationError struct {
	ServerName  string
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	Err         error
}

func (e *TLSValidationError) Error() string {
	subject := "<none>"
	if e.Certificate != nil {
		subject = e.Certificate.Subject.String()
	}
	if e.Err == nil {
		return fmt.Sprintf("gelf: server certificate %s for %s rejected", subject, e.ServerName)
	}
	return fmt.Sprintf("gelf: server certificate %s for %s rejected: %v", subject, e.ServerName, e.Err)
}

func (e *TLSValidationError) Unwrap() error {
	return e.Err
}

// ServerCertificateValidator decides whether a collector certificate is
// accepted. It is called for every handshake, including ones that pass
// standard verification.
type ServerCertificateValidator func(*TLSValidationError) bool

// DefaultServerCertificateValidator accepts only certificates that pass
// standard verification.
func DefaultServerCertificateValidator(v *TLSValidationError) bool {
	return v.Err == nil
}

// verifier checks collector certificates on behalf of the client's TLS
// config, which skips the built-in verification so the validator sees
// every handshake.
type verifier struct {
	roots    *x509.CertPool
	validate ServerCertificateValidator
	reject   func(*TLSValidationError)
}

func (v *verifier) verifyConnection(cs tls.ConnectionState) error {
	info := &TLSValidationError{ServerName: cs.ServerName}

	if len(cs.PeerCertificates) == 0 {
		info.Err = errors.New("no certificate presented")
	} else {
		info.Certificate = cs.PeerCertificates[0]
		info.Chain = cs.PeerCertificates

		intermediates := x509.NewCertPool()
		for _, c := range cs.PeerCertificates[1:] {
			intermediates.AddCert(c)
		}

		chains, err := info.Certificate.Verify(x509.VerifyOptions{
			DNSName:       cs.ServerName,
			Roots:         v.roots,
			Intermediates: intermediates,
		})
		if err != nil {
			info.Err = err
		} else if len(chains) > 0 {
			info.Chain = chains[0]
		}
	}

	validate := v.validate
	if validate == nil {
		validate = DefaultServerCertificateValidator
	}
	if validate(info) {
		return nil
	}

	if v.reject != nil {
		v.reject(info)
	}
	return fmt.Errorf("%w: %v", ErrServerCertificateRejected, info)
}
