package gelf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrCertificateLoad wraps failures reading a certificate file.
	ErrCertificateLoad = errors.New("gelf: cannot load client certificate")

	// ErrCertificateNotFound is returned when no certificate in the store
	// matches the configured subject.
	ErrCertificateNotFound = errors.New("gelf: client certificate not found in store")

	// ErrCertificateInvalid is returned when the store only holds invalid
	// certificates for the configured subject.
	ErrCertificateInvalid = errors.New("gelf: client certificate found in store but invalid")

	// ErrNoCertificateStore is returned when a certificate name is
	// configured without a store to search.
	ErrNoCertificateStore = errors.New("gelf: no certificate store configured")
)

// CertificateStore looks up client certificates by subject. With validOnly
// set, expired or not-yet-valid certificates and those not usable for
// client authentication are skipped.
type CertificateStore interface {
	Find(subject string, validOnly bool) ([]tls.Certificate, error)
}

// LoadCertificateFile reads a client certificate with its private key.
// Files ending in .p12 or .pfx are decoded as PKCS#12 using password; any
// other file is read as a PEM bundle holding the certificate chain and key.
func LoadCertificateFile(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrCertificateLoad, err)
	}

	var cert tls.Certificate
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		cert, err = parsePKCS12(data, password)
	default:
		cert, err = parsePEMBundle(data)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %s: %v", ErrCertificateLoad, path, err)
	}
	return cert, nil
}

// parsePKCS12 decodes a PFX holding one key, its certificate and an
// optional chain. Both legacy RC2/3DES and AES encrypted files are read.
func parsePKCS12(data []byte, password string) (tls.Certificate, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

func parsePEMBundle(data []byte) (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return tls.Certificate{}, err
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return tls.Certificate{}, err
		}
	}
	return cert, nil
}

// resolveCertificate picks the client certificate the configuration asks
// for. A nil certificate and nil error mean none is configured.
func resolveCertificate(conf Config, store CertificateStore) (*tls.Certificate, error) {
	if err := conf.checkCertificateSources(); err != nil {
		return nil, err
	}

	if path := strings.TrimSpace(conf.ClientCertificatePath); path != "" {
		cert, err := LoadCertificateFile(path, conf.ClientCertificatePassword)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}

	name := strings.TrimSpace(conf.ClientCertificateName)
	if name == "" {
		return nil, nil
	}
	if store == nil {
		return nil, ErrNoCertificateStore
	}

	certs, err := store.Find(name, true)
	if err != nil {
		return nil, err
	}
	if len(certs) > 0 {
		return &certs[0], nil
	}

	certs, err = store.Find(name, false)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("%w: subject %q", ErrCertificateNotFound, name)
	}
	return nil, fmt.Errorf("%w: subject %q", ErrCertificateInvalid, name)
}

// DirStore is a CertificateStore backed by a directory of PEM bundles,
// each holding a certificate chain and its private key. Files that do not
// parse are ignored.
type DirStore struct {
	Dir string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Find implements CertificateStore. subject matches the leaf's common name
// or one of its DNS names, case-insensitively.
func (s DirStore) Find(subject string, validOnly bool) ([]tls.Certificate, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("gelf: open certificate store: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	var found []tls.Certificate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		cert, err := parsePEMBundle(data)
		if err != nil {
			continue
		}

		if !subjectMatches(cert.Leaf, subject) {
			continue
		}
		if validOnly && !usableForClientAuth(cert.Leaf, now()) {
			continue
		}
		found = append(found, cert)
	}

	return found, nil
}

func subjectMatches(leaf *x509.Certificate, subject string) bool {
	if strings.EqualFold(leaf.Subject.CommonName, subject) {
		return true
	}
	for _, name := range leaf.DNSNames {
		if strings.EqualFold(name, subject) {
			return true
		}
	}
	return false
}

func usableForClientAuth(leaf *x509.Certificate, now time.Time) bool {
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return false
	}
	if len(leaf.ExtKeyUsage) == 0 {
		return true
	}
	for _, u := range leaf.ExtKeyUsage {
		if u == x509.ExtKeyUsageClientAuth || u == x509.ExtKeyUsageAny {
			return true
		}
	}
	return false
}
