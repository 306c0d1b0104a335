package gelf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// collector is a fake Graylog HTTP input recording every request it gets.
type collector struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []recorded
}

type recorded struct {
	Path     string
	Header   http.Header
	Body     []byte
	PeerCert *x509.Certificate
}

func newCollector() *collector {
	c := &collector{status: http.StatusAccepted}
	c.Server = httptest.NewServer(http.HandlerFunc(c.handle))
	return c
}

func newTLSCollector(clientAuth bool) *collector {
	c := &collector{status: http.StatusAccepted}
	c.Server = httptest.NewUnstartedServer(http.HandlerFunc(c.handle))
	if clientAuth {
		c.Server.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	}
	c.Server.StartTLS()
	return c
}

func (c *collector) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	rec := recorded{Path: r.URL.Path, Header: r.Header.Clone(), Body: body}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		rec.PeerCert = r.TLS.PeerCertificates[0]
	}

	c.mu.Lock()
	c.requests = append(c.requests, rec)
	status := c.status
	c.mu.Unlock()

	w.WriteHeader(status)
}

func (c *collector) setStatus(status int) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

func (c *collector) received() []recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recorded(nil), c.requests...)
}

// configFor points a configuration at the collector.
func (c *collector) configFor(facility string) Config {
	u, _ := url.Parse(c.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	conf := DefaultConfig()
	conf.Facility = facility
	conf.Host = host
	conf.Port = port
	conf.UseSSL = u.Scheme == "https"
	return conf
}

func (c *collector) rootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.Certificate())
	return pool
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type testCert struct {
	CommonName string
	NotBefore  time.Time
	NotAfter   time.Time
	ExtUsage   []x509.ExtKeyUsage
}

// newTestCert returns a self-signed certificate and its key.
func newTestCert(t *testing.T, tc testCert) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if tc.NotBefore.IsZero() {
		tc.NotBefore = time.Now().Add(-time.Hour)
	}
	if tc.NotAfter.IsZero() {
		tc.NotAfter = time.Now().Add(time.Hour)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: tc.CommonName},
		NotBefore:    tc.NotBefore,
		NotAfter:     tc.NotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  tc.ExtUsage,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert, key
}

// writeCertBundle writes a self-signed certificate and its key as one PEM
// file under dir.
func writeCertBundle(t *testing.T, dir, file string, tc testCert) string {
	t.Helper()

	cert, key := newTestCert(t, tc)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	var bundle bytes.Buffer
	_ = pem.Encode(&bundle, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	_ = pem.Encode(&bundle, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, bundle.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
