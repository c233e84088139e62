package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pkcs12"
)

// CertBundle holds the PEM-encoded certificate material used to reach the
// matching engine over mutual TLS.
type CertBundle struct {
	// CertPEM is the client's X.509 certificate.
	CertPEM string

	// PrivateKeyPEM is the client's private key. Keep this secret.
	PrivateKeyPEM string

	// CAPEM is the CA certificate used to verify the matching engine. Empty
	// means the system trust store.
	CAPEM string
}

// LoadCertBundle reads cert.pem, key.pem, and (optionally) ca.pem from dir.
//
//	bundle, err := client.LoadCertBundle(os.ExpandEnv("$HOME/.dmectl/certs"))
func LoadCertBundle(dir string) (*CertBundle, error) {
	read := func(name string) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return string(b), nil
	}

	cert, err := read("cert.pem")
	if err != nil {
		return nil, err
	}
	key, err := read("key.pem")
	if err != nil {
		return nil, err
	}
	ca, err := read("ca.pem")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return &CertBundle{CertPEM: cert, PrivateKeyPEM: key, CAPEM: ca}, nil
}

// NewFromCertDir creates an mTLS-authenticated client from the bundle in
// dir. Additional options are applied after the certificate material:
//
//	c, err := client.NewFromCertDir(certDir, client.WithDefaultRegion("tdg"))
func NewFromCertDir(dir string, opts ...Option) (*Client, error) {
	return New(append([]Option{WithCertDir(dir)}, opts...)...)
}

// WithCertDir loads cert.pem, key.pem and ca.pem from dir and configures
// mutual TLS.
func WithCertDir(dir string) Option {
	return func(c *Client) error {
		bundle, err := LoadCertBundle(dir)
		if err != nil {
			return fmt.Errorf("load cert bundle from %q: %w", dir, err)
		}
		return WithMTLS(bundle.CertPEM, bundle.PrivateKeyPEM, bundle.CAPEM)(c)
	}
}

// WithMTLS configures mutual TLS from PEM-encoded client certificate,
// private key and CA certificate. The material is used by the REST
// transport, the token resolver and the RPC transport.
func WithMTLS(certPEM, keyPEM, caPEM string) Option {
	return func(c *Client) error {
		clientCert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return fmt.Errorf("parse mTLS cert/key: %w", err)
		}
		return c.useTLS(clientCert, caPEM)
	}
}

// WithPKCS12 configures mutual TLS from a PKCS#12 archive holding a single
// certificate and its private key.
func WithPKCS12(p12 []byte, password, caPEM string) Option {
	return func(c *Client) error {
		key, cert, err := pkcs12.Decode(p12, password)
		if err != nil {
			return fmt.Errorf("decode PKCS#12: %w", err)
		}
		return c.useTLS(tls.Certificate{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}, caPEM)
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this against a local simulator.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.tlsConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		c.httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: c.tlsConfig},
		}
		return nil
	}
}

func (c *Client) useTLS(clientCert tls.Certificate, caPEM string) error {
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		MinVersion:   tls.VersionTLS12,
	}
	if caPEM != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return fmt.Errorf("failed to parse CA certificate PEM")
		}
		tlsCfg.RootCAs = pool
	}

	c.tlsConfig = tlsCfg
	c.httpClient = &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
	return nil
}
