package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ServerConfig builds the TLS configuration of an HTTPS listener. A non-empty
// clientCAFile requires clients to present a certificate signed by it.
func ServerConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	pair, err := LoadKeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if clientCAFile == "" {
		return cfg, nil
	}

	caPEM, err := os.ReadFile(clientCAFile) //nolint:gosec // G304: configured path
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("client CA file contains no certificates")
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

// ClientIdentity is the verified peer certificate of a request.
type ClientIdentity struct {
	CommonName   string
	Organization []string
	DNSNames     []string
}

// PeerIdentity returns the identity of the verified client certificate, or
// nil when the connection carries none.
func PeerIdentity(state *tls.ConnectionState) *ClientIdentity {
	if state == nil || len(state.VerifiedChains) == 0 || len(state.VerifiedChains[0]) == 0 {
		return nil
	}
	leaf := state.VerifiedChains[0][0]
	return &ClientIdentity{
		CommonName:   leaf.Subject.CommonName,
		Organization: append([]string(nil), leaf.Subject.Organization...),
		DNSNames:     append([]string(nil), leaf.DNSNames...),
	}
}
