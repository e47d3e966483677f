package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names inside an app's certificate directory.
const (
	CertFileName = "cert.pem"
	KeyFileName  = "key.pem"
)

// Store keeps one certificate directory per app under a root directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Dir returns the directory holding id's files.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// Save writes the pair for id and returns the file paths. When cert is nil
// or empty a self-signed pair is generated.
func (s *Store) Save(id string, cert *Certificate) (certFile, keyFile string, err error) {
	if cert == nil || len(cert.CertPEM) == 0 || len(cert.KeyPEM) == 0 {
		cert, err = GenerateSelfSigned(nil)
		if err != nil {
			return "", "", err
		}
	}
	if _, err := tls.X509KeyPair(cert.CertPEM, cert.KeyPEM); err != nil {
		return "", "", fmt.Errorf("invalid certificate pair: %w", err)
	}

	dir := s.Dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certFile = filepath.Join(dir, CertFileName)
	keyFile = filepath.Join(dir, KeyFileName)
	if err := os.WriteFile(certFile, cert.CertPEM, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := os.WriteFile(keyFile, cert.KeyPEM, 0o600); err != nil {
		_ = os.Remove(certFile)
		return "", "", fmt.Errorf("failed to write key file: %w", err)
	}
	return certFile, keyFile, nil
}

// Remove deletes id's certificate directory.
func (s *Store) Remove(id string) error {
	err := os.RemoveAll(s.Dir(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// LoadKeyPair reads a PEM certificate and key from disk.
func LoadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return pair, nil
}
