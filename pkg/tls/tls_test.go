package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned(&CertificateConfig{
		Organization: "test",
		CommonName:   "mock.local",
		Hosts:        []string{"mock.local", "10.0.0.1"},
		ValidFor:     time.Hour,
	})
	require.NoError(t, err)

	parsed, err := ParseCertificate(cert.CertPEM)
	require.NoError(t, err)
	assert.Equal(t, "mock.local", parsed.Subject.CommonName)
	assert.Equal(t, []string{"mock.local"}, parsed.DNSNames)
	require.Len(t, parsed.IPAddresses, 1)
	assert.Equal(t, "10.0.0.1", parsed.IPAddresses[0].String())
	assert.True(t, parsed.NotAfter.After(time.Now()))
}

func TestParseCertificate_Invalid(t *testing.T) {
	_, err := ParseCertificate([]byte("garbage"))
	assert.Error(t, err)

	cert, err := GenerateSelfSigned(nil)
	require.NoError(t, err)
	_, err = ParseCertificate(cert.KeyPEM)
	assert.Error(t, err)
}

func TestStore_SaveGenerated(t *testing.T) {
	s := NewStore(t.TempDir())

	certFile, keyFile, err := s.Save("gin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir("gin-1"), CertFileName), certFile)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = LoadKeyPair(certFile, keyFile)
	require.NoError(t, err)

	require.NoError(t, s.Remove("gin-1"))
	assert.NoDirExists(t, s.Dir("gin-1"))
	require.NoError(t, s.Remove("gin-1"))
}

func TestStore_SaveSupplied(t *testing.T) {
	s := NewStore(t.TempDir())
	cert, err := GenerateSelfSigned(nil)
	require.NoError(t, err)

	certFile, _, err := s.Save("app", cert)
	require.NoError(t, err)
	got, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, cert.CertPEM, got)

	other, err := GenerateSelfSigned(nil)
	require.NoError(t, err)
	_, _, err = s.Save("mismatch", &Certificate{CertPEM: cert.CertPEM, KeyPEM: other.KeyPEM})
	assert.Error(t, err)
}

func writePair(t *testing.T, dir, name string, cert *Certificate) (string, string) {
	t.Helper()
	certFile := filepath.Join(dir, name+".crt")
	keyFile := filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(certFile, cert.CertPEM, 0o600))
	require.NoError(t, os.WriteFile(keyFile, cert.KeyPEM, 0o600))
	return certFile, keyFile
}

func TestServerConfig_ClientCertificates(t *testing.T) {
	dir := t.TempDir()
	server, err := GenerateSelfSigned(nil)
	require.NoError(t, err)
	clientCfg := DefaultCertificateConfig()
	clientCfg.CommonName = "ci-runner"
	clientCfg.ClientAuth = true
	client, err := GenerateSelfSigned(clientCfg)
	require.NoError(t, err)

	serverCert, serverKey := writePair(t, dir, "server", server)
	clientCert, clientKey := writePair(t, dir, "client", client)

	cfg, err := ServerConfig(serverCert, serverKey, clientCert)
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)

	var seen *ClientIdentity
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PeerIdentity(r.TLS)
	}))
	ts.TLS = cfg
	ts.StartTLS()
	defer ts.Close()

	roots := x509.NewCertPool()
	require.True(t, roots.AppendCertsFromPEM(server.CertPEM))
	pair, err := LoadKeyPair(clientCert, clientKey)
	require.NoError(t, err)

	newClient := func(certs ...tls.Certificate) *http.Client {
		return &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
			RootCAs:      roots,
			Certificates: certs,
			MinVersion:   tls.VersionTLS12,
		}}}
	}

	resp, err := newClient(pair).Get(ts.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.NotNil(t, seen)
	assert.Equal(t, "ci-runner", seen.CommonName)

	_, err = newClient().Get(ts.URL)
	assert.Error(t, err)
}

func TestServerConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	server, err := GenerateSelfSigned(nil)
	require.NoError(t, err)
	certFile, keyFile := writePair(t, dir, "server", server)

	cfg, err := ServerConfig(certFile, keyFile, "")
	require.NoError(t, err)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)
	assert.Nil(t, PeerIdentity(nil))

	_, err = ServerConfig(certFile, keyFile, filepath.Join(dir, "missing.pem"))
	assert.ErrorContains(t, err, "client CA")

	_, err = ServerConfig(certFile, keyFile, keyFile)
	assert.ErrorContains(t, err, "no certificates")

	_, err = ServerConfig(filepath.Join(dir, "nope.crt"), keyFile, "")
	assert.ErrorContains(t, err, "key pair")
}
