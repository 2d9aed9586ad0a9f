package certgen_test

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/tolelom/delegatechain/crypto/certgen"
)

func TestGenerateAllProducesVerifiableNodeCert(t *testing.T) {
	dir := t.TempDir()
	if err := certgen.GenerateAll(dir, "node1", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	for _, name := range []string{"ca.crt", "ca.key", "node1.crt", "node1.key"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	caPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		t.Fatal("failed to parse CA certificate")
	}

	nodePEM, err := os.ReadFile(filepath.Join(dir, "node1.crt"))
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(nodePEM)
	if block == nil {
		t.Fatal("failed to decode node certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if _, err := cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}}); err != nil {
		t.Errorf("node certificate did not verify against the generated CA: %v", err)
	}
}

func TestGenerateAllProducesUsableTLSKeyPair(t *testing.T) {
	dir := t.TempDir()
	if err := certgen.GenerateAll(dir, "node2", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	if _, err := tls.LoadX509KeyPair(filepath.Join(dir, "node2.crt"), filepath.Join(dir, "node2.key")); err != nil {
		t.Errorf("LoadX509KeyPair: %v", err)
	}
}
