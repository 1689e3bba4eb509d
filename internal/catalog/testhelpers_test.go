package catalog

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	smpkcs7 "github.com/smallstep/pkcs7"

	"github.com/sensiblebit/bootkit/x509cert"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// testCert is a generated certificate with its key and both decodings.
type testCert struct {
	key    *rsa.PrivateKey
	std    *x509.Certificate
	cert   *x509cert.Certificate
	pemBuf []byte
}

type certOpts struct {
	cn        string
	isCA      bool
	notBefore time.Time
	notAfter  time.Time
}

// newCert issues a certificate from parent, or a self-signed one when parent is nil.
func newCert(t *testing.T, parent *testCert, opts certOpts) *testCert {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if opts.notBefore.IsZero() {
		opts.notBefore = time.Now().Add(-time.Hour)
	}
	if opts.notAfter.IsZero() {
		opts.notAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.cn},
		NotBefore:             opts.notBefore,
		NotAfter:              opts.notAfter,
		BasicConstraintsValid: true,
		IsCA:                  opts.isCA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	issuer, signKey := tmpl, key
	if parent != nil {
		issuer, signKey = parent.std, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &key.PublicKey, signKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	std, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	cert, err := x509cert.ParseCertificate(der)
	if err != nil {
		t.Fatalf("x509cert.ParseCertificate: %v", err)
	}
	return &testCert{
		key:    key,
		std:    std,
		cert:   cert,
		pemBuf: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// signImage produces an attached PKCS7 signature over content by signer.
func signImage(t *testing.T, signer *testCert, content []byte, detached bool) []byte {
	t.Helper()
	sd, err := smpkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	sd.SetDigestAlgorithm(smpkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSigner(signer.std, signer.key, smpkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("AddSigner: %v", err)
	}
	if detached {
		sd.Detach()
	}
	raw, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return raw
}

// fixedAnchors treats certificates issued by any of its subjects as anchored.
type fixedAnchors map[string]bool

func (a fixedAnchors) Anchored(cert *x509cert.Certificate) bool {
	return a[string(cert.RawIssuer)]
}
