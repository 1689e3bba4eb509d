package internal

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	smpkcs7 "github.com/smallstep/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/sensiblebit/bootkit/pkcs7"
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

// testCert is a generated RSA certificate with its key and both decodings.
type testCert struct {
	key     *rsa.PrivateKey
	std     *x509.Certificate
	cert    *x509cert.Certificate
	certDER []byte
	pemBuf  []byte
}

// newTestCert issues a 2048-bit RSA certificate from parent, or a
// self-signed one when parent is nil.
func newTestCert(t *testing.T, parent *testCert, cn string, isCA bool) *testCert {
	t.Helper()
	return newTestCertWith(t, parent, cn, isCA, 2048, time.Now().Add(-time.Hour), time.Now().Add(365*24*time.Hour))
}

func newTestCertWith(t *testing.T, parent *testCert, cn string, isCA bool, bits int, notBefore, notAfter time.Time) *testCert {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"Example"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}
	issuer, signKey := tmpl, key
	if parent != nil {
		issuer, signKey = parent.std, parent.key
	}
	raw, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &key.PublicKey, signKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	std, err := x509.ParseCertificate(raw)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	cert, err := x509cert.ParseCertificate(raw)
	if err != nil {
		t.Fatalf("x509cert.ParseCertificate: %v", err)
	}
	return &testCert{
		key:     key,
		std:     std,
		cert:    cert,
		certDER: raw,
		pemBuf:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: raw}),
	}
}

// signOpts controls signMessage.
type signOpts struct {
	detached  bool
	digest    asn1.ObjectIdentifier
	noSigner  bool // strip the certificates from the finished message
	noAttribs bool // sign the content digest directly
}

// signMessage produces a DER SignedData over content by signer.
func signMessage(t *testing.T, signer *testCert, content []byte, opts signOpts) []byte {
	t.Helper()
	sd, err := smpkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("NewSignedData: %v", err)
	}
	sd.SetDigestAlgorithm(smpkcs7.OIDDigestAlgorithmSHA256)
	if opts.digest != nil {
		sd.SetDigestAlgorithm(opts.digest)
	}
	if opts.noAttribs {
		err = sd.SignWithoutAttr(signer.std, signer.key, smpkcs7.SignerInfoConfig{})
	} else {
		err = sd.AddSigner(signer.std, signer.key, smpkcs7.SignerInfoConfig{})
	}
	if err != nil {
		t.Fatalf("adding signer: %v", err)
	}
	if opts.detached {
		sd.Detach()
	}
	raw, err := sd.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if opts.noSigner {
		raw = stripCertificates(t, raw)
	}
	return raw
}

// stripCertificates re-encodes a DER ContentInfo without the SignedData
// [0] IMPLICIT certificates element.
func stripCertificates(t *testing.T, raw []byte) []byte {
	t.Helper()
	certsTag := cbasn1.Tag(0).Constructed().ContextSpecific()
	input := cryptobyte.String(raw)
	var ci, contentType, explicit, sd cryptobyte.String
	if !input.ReadASN1(&ci, cbasn1.SEQUENCE) ||
		!ci.ReadASN1Element(&contentType, cbasn1.OBJECT_IDENTIFIER) ||
		!ci.ReadASN1(&explicit, certsTag) ||
		!explicit.ReadASN1(&sd, cbasn1.SEQUENCE) {
		t.Fatal("stripCertificates: not a DER SignedData ContentInfo")
	}

	var kept [][]byte
	stripped := false
	for !sd.Empty() {
		var el cryptobyte.String
		var tag cbasn1.Tag
		if !sd.ReadAnyASN1Element(&el, &tag) {
			t.Fatal("stripCertificates: malformed SignedData element")
		}
		if tag == certsTag {
			stripped = true
			continue
		}
		kept = append(kept, el)
	}
	if !stripped {
		t.Fatal("stripCertificates: message has no certificates")
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(contentType)
		b.AddASN1(certsTag, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				for _, el := range kept {
					b.AddBytes(el)
				}
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		t.Fatalf("stripCertificates: %v", err)
	}
	return out
}

func parseMessage(t *testing.T, raw []byte) *pkcs7.Message {
	t.Helper()
	msg, err := pkcs7.ParseMessage(raw)
	if err != nil {
		t.Fatalf("pkcs7.ParseMessage: %v", err)
	}
	return msg
}

// sortedNames returns the keys of files in a stable order.
func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func createTestZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedNames(files) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func createTestTar(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range sortedNames(files) {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(files[name])), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write(files[name]); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func createTestTarGz(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(createTestTar(t, files)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}
