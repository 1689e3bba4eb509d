package pkcs7

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidData           = []int{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData     = []int{1, 2, 840, 113549, 1, 7, 2}
	oidIndirectData   = []int{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSHA256         = []int{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidRSA            = []int{1, 2, 840, 113549, 1, 1, 1}
	oidContentType    = []int{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest  = []int{1, 2, 840, 113549, 1, 9, 4}
	oidSigningTime    = []int{1, 2, 840, 113549, 1, 9, 5}
	oidOpusInfo       = []int{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
	oidUnknownAttr    = []int{1, 3, 6, 1, 4, 1, 99999, 7}
	testDigest        = make([]byte, 32)
	testSignatureBody = []byte{0xde, 0xad, 0xbe, 0xef}
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

type builderFunc = func(b *cryptobyte.Builder)

// signerSpec describes a hand-built SignerInfo. Nil fields take defaults;
// omitDigest drops the digestAlgorithm.
type signerSpec struct {
	version    int64
	sid        builderFunc
	omitDigest bool
	attrs      []builderFunc
	noAttrs    bool
}

func issuerAndSerial(b *cryptobyte.Builder) {
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier([]int{2, 5, 4, 3})
					b.AddASN1(cbasn1.PrintableString, func(b *cryptobyte.Builder) { b.AddBytes([]byte("Signer")) })
				})
			})
		})
		b.AddASN1Int64(7)
	})
}

func subjectKeyID(b *cryptobyte.Builder) {
	b.AddASN1(cbasn1.Tag(0).ContextSpecific(), func(b *cryptobyte.Builder) { b.AddBytes([]byte{1, 2, 3, 4}) })
}

func algorithm(id []int) builderFunc {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(id)
			b.AddASN1NULL()
		})
	}
}

func attr(id []int, values ...builderFunc) builderFunc {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(id)
			b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
				for _, v := range values {
					v(b)
				}
			})
		})
	}
}

func oidValue(id []int) builderFunc {
	return func(b *cryptobyte.Builder) { b.AddASN1ObjectIdentifier(id) }
}

func octets(v []byte) builderFunc {
	return func(b *cryptobyte.Builder) { b.AddASN1OctetString(v) }
}

func utcTime(s string) builderFunc {
	return func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.UTCTime, func(b *cryptobyte.Builder) { b.AddBytes([]byte(s)) })
	}
}

// defaultAttrs are the mandatory contentType and messageDigest for id-data.
func defaultAttrs() []builderFunc {
	return []builderFunc{
		attr(oidContentType, oidValue(oidData)),
		attr(oidMessageDigest, octets(testDigest)),
	}
}

// buildMessage assembles a ContentInfo around a SignedData. A nil content
// produces a detached message.
func buildMessage(t *testing.T, outerType []int, version int64, dataType []int, content []byte, signers ...signerSpec) []byte {
	t.Helper()
	var wrapped builderFunc
	if content != nil {
		wrapped = octets(content)
	}
	return buildMessageWrapping(t, outerType, version, dataType, wrapped, signers...)
}

// buildMessageWrapping is buildMessage with the bytes inside the [0]
// content wrapper written by wrapped. A nil wrapped omits the wrapper.
func buildMessageWrapping(t *testing.T, outerType []int, version int64, dataType []int, wrapped builderFunc, signers ...signerSpec) []byte {
	t.Helper()
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(outerType)
		b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1Int64(version)
				b.AddASN1(cbasn1.SET, algorithm(oidSHA256))
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(dataType)
					if wrapped != nil {
						b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), wrapped)
					}
				})
				b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
					for _, s := range signers {
						addSigner(b, s)
					}
				})
			})
		})
	})
	out, err := b.Bytes()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return out
}

func addSigner(b *cryptobyte.Builder, s signerSpec) {
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		version := s.version
		if version == 0 {
			version = 1
		}
		b.AddASN1Int64(version)
		sid := s.sid
		if sid == nil {
			sid = issuerAndSerial
		}
		sid(b)
		if !s.omitDigest {
			algorithm(oidSHA256)(b)
		}
		if !s.noAttrs {
			attrs := s.attrs
			if attrs == nil {
				attrs = defaultAttrs()
			}
			b.AddASN1(cbasn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				for _, a := range attrs {
					a(b)
				}
			})
		}
		algorithm(oidRSA)(b)
		b.AddASN1OctetString(testSignatureBody)
	})
}

// newSigner returns an RSA key and a self-signed code signing certificate.
func newSigner(t *testing.T) (crypto.Signer, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "Image Signer", Organization: []string{"Example Boards"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return key, cert
}
