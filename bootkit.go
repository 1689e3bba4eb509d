// Package bootkit decodes the signing artifacts found in verified-boot
// images: X.509 certificates, PKCS7 SignedData signatures and RSA public
// keys, in DER or PEM form, plus the certificate containers (PKCS#12, JKS,
// certs-only PKCS#7) they are commonly shipped in.
package bootkit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// Kind identifies what an Object holds.
type Kind int

const (
	KindCertificate Kind = iota + 1
	KindMessage
	KindPublicKey
)

func (k Kind) String() string {
	switch k {
	case KindCertificate:
		return "certificate"
	case KindMessage:
		return "pkcs7"
	case KindPublicKey:
		return "rsa-public-key"
	default:
		return "unknown"
	}
}

// Object is one decoded artifact. Exactly one of Certificate, Message and
// PublicKey is set, according to Kind. Raw is a copy of the DER the object
// came from, so an Object never aliases the caller's buffer.
type Object struct {
	Kind        Kind
	Raw         []byte
	Certificate *x509cert.Certificate
	Message     *pkcs7.Message
	PublicKey   *rsakey.PublicKey
}

// PEM block types understood by Parse.
const (
	pemCertificate  = "CERTIFICATE"
	pemPKCS7        = "PKCS7"
	pemCMS          = "CMS"
	pemPublicKey    = "PUBLIC KEY"
	pemRSAPublicKey = "RSA PUBLIC KEY"
)

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}

// Parse decodes a single artifact. PEM input yields its first supported
// block; DER input is tried as a certificate, then a PKCS7 message, then an
// RSA public key.
func Parse(data []byte) (*Object, error) {
	objs, err := ParseAll(data)
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// ParseAll decodes every supported block of a PEM bundle, or the single DER
// object in data.
func ParseAll(data []byte) ([]*Object, error) {
	if !IsPEM(data) {
		obj, err := ParseDER(data)
		if err != nil {
			return nil, err
		}
		return []*Object{obj}, nil
	}

	var objs []*Object
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		obj, err := ParseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("parsing %s block: %w", block.Type, err)
		}
		if obj != nil {
			objs = append(objs, obj)
		}
	}
	if len(objs) == 0 {
		return nil, errors.New("no supported PEM blocks found")
	}
	return objs, nil
}

// ParseBlock decodes one PEM block. It returns nil, nil for block types it
// does not handle.
func ParseBlock(block *pem.Block) (*Object, error) {
	obj := &Object{Raw: bytes.Clone(block.Bytes)}
	var err error
	switch block.Type {
	case pemCertificate:
		obj.Kind = KindCertificate
		obj.Certificate, err = x509cert.ParseCertificate(block.Bytes)
	case pemPKCS7, pemCMS:
		obj.Kind = KindMessage
		obj.Message, err = pkcs7.ParseMessage(block.Bytes)
	case pemPublicKey, pemRSAPublicKey:
		obj.Kind = KindPublicKey
		obj.PublicKey, err = rsakey.ParsePublicKey(block.Bytes)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// ParseDER sniffs a DER buffer by trying each decoder in turn.
func ParseDER(data []byte) (*Object, error) {
	cert, certErr := x509cert.ParseCertificate(data)
	if certErr == nil {
		return &Object{Kind: KindCertificate, Raw: bytes.Clone(data), Certificate: cert}, nil
	}
	msg, msgErr := pkcs7.ParseMessage(data)
	if msgErr == nil {
		return &Object{Kind: KindMessage, Raw: bytes.Clone(data), Message: msg}, nil
	}
	key, keyErr := rsakey.ParsePublicKey(data)
	if keyErr == nil {
		return &Object{Kind: KindPublicKey, Raw: bytes.Clone(data), PublicKey: key}, nil
	}
	return nil, fmt.Errorf("not a certificate (%w) or PKCS7 message (%w) or RSA public key (%w)", certErr, msgErr, keyErr)
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = hex.EncodeToString([]byte{v})
	}
	return strings.Join(parts, ":")
}

// Fingerprint returns the SHA-256 of raw DER as uppercase colon-separated
// hex, matching the format used by OpenSSL.
func Fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return strings.ToUpper(ColonHex(sum[:]))
}

// SSHFingerprint returns the OpenSSH SHA256 fingerprint of an RSA key, the
// form shown by ssh-keygen -l.
func SSHFingerprint(key *rsakey.PublicKey) (string, error) {
	pub, err := key.CryptoKey()
	if err != nil {
		return "", err
	}
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("converting to SSH key: %w", err)
	}
	return ssh.FingerprintSHA256(sshKey), nil
}

// DefaultPasswords returns the passwords tried by default when opening
// PKCS#12 and JKS containers. Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", "password", "changeit", "keypassword"}
}

// DeduplicatePasswords merges additional passwords with the defaults and removes
// duplicates while preserving order. Defaults come first, followed by any extra
// passwords not already in the list.
func DeduplicatePasswords(extra []string) []string {
	all := append(DefaultPasswords(), extra...)
	seen := make(map[string]bool, len(all))
	result := make([]string, 0, len(all))
	for _, p := range all {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
