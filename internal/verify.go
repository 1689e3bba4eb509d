package internal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/sensiblebit/bootkit/internal/catalog"
	"github.com/sensiblebit/bootkit/oid"
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// VerifyInput holds the decoded message and verification options.
type VerifyInput struct {
	Message *pkcs7.Message
	// Content is the signed payload for a detached message. It is ignored
	// when the message encapsulates its content.
	Content []byte
	// Certificates are extra signer candidates for messages that do not
	// embed their signer certificate.
	Certificates []*x509cert.Certificate
	Policy       *Policy   // nil means DefaultPolicy
	Now          time.Time // zero means time.Now()
}

// SignerResult holds the outcome of verifying one SignerInfo.
type SignerResult struct {
	Index          int      `json:"index" yaml:"index"`
	Signer         string   `json:"signer" yaml:"signer"`
	Digest         string   `json:"digest" yaml:"digest"`
	Attributes     string   `json:"attributes" yaml:"attributes"`
	KeyBits        int      `json:"key_bits,omitempty" yaml:"key_bits,omitempty"`
	Embedded       bool     `json:"embedded" yaml:"embedded"`
	DigestMatch    *bool    `json:"digest_match,omitempty" yaml:"digest_match,omitempty"`
	SignatureValid *bool    `json:"signature_valid,omitempty" yaml:"signature_valid,omitempty"`
	Errors         []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// VerifyResult holds the results of message verification.
type VerifyResult struct {
	DataType   string         `json:"data_type" yaml:"data_type"`
	Detached   bool           `json:"detached" yaml:"detached"`
	ContentLen int            `json:"content_len" yaml:"content_len"`
	Signers    []SignerResult `json:"signers" yaml:"signers"`
}

// OK reports whether every signer verified without error.
func (r *VerifyResult) OK() bool {
	for _, s := range r.Signers {
		if len(s.Errors) > 0 {
			return false
		}
	}
	return len(r.Signers) > 0
}

// ErrNoContent is returned when a detached message is verified without its
// content.
var ErrNoContent = errors.New("detached signature requires the signed content")

// VerifyMessage checks every signer of a message: the messageDigest
// attribute against the content, the RSA PKCS#1 v1.5 signature over the
// signed attributes, and the policy. Verification failures are reported in
// the result; the error return is reserved for unusable input.
func VerifyMessage(ctx context.Context, input *VerifyInput) (*VerifyResult, error) {
	msg := input.Message
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	policy := input.Policy
	if policy == nil {
		policy = DefaultPolicy()
	} else if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	content := msg.Data
	if msg.Detached() {
		if input.Content == nil {
			return nil, ErrNoContent
		}
		content = input.Content
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	result := &VerifyResult{
		DataType:   dataTypeName(msg),
		Detached:   msg.Detached(),
		ContentLen: len(content),
	}
	for _, si := range msg.SignerInfos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Signers = append(result.Signers, verifySigner(si, content, input.Certificates, policy, now))
	}
	return result, nil
}

func verifySigner(si *pkcs7.SignerInfo, content []byte, extra []*x509cert.Certificate, policy *Policy, now time.Time) SignerResult {
	r := SignerResult{
		Index:      si.Index,
		Signer:     catalog.SignerLabel(si),
		Digest:     si.DigestAlgorithm.String(),
		Attributes: si.AASet.String(),
		Embedded:   si.Signer != nil,
	}
	fail := func(format string, args ...any) {
		r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	}

	if !policy.DigestAllowed(si.DigestAlgorithm) {
		fail("digest algorithm %s not allowed by policy", si.DigestAlgorithm)
	}
	if missing := policy.MissingAttributes(si.AASet); missing != 0 {
		fail("missing required signed attributes: %s", missing)
	}
	if scheme, ok := oid.Signature(si.SignatureAlgorithm); ok && scheme.Hash != oid.Unknown && scheme.Hash != si.DigestAlgorithm {
		fail("signature algorithm %s does not match digest %s", si.SignatureAlgorithm, si.DigestAlgorithm)
	}

	cert := si.Signer
	if cert == nil {
		if policy.RequireEmbeddedSigner {
			fail("signer certificate is not embedded in the message")
		}
		cert = findSigner(si, extra)
	}
	if cert == nil {
		fail("no certificate found for signer %s", r.Signer)
		return r
	}
	if si.Signer == nil {
		r.Signer = catalog.FormatCN(cert)
	}
	if policy.CheckValidity && (now.Before(cert.NotBefore()) || now.After(cert.NotAfter())) {
		fail("signer certificate not valid at %s (valid %s to %s)",
			now.UTC().Format(time.RFC3339), cert.NotBefore().Format(time.RFC3339), cert.NotAfter().Format(time.RFC3339))
	}

	h := oid.Hash(si.DigestAlgorithm)
	if h == 0 || !h.Available() {
		fail("digest algorithm %s is not supported", si.DigestAlgorithm)
		return r
	}
	contentSum := sum(h, content)

	signed := contentSum
	if si.AuthAttrs != nil {
		match := si.AASet.Has(pkcs7.AttrMessageDigest) && bytes.Equal(si.MessageDigest, contentSum)
		r.DigestMatch = &match
		if !match {
			fail("messageDigest does not match the %s of the content", si.DigestAlgorithm)
		}
		signed = sum(h, si.AuthAttrs)
	}

	pub, bits, err := signerKey(cert)
	if err != nil {
		fail("signer key: %v", err)
		return r
	}
	r.KeyBits = bits
	if bits < policy.MinRSABits {
		fail("signer key has %d bits, policy requires %d", bits, policy.MinRSABits)
	}
	valid := rsa.VerifyPKCS1v15(pub, h, signed, si.Signature) == nil
	r.SignatureValid = &valid
	if !valid {
		fail("signature does not verify")
	}
	return r
}

// findSigner returns the candidate that si identifies, or nil.
func findSigner(si *pkcs7.SignerInfo, candidates []*x509cert.Certificate) *x509cert.Certificate {
	for _, c := range candidates {
		if si.SubjectKeyID != nil {
			if c.MatchesSubjectKeyID(si.SubjectKeyID) {
				return c
			}
			continue
		}
		if c.MatchesIssuerSerial(si.RawIssuer, si.SerialNumber) {
			return c
		}
	}
	return nil
}

func signerKey(cert *x509cert.Certificate) (*rsa.PublicKey, int, error) {
	if cert.PublicKey.Algorithm != oid.RSAEncryption {
		return nil, 0, fmt.Errorf("unsupported key algorithm %s", cert.PublicKey.Name())
	}
	key, err := rsakey.ParseRSAPublicKey(cert.PublicKey.Key)
	if err != nil {
		return nil, 0, err
	}
	pub, err := key.CryptoKey()
	if err != nil {
		return nil, 0, err
	}
	return pub, key.Bits(), nil
}

func sum(h crypto.Hash, data []byte) []byte {
	w := h.New()
	w.Write(data)
	return w.Sum(nil)
}

func dataTypeName(msg *pkcs7.Message) string {
	if msg.DataType == oid.Unknown {
		return msg.DataTypeOID
	}
	return msg.DataType.String()
}

// ColorEnabled reports whether status output written to w should be
// colored: w must be a terminal and NO_COLOR must be unset.
func ColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func status(ok bool, color bool, good, bad string) string {
	word, code := good, ansiGreen
	if !ok {
		word, code = bad, ansiRed
	}
	if !color {
		return word
	}
	return code + word + ansiReset
}

// FormatVerifyResult formats a verify result as human-readable text.
func FormatVerifyResult(r *VerifyResult, color bool) string {
	var sb strings.Builder
	content := "encapsulated"
	if r.Detached {
		content = "detached"
	}
	fmt.Fprintf(&sb, "Message:  %s, %s content (%d bytes)\n", r.DataType, content, r.ContentLen)

	failed := 0
	for _, s := range r.Signers {
		fmt.Fprintf(&sb, "\nSigner %d: %s\n", s.Index, s.Signer)
		fmt.Fprintf(&sb, "  Digest:     %s\n", s.Digest)
		fmt.Fprintf(&sb, "  Attributes: %s\n", s.Attributes)
		if s.KeyBits > 0 {
			fmt.Fprintf(&sb, "  Key:        rsa %d bits\n", s.KeyBits)
		}
		if s.DigestMatch != nil {
			fmt.Fprintf(&sb, "  Content:    %s\n", status(*s.DigestMatch, color, "MATCH", "MISMATCH"))
		}
		if s.SignatureValid != nil {
			fmt.Fprintf(&sb, "  Signature:  %s\n", status(*s.SignatureValid, color, "VALID", "INVALID"))
		}
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "  Error:      %s\n", e)
		}
		if len(s.Errors) > 0 {
			failed++
		}
	}

	if failed > 0 || len(r.Signers) == 0 {
		fmt.Fprintf(&sb, "\nVerification %s (%d of %d signer(s))\n", status(false, color, "", "FAILED"), failed, len(r.Signers))
	} else {
		fmt.Fprintf(&sb, "\nVerification %s\n", status(true, color, "OK", ""))
	}
	return sb.String()
}
