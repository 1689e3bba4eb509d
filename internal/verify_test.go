package internal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	smpkcs7 "github.com/smallstep/pkcs7"

	"github.com/sensiblebit/bootkit/x509cert"
)

func TestVerifyMessage_Fixture(t *testing.T) {
	// WHY: The Authenticode fixture carries its self-signed signer; the
	// digest over the encapsulated content and the signature over the signed
	// attributes must both check out under the default policy.
	t.Parallel()
	msg := parseMessage(t, readFixture(t, "image.p7"))

	result, err := VerifyMessage(context.Background(), &VerifyInput{Message: msg})
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if !result.OK() {
		t.Fatalf("fixture did not verify: %+v", result.Signers)
	}
	s := result.Signers[0]
	if s.DigestMatch == nil || !*s.DigestMatch {
		t.Error("digest match not reported")
	}
	if s.SignatureValid == nil || !*s.SignatureValid {
		t.Error("signature validity not reported")
	}
	if s.Signer != "Linaro: Tester" {
		t.Errorf("signer = %q, want %q", s.Signer, "Linaro: Tester")
	}
	if result.DataType != "msIndirectData" {
		t.Errorf("data type = %q", result.DataType)
	}
	if result.Detached || result.ContentLen != 104 {
		t.Errorf("detached=%v content_len=%d, want encapsulated 104 bytes", result.Detached, result.ContentLen)
	}
}

func TestVerifyMessage_Generated(t *testing.T) {
	// WHY: Covers both content placements and the signed-attributes-free
	// form, where the signature covers the content digest directly.
	t.Parallel()
	signer := newTestCert(t, nil, "image-signer", false)
	content := []byte("kernel image payload")

	tests := []struct {
		name       string
		opts       signOpts
		content    []byte
		wantDigest bool
	}{
		{"attached", signOpts{}, nil, true},
		{"detached", signOpts{detached: true}, content, true},
		{"sha512", signOpts{digest: smpkcs7.OIDDigestAlgorithmSHA512}, nil, true},
		{"no signed attributes", signOpts{noAttribs: true}, nil, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := parseMessage(t, signMessage(t, signer, content, tt.opts))
			result, err := VerifyMessage(context.Background(), &VerifyInput{Message: msg, Content: tt.content})
			if err != nil {
				t.Fatalf("VerifyMessage: %v", err)
			}
			if !result.OK() {
				t.Fatalf("did not verify: %+v", result.Signers)
			}
			s := result.Signers[0]
			if (s.DigestMatch != nil) != tt.wantDigest {
				t.Errorf("digest match reported = %v, want %v", s.DigestMatch != nil, tt.wantDigest)
			}
			if s.KeyBits != 2048 || !s.Embedded {
				t.Errorf("key bits %d embedded %v", s.KeyBits, s.Embedded)
			}
			if result.ContentLen != len(content) {
				t.Errorf("content_len = %d, want %d", result.ContentLen, len(content))
			}
		})
	}
}

func TestVerifyMessage_DetachedNeedsContent(t *testing.T) {
	t.Parallel()
	signer := newTestCert(t, nil, "image-signer", false)
	msg := parseMessage(t, signMessage(t, signer, []byte("payload"), signOpts{detached: true}))

	_, err := VerifyMessage(context.Background(), &VerifyInput{Message: msg})
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("error = %v, want ErrNoContent", err)
	}
}

func TestVerifyMessage_Failures(t *testing.T) {
	// WHY: Each failure is reported on the signer, not as a Go error, so a
	// caller sees every problem with a message at once.
	t.Parallel()
	signer := newTestCert(t, nil, "image-signer", false)
	content := []byte("kernel image payload")

	tests := []struct {
		name    string
		opts    signOpts
		mutate  func(in *VerifyInput)
		wantErr string
	}{
		{
			name:    "wrong detached content",
			opts:    signOpts{detached: true},
			mutate:  func(in *VerifyInput) { in.Content = []byte("tampered payload") },
			wantErr: "messageDigest does not match",
		},
		{
			name: "tampered signature",
			mutate: func(in *VerifyInput) {
				sig := in.Message.SignerInfos[0].Signature
				sig[len(sig)/2] ^= 0xff
			},
			wantErr: "signature does not verify",
		},
		{
			name:    "digest not allowed",
			mutate:  func(in *VerifyInput) { in.Policy = &Policy{AllowedDigests: []string{"sha512"}} },
			wantErr: "digest algorithm sha256 not allowed",
		},
		{
			name:    "key too short",
			mutate:  func(in *VerifyInput) { in.Policy = &Policy{MinRSABits: 4096} },
			wantErr: "signer key has 2048 bits, policy requires 4096",
		},
		{
			name:    "missing required attribute",
			mutate:  func(in *VerifyInput) { in.Policy = &Policy{RequiredAttributes: []string{"msSpOpusInfo"}} },
			wantErr: "missing required signed attributes: msSpOpusInfo",
		},
		{
			name: "expired signer",
			mutate: func(in *VerifyInput) {
				in.Policy = &Policy{CheckValidity: true}
				in.Now = time.Now().Add(2 * 365 * 24 * time.Hour)
			},
			wantErr: "signer certificate not valid",
		},
		{
			name:    "signer not embedded",
			opts:    signOpts{noSigner: true},
			wantErr: "signer certificate is not embedded",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			input := &VerifyInput{Message: parseMessage(t, signMessage(t, signer, content, tt.opts))}
			if tt.opts.detached {
				input.Content = content
			}
			if tt.mutate != nil {
				tt.mutate(input)
			}
			result, err := VerifyMessage(context.Background(), input)
			if err != nil {
				t.Fatalf("VerifyMessage: %v", err)
			}
			if result.OK() {
				t.Fatal("expected verification to fail")
			}
			errs := strings.Join(result.Signers[0].Errors, "; ")
			if !strings.Contains(errs, tt.wantErr) {
				t.Errorf("errors = %q, want one containing %q", errs, tt.wantErr)
			}
		})
	}
}

func TestVerifyMessage_ExternalSigner(t *testing.T) {
	// WHY: A message that omits its signer certificate can still be verified
	// against a separately supplied certificate when the policy allows it.
	t.Parallel()
	signer := newTestCert(t, nil, "image-signer", false)
	stranger := newTestCert(t, nil, "someone-else", false)
	msg := parseMessage(t, signMessage(t, signer, []byte("payload"), signOpts{noSigner: true}))
	if msg.SignerInfos[0].Signer != nil {
		t.Fatal("signer certificate unexpectedly embedded")
	}

	policy := DefaultPolicy()
	policy.RequireEmbeddedSigner = false
	result, err := VerifyMessage(context.Background(), &VerifyInput{
		Message:      msg,
		Certificates: []*x509cert.Certificate{stranger.cert, signer.cert},
		Policy:       policy,
	})
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if !result.OK() {
		t.Fatalf("did not verify: %+v", result.Signers)
	}
	if s := result.Signers[0]; s.Embedded || s.Signer != "Example: image-signer" {
		t.Errorf("signer = %q embedded = %v", s.Signer, s.Embedded)
	}

	result, err = VerifyMessage(context.Background(), &VerifyInput{
		Message:      msg,
		Certificates: []*x509cert.Certificate{stranger.cert},
		Policy:       policy,
	})
	if err != nil {
		t.Fatalf("VerifyMessage: %v", err)
	}
	if result.OK() || !strings.Contains(strings.Join(result.Signers[0].Errors, ";"), "no certificate found") {
		t.Errorf("expected missing certificate error, got %+v", result.Signers)
	}
}

func TestVerifyMessage_InvalidInput(t *testing.T) {
	t.Parallel()
	msg := parseMessage(t, readFixture(t, "image.p7"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := VerifyMessage(ctx, &VerifyInput{Message: msg}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context error = %v", err)
	}
	if _, err := VerifyMessage(context.Background(), &VerifyInput{}); err == nil {
		t.Error("expected error for nil message")
	}
	_, err := VerifyMessage(context.Background(), &VerifyInput{Message: msg, Policy: &Policy{AllowedDigests: []string{"crc32"}}})
	if err == nil || !strings.Contains(err.Error(), "invalid policy") {
		t.Errorf("invalid policy error = %v", err)
	}
}

func TestFormatVerifyResult(t *testing.T) {
	t.Parallel()
	msg := parseMessage(t, readFixture(t, "image.p7"))
	result, err := VerifyMessage(context.Background(), &VerifyInput{Message: msg})
	if err != nil {
		t.Fatal(err)
	}

	plain := FormatVerifyResult(result, false)
	for _, want := range []string{"Signer 0: Linaro: Tester", "Signature:  VALID", "Content:    MATCH", "Verification OK"} {
		if !strings.Contains(plain, want) {
			t.Errorf("output missing %q:\n%s", want, plain)
		}
	}
	if strings.Contains(plain, "\x1b[") {
		t.Error("plain output contains escape sequences")
	}

	colored := FormatVerifyResult(result, true)
	if !strings.Contains(colored, ansiGreen+"VALID"+ansiReset) {
		t.Errorf("colored output missing green status:\n%q", colored)
	}

	result.Signers[0].Errors = []string{"signature does not verify"}
	if out := FormatVerifyResult(result, false); !strings.Contains(out, "Verification FAILED (1 of 1 signer(s))") {
		t.Errorf("failure summary missing:\n%s", out)
	}
}

func TestColorEnabled_NonTerminal(t *testing.T) {
	t.Parallel()
	if ColorEnabled(&bytes.Buffer{}) {
		t.Error("buffer reported as a color terminal")
	}
}
