package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/x509cert"
)

func TestOpenInput_RecordsOutliveMapping(t *testing.T) {
	// WHY: The mapping is released as soon as the callback returns. Decoded
	// records must not alias it; touching every byte field after the unmap
	// would fault if they did.
	t.Parallel()

	var cert *x509cert.Certificate
	var msg *pkcs7.Message
	err := OpenInput(filepath.Join("testdata", "selfsigned.der"), func(data []byte) error {
		var err error
		cert, err = x509cert.ParseCertificate(data)
		return err
	})
	if err != nil {
		t.Fatalf("OpenInput(selfsigned.der): %v", err)
	}
	err = OpenInput(filepath.Join("testdata", "image.p7"), func(data []byte) error {
		var err error
		msg, err = pkcs7.ParseMessage(data)
		return err
	})
	if err != nil {
		t.Fatalf("OpenInput(image.p7): %v", err)
	}

	sum := 0
	for _, b := range [][]byte{cert.Raw, cert.TBS, cert.SerialNumber, cert.PublicKey.Key, cert.Signature.Value, cert.RawIssuer} {
		for _, v := range b {
			sum += int(v)
		}
	}
	for _, si := range msg.SignerInfos {
		for _, v := range si.Signature {
			sum += int(v)
		}
		for _, v := range si.MessageDigest {
			sum += int(v)
		}
	}
	if sum == 0 {
		t.Error("decoded records are all zero")
	}
	if cert.Subject.CommonName() == "" {
		t.Error("certificate subject CN is empty after unmap")
	}
}

func TestOpenInput_EmptyFile(t *testing.T) {
	// WHY: Mapping a zero-length file fails on most systems; empty input must
	// instead reach the callback as an empty buffer.
	t.Parallel()
	path := filepath.Join(t.TempDir(), "empty.der")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	called := false
	err := OpenInput(path, func(data []byte) error {
		called = true
		if len(data) != 0 {
			t.Errorf("got %d bytes, want 0", len(data))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	if !called {
		t.Error("callback not invoked")
	}
}

func TestOpenInput_Errors(t *testing.T) {
	// WHY: Open failures are wrapped with the path, and the callback's own
	// error reaches the caller unchanged.
	t.Parallel()

	err := OpenInput("/nonexistent/image.p7", func([]byte) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}

	sentinel := errors.New("stop")
	err = OpenInput(filepath.Join("testdata", "rsa_public.der"), func([]byte) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("callback error = %v, want %v", err, sentinel)
	}
}
