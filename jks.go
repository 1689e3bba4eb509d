package bootkit

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"

	"github.com/sensiblebit/bootkit/x509cert"
)

// CertificatesFromJKS loads a Java KeyStore with the first password that
// works and returns the certificates of its trusted entries and of every
// private key entry's chain. Private keys are never decrypted.
//
// Entries whose certificate does not decode are skipped; an error is
// returned only if the store cannot be loaded or yields nothing.
func CertificatesFromJKS(data []byte, passwords []string) ([]*x509cert.Certificate, error) {
	ks, err := loadJKS(data, passwords)
	if err != nil {
		return nil, err
	}

	var certs []*x509cert.Certificate
	add := func(raw []byte) {
		cert, err := x509cert.ParseCertificate(raw)
		if err != nil {
			return
		}
		certs = append(certs, cert)
	}

	for _, alias := range ks.Aliases() {
		if ks.IsTrustedCertificateEntry(alias) {
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			add(entry.Certificate.Content)
		}
		if ks.IsPrivateKeyEntry(alias) {
			chain, err := ks.GetPrivateKeyEntryCertificateChain(alias)
			if err != nil {
				continue
			}
			for _, c := range chain {
				add(c.Content)
			}
		}
	}

	if len(certs) == 0 {
		return nil, errors.New("JKS contains no usable certificates")
	}
	return certs, nil
}

func loadJKS(data []byte, passwords []string) (keystore.KeyStore, error) {
	var lastErr error
	for _, password := range passwords {
		ks := keystore.New()
		if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
			lastErr = err
			continue
		}
		return ks, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no passwords to try")
	}
	return keystore.KeyStore{}, fmt.Errorf("loading JKS: %w", lastErr)
}

// EncodeJKSTrustStore writes certificates as trusted entries of a Java
// KeyStore. Aliases are "cert-0", "cert-1" and so on, in input order.
func EncodeJKSTrustStore(certs []*x509cert.Certificate, password string) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	ks := keystore.New()
	now := time.Now()
	for i, c := range certs {
		if err := ks.SetTrustedCertificateEntry(fmt.Sprintf("cert-%d", i), keystore.TrustedCertificateEntry{
			CreationTime: now,
			Certificate: keystore.Certificate{
				Type:    "X.509",
				Content: c.Raw,
			},
		}); err != nil {
			return nil, fmt.Errorf("setting JKS entry %d: %w", i, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}
	return buf.Bytes(), nil
}
