package bootkit

import (
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sensiblebit/bootkit/x509cert"
)

// CertificatesFromPKCS12 opens a PKCS#12/PFX bundle with the first password
// that works and returns every certificate it holds, re-decoded with
// x509cert. Both key-bearing bundles and trust stores are accepted; private
// keys are discarded.
func CertificatesFromPKCS12(data []byte, passwords []string) ([]*x509cert.Certificate, error) {
	var lastErr error
	for _, password := range passwords {
		raws, err := decodePKCS12(data, password)
		if err != nil {
			lastErr = err
			continue
		}
		return reparse(raws)
	}
	if lastErr == nil {
		lastErr = errors.New("no passwords to try")
	}
	return nil, fmt.Errorf("decoding PKCS#12: %w", lastErr)
}

func decodePKCS12(data []byte, password string) ([][]byte, error) {
	_, leaf, caCerts, err := gopkcs12.DecodeChain(data, password)
	if err == nil {
		raws := [][]byte{leaf.Raw}
		for _, c := range caCerts {
			raws = append(raws, c.Raw)
		}
		return raws, nil
	}
	certs, tsErr := gopkcs12.DecodeTrustStore(data, password)
	if tsErr != nil {
		return nil, err
	}
	raws := make([][]byte, 0, len(certs))
	for _, c := range certs {
		raws = append(raws, c.Raw)
	}
	return raws, nil
}

// EncodePKCS12TrustStore writes certificates into a password-protected
// PKCS#12 trust store.
func EncodePKCS12TrustStore(certs []*x509cert.Certificate, password string) ([]byte, error) {
	stdCerts, err := toStdlib(certs)
	if err != nil {
		return nil, err
	}
	return gopkcs12.Modern.EncodeTrustStore(stdCerts, password)
}

// CertificatesFromP7B returns the certificates carried by a PKCS#7 bundle,
// including certs-only (degenerate) bundles that ParseMessage rejects for
// lacking signers.
func CertificatesFromP7B(data []byte) ([]*x509cert.Certificate, error) {
	p7, err := parseP7B(data)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle contains no certificates")
	}
	raws := make([][]byte, 0, len(p7.Certificates))
	for _, c := range p7.Certificates {
		raws = append(raws, c.Raw)
	}
	return reparse(raws)
}

// parseP7B calls the BER-tolerant smallstep parser, which can panic on
// truncated input; the panic is returned as an error.
func parseP7B(data []byte) (p7 *pkcs7.PKCS7, err error) {
	defer func() {
		if r := recover(); r != nil {
			p7, err = nil, fmt.Errorf("malformed PKCS#7 bundle: %v", r)
		}
	}()
	return pkcs7.Parse(data)
}

// EncodeP7B creates a certs-only PKCS#7 bundle from a certificate chain.
func EncodeP7B(certs []*x509cert.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	var derBytes []byte
	for _, cert := range certs {
		derBytes = append(derBytes, cert.Raw...)
	}
	return pkcs7.DegenerateCertificate(derBytes)
}

func reparse(raws [][]byte) ([]*x509cert.Certificate, error) {
	certs := make([]*x509cert.Certificate, 0, len(raws))
	for i, raw := range raws {
		cert, err := x509cert.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func toStdlib(certs []*x509cert.Certificate) ([]*x509.Certificate, error) {
	if len(certs) == 0 {
		return nil, errors.New("no certificates to encode")
	}
	out := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		std, err := x509.ParseCertificate(c.Raw)
		if err != nil {
			return nil, fmt.Errorf("converting %q: %w", c.Subject.String(), err)
		}
		out = append(out, std)
	}
	return out, nil
}
