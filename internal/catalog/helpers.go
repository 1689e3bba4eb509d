package catalog

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/oid"
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// derExtensions contains file extensions that may hold DER-encoded signing
// artifacts. Only files with these extensions are tried as DER so arbitrary
// firmware blobs are not fed to the decoders.
var derExtensions = map[string]bool{
	// Certificates
	".der":  true,
	".cer":  true,
	".crt":  true,
	".cert": true,
	".pem":  true, // sometimes DER despite extension
	".x509": true,

	// Detached image signatures
	".p7":    true,
	".p7s":   true,
	".p7m":   true,
	".pkcs7": true,
	".sig":   true,

	// Certificate containers
	".p7b": true,
	".p7c": true,
	".p12": true,
	".pfx": true,

	// Public keys
	".pub": true,
	".key": true,
}

// jksExtensions contains file extensions for Java KeyStore files.
var jksExtensions = map[string]bool{
	".jks":        true,
	".keystore":   true,
	".truststore": true,
}

// HasBinaryExtension reports whether the file path has a recognized DER or JKS
// extension. The extension is matched case-insensitively. For virtual paths
// like "rootfs.tar:boot/image.p7s" only the part after the last ":" counts.
func HasBinaryExtension(path string) bool {
	if idx := strings.LastIndex(path, ":"); idx >= 0 {
		path = path[idx+1:]
	}
	ext := strings.ToLower(filepath.Ext(path))
	return derExtensions[ext] || jksExtensions[ext]
}

// CertRole classifies a certificate as "root", "intermediate" or "leaf".
func CertRole(cert *x509cert.Certificate) string {
	switch {
	case cert.IsCA && cert.SelfIssued():
		return "root"
	case cert.IsCA:
		return "intermediate"
	default:
		return "leaf"
	}
}

// KeyType describes a certificate's public key, e.g. "rsa 2048 bits" or
// "ecdsa P-256".
func KeyType(cert *x509cert.Certificate) string {
	pk := cert.PublicKey
	if pk.Curve != 0 {
		return pk.Name() + " " + pk.Curve.String()
	}
	if pk.Algorithm == oid.RSAEncryption {
		if key, err := rsakey.ParseRSAPublicKey(pk.Key); err == nil {
			return fmt.Sprintf("%s %d bits", pk.Name(), key.Bits())
		}
	}
	return pk.Name()
}

// FormatCN returns the rendered subject name, falling back to the
// serial number for certificates with an empty subject.
func FormatCN(cert *x509cert.Certificate) string {
	if s := cert.Subject.String(); s != "" {
		return s
	}
	return "serial:" + hex.EncodeToString(cert.SerialNumber)
}

// SignerLabel names the signer of si: the certificate subject when the
// certificate was resolved, otherwise its subject key identifier or its
// issuer and serial number.
func SignerLabel(si *pkcs7.SignerInfo) string {
	switch {
	case si.Signer != nil:
		return FormatCN(si.Signer)
	case len(si.SubjectKeyID) > 0:
		return "skid:" + bootkit.ColonHex(si.SubjectKeyID)
	default:
		return fmt.Sprintf("%s serial:%s", si.Issuer.String(), bootkit.ColonHex(si.SerialNumber))
	}
}
