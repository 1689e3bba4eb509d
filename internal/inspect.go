package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensiblebit/bootkit"
	"github.com/sensiblebit/bootkit/internal/catalog"
	"github.com/sensiblebit/bootkit/pkcs7"
	"github.com/sensiblebit/bootkit/rsakey"
	"github.com/sensiblebit/bootkit/x509cert"
)

// InspectResult holds the inspection details for one decoded object.
type InspectResult struct {
	Type string `json:"type" yaml:"type"`

	// Certificate fields.
	Subject     string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	FullSubject string   `json:"full_subject,omitempty" yaml:"full_subject,omitempty"`
	Issuer      string   `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Serial      string   `json:"serial,omitempty" yaml:"serial,omitempty"`
	Version     int      `json:"version,omitempty" yaml:"version,omitempty"`
	NotBefore   string   `json:"not_before,omitempty" yaml:"not_before,omitempty"`
	NotAfter    string   `json:"not_after,omitempty" yaml:"not_after,omitempty"`
	CertType    string   `json:"cert_type,omitempty" yaml:"cert_type,omitempty"`
	KeyType     string   `json:"key_type,omitempty" yaml:"key_type,omitempty"`
	SigAlg      string   `json:"signature_algorithm,omitempty" yaml:"signature_algorithm,omitempty"`
	SKI         string   `json:"subject_key_id,omitempty" yaml:"subject_key_id,omitempty"`
	AKI         string   `json:"authority_key_id,omitempty" yaml:"authority_key_id,omitempty"`
	Extensions  []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Anchored    *bool    `json:"anchored,omitempty" yaml:"anchored,omitempty"`

	// PKCS7 fields.
	DataType     string          `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	DataLen      int             `json:"data_len,omitempty" yaml:"data_len,omitempty"`
	Detached     bool            `json:"detached,omitempty" yaml:"detached,omitempty"`
	Digests      []string        `json:"digest_algorithms,omitempty" yaml:"digest_algorithms,omitempty"`
	Certificates int             `json:"certificates,omitempty" yaml:"certificates,omitempty"`
	Signers      []InspectSigner `json:"signers,omitempty" yaml:"signers,omitempty"`

	// RSA public key fields.
	Bits           int    `json:"bits,omitempty" yaml:"bits,omitempty"`
	NSize          int    `json:"n_size,omitempty" yaml:"n_size,omitempty"`
	ESize          int    `json:"e_size,omitempty" yaml:"e_size,omitempty"`
	Exponent       string `json:"exponent,omitempty" yaml:"exponent,omitempty"`
	SSHFingerprint string `json:"ssh_fingerprint,omitempty" yaml:"ssh_fingerprint,omitempty"`

	SHA256 string `json:"sha256_fingerprint" yaml:"sha256_fingerprint"`
}

// InspectSigner describes one SignerInfo of a PKCS7 message.
type InspectSigner struct {
	Index        int    `json:"index" yaml:"index"`
	Signer       string `json:"signer" yaml:"signer"`
	Embedded     bool   `json:"embedded" yaml:"embedded"`
	Digest       string `json:"digest_algorithm" yaml:"digest_algorithm"`
	SigAlg       string `json:"signature_algorithm" yaml:"signature_algorithm"`
	AASet        uint32 `json:"aa_set" yaml:"aa_set"`
	Attributes   string `json:"attributes" yaml:"attributes"`
	MsgDigestLen int    `json:"msgdigest_len" yaml:"msgdigest_len"`
	SigningTime  string `json:"signing_time,omitempty" yaml:"signing_time,omitempty"`
	SignatureLen int    `json:"signature_len" yaml:"signature_len"`
}

// InspectInput holds parameters for InspectFile and InspectData.
type InspectInput struct {
	Passwords []string          // passwords to try for PKCS#12 and JKS containers
	Anchors   catalog.AnchorSet // nil skips the anchored annotation
}

// InspectFile reads a file ("-" for stdin) and returns inspection results
// for all objects found.
func InspectFile(path string, input InspectInput) ([]InspectResult, error) {
	var results []InspectResult
	err := OpenInput(path, func(data []byte) error {
		var err error
		results, err = InspectData(data, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("inspecting %s: %w", path, err)
	}
	return results, nil
}

// InspectData decodes PEM or DER data. Binary data that is not a single
// certificate, message or key is tried as a JKS, certs-only PKCS#7 or
// PKCS#12 container, in that order.
func InspectData(data []byte, input InspectInput) ([]InspectResult, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	if bootkit.IsPEM(data) {
		objs, err := bootkit.ParseAll(data)
		if err != nil {
			return nil, err
		}
		results := make([]InspectResult, 0, len(objs))
		for _, obj := range objs {
			results = append(results, inspectObject(obj, input.Anchors))
		}
		return results, nil
	}

	obj, derErr := bootkit.ParseDER(data)
	if derErr == nil {
		return []InspectResult{inspectObject(obj, input.Anchors)}, nil
	}

	var certs []*x509cert.Certificate
	var err error
	switch {
	case bytes.HasPrefix(data, []byte{0xFE, 0xED, 0xFE, 0xED}):
		certs, err = bootkit.CertificatesFromJKS(data, input.Passwords)
	default:
		certs, err = bootkit.CertificatesFromP7B(data)
		if err != nil {
			certs, err = bootkit.CertificatesFromPKCS12(data, input.Passwords)
		}
	}
	if err != nil {
		return nil, derErr
	}
	results := make([]InspectResult, 0, len(certs))
	for _, c := range certs {
		results = append(results, inspectCert(c, input.Anchors))
	}
	return results, nil
}

func inspectObject(obj *bootkit.Object, anchors catalog.AnchorSet) InspectResult {
	switch obj.Kind {
	case bootkit.KindCertificate:
		return inspectCert(obj.Certificate, anchors)
	case bootkit.KindMessage:
		return inspectMessage(obj.Message, obj.Raw)
	default:
		return inspectKey(obj.PublicKey, obj.Raw)
	}
}

func inspectCert(cert *x509cert.Certificate, anchors catalog.AnchorSet) InspectResult {
	r := InspectResult{
		Type:        bootkit.KindCertificate.String(),
		Subject:     cert.Subject.String(),
		FullSubject: cert.Subject.Full(),
		Issuer:      cert.Issuer.String(),
		Serial:      bootkit.ColonHex(cert.SerialNumber),
		Version:     cert.Version,
		NotBefore:   cert.NotBefore().Format(time.RFC3339),
		NotAfter:    cert.NotAfter().Format(time.RFC3339),
		CertType:    catalog.CertRole(cert),
		KeyType:     catalog.KeyType(cert),
		SigAlg:      cert.Signature.Algorithm.String(),
		SHA256:      bootkit.Fingerprint(cert.Raw),
	}
	if len(cert.SubjectKeyID) > 0 {
		r.SKI = bootkit.ColonHex(cert.SubjectKeyID)
	}
	if len(cert.AuthorityKeyID) > 0 {
		r.AKI = bootkit.ColonHex(cert.AuthorityKeyID)
	}
	for _, ext := range cert.Extensions {
		name := ext.ID.String()
		if name == "unknown" {
			name = ext.OID
		}
		if ext.Critical {
			name += " (critical)"
		}
		r.Extensions = append(r.Extensions, name)
	}
	if anchors != nil {
		anchored := anchors.Anchored(cert)
		r.Anchored = &anchored
	}
	return r
}

func inspectMessage(msg *pkcs7.Message, raw []byte) InspectResult {
	r := InspectResult{
		Type:         bootkit.KindMessage.String(),
		DataType:     dataTypeName(msg),
		DataLen:      msg.DataLen,
		Detached:     msg.Detached(),
		Certificates: len(msg.Certificates),
		SHA256:       bootkit.Fingerprint(raw),
	}
	for _, d := range msg.DigestAlgorithms {
		r.Digests = append(r.Digests, d.String())
	}
	for _, si := range msg.SignerInfos {
		s := InspectSigner{
			Index:        si.Index,
			Signer:       catalog.SignerLabel(si),
			Embedded:     si.Signer != nil,
			Digest:       si.DigestAlgorithm.String(),
			SigAlg:       si.SignatureAlgorithm.String(),
			AASet:        uint32(si.AASet),
			Attributes:   si.AASet.String(),
			MsgDigestLen: si.MsgDigestLen(),
			SignatureLen: len(si.Signature),
		}
		if si.AASet.Has(pkcs7.AttrSigningTime) {
			s.SigningTime = time.Unix(si.SigningTime, 0).UTC().Format(time.RFC3339)
		}
		r.Signers = append(r.Signers, s)
	}
	return r
}

func inspectKey(key *rsakey.PublicKey, raw []byte) InspectResult {
	r := InspectResult{
		Type:     bootkit.KindPublicKey.String(),
		Bits:     key.Bits(),
		NSize:    key.NSize(),
		ESize:    key.ESize(),
		Exponent: new(big.Int).SetBytes(key.E).String(),
		SHA256:   bootkit.Fingerprint(raw),
	}
	if fp, err := bootkit.SSHFingerprint(key); err == nil {
		r.SSHFingerprint = fp
	}
	return r
}

// FormatInspectResults formats inspection results as text, JSON or YAML.
func FormatInspectResults(results []InspectResult, format string) (string, error) {
	switch format {
	case "text":
		return formatInspectText(results), nil
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("marshaling YAML: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", format)
	}
}

func formatInspectText(results []InspectResult) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch r.Type {
		case bootkit.KindCertificate.String():
			fmt.Fprintf(&sb, "Certificate:\n")
			fmt.Fprintf(&sb, "  Subject:     %s\n", r.Subject)
			if r.FullSubject != r.Subject {
				fmt.Fprintf(&sb, "  Full DN:     %s\n", r.FullSubject)
			}
			fmt.Fprintf(&sb, "  Issuer:      %s\n", r.Issuer)
			fmt.Fprintf(&sb, "  Serial:      %s\n", r.Serial)
			fmt.Fprintf(&sb, "  Version:     %d\n", r.Version)
			fmt.Fprintf(&sb, "  Type:        %s\n", r.CertType)
			fmt.Fprintf(&sb, "  Not Before:  %s\n", r.NotBefore)
			fmt.Fprintf(&sb, "  Not After:   %s\n", r.NotAfter)
			fmt.Fprintf(&sb, "  Key:         %s\n", r.KeyType)
			fmt.Fprintf(&sb, "  Signature:   %s\n", r.SigAlg)
			fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.SHA256)
			if r.SKI != "" {
				fmt.Fprintf(&sb, "  SKI:         %s\n", r.SKI)
			}
			if r.AKI != "" {
				fmt.Fprintf(&sb, "  AKI:         %s\n", r.AKI)
			}
			if len(r.Extensions) > 0 {
				fmt.Fprintf(&sb, "  Extensions:  %s\n", strings.Join(r.Extensions, ", "))
			}
			if r.Anchored != nil {
				fmt.Fprintf(&sb, "  Anchored:    %v\n", *r.Anchored)
			}
		case bootkit.KindMessage.String():
			content := fmt.Sprintf("%d bytes", r.DataLen)
			if r.Detached {
				content = "detached"
			}
			fmt.Fprintf(&sb, "PKCS#7 SignedData:\n")
			fmt.Fprintf(&sb, "  Content:      %s (%s)\n", r.DataType, content)
			fmt.Fprintf(&sb, "  Digests:      %s\n", strings.Join(r.Digests, ", "))
			fmt.Fprintf(&sb, "  Certificates: %d\n", r.Certificates)
			fmt.Fprintf(&sb, "  SHA-256:      %s\n", r.SHA256)
			for _, s := range r.Signers {
				fmt.Fprintf(&sb, "  Signer %d:     %s\n", s.Index, s.Signer)
				fmt.Fprintf(&sb, "    Algorithm:  %s / %s\n", s.Digest, s.SigAlg)
				fmt.Fprintf(&sb, "    aa_set:     %#x (%s)\n", s.AASet, s.Attributes)
				fmt.Fprintf(&sb, "    Digest:     %d bytes\n", s.MsgDigestLen)
				if s.SigningTime != "" {
					fmt.Fprintf(&sb, "    Signed at:  %s\n", s.SigningTime)
				}
				fmt.Fprintf(&sb, "    Signature:  %d bytes\n", s.SignatureLen)
			}
		case bootkit.KindPublicKey.String():
			fmt.Fprintf(&sb, "RSA Public Key:\n")
			fmt.Fprintf(&sb, "  Bits:        %d\n", r.Bits)
			fmt.Fprintf(&sb, "  Modulus:     %d bytes\n", r.NSize)
			fmt.Fprintf(&sb, "  Exponent:    %s (%d bytes)\n", r.Exponent, r.ESize)
			fmt.Fprintf(&sb, "  SHA-256:     %s\n", r.SHA256)
			if r.SSHFingerprint != "" {
				fmt.Fprintf(&sb, "  SSH:         %s\n", r.SSHFingerprint)
			}
		}
	}
	return sb.String()
}
