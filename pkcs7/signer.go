package pkcs7

import (
	"bytes"
	"fmt"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
	"github.com/sensiblebit/bootkit/x509cert"
)

const setTag = 0x31

// SignerInfo is one decoded signer of a Message.
type SignerInfo struct {
	Index   int
	Version int

	// Issuer and SerialNumber identify the signer for version 1.
	Issuer       x509cert.Name
	RawIssuer    []byte
	SerialNumber []byte
	// SubjectKeyID identifies the signer for version 3.
	SubjectKeyID []byte

	DigestAlgorithm oid.ID

	// AASet flags the recognized signed attributes present.
	AASet AttrSet
	// AuthAttrs is the signed attribute set re-tagged as SET OF, the exact
	// bytes the signature covers. It is nil when there are no signed
	// attributes.
	AuthAttrs     []byte
	ContentType   oid.ID
	MessageDigest []byte
	// SigningTime is Unix epoch seconds, valid when AASet has AttrSigningTime.
	SigningTime int64

	SignatureAlgorithm oid.ID
	PublicKeyAlgorithm oid.ID
	Encoding           string
	Signature          []byte

	// Signer is the embedded certificate this SignerInfo refers to, if any.
	Signer *x509cert.Certificate
}

// MsgDigestLen returns the length of the messageDigest attribute value.
func (si *SignerInfo) MsgDigestLen() int {
	return len(si.MessageDigest)
}

func parseSignerInfos(sd *der.Cursor, msg *Message) ([]*SignerInfo, error) {
	set, err := sd.Set()
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, der.Errorf(der.KindInvalidValue, "no signer infos")
	}
	var infos []*SignerInfo
	for i := 0; !set.Empty(); i++ {
		si, err := parseSignerInfo(set, msg)
		if err != nil {
			return nil, der.WithField(err, fmt.Sprintf("[%d]", i))
		}
		si.Index = i
		infos = append(infos, si)
	}
	return infos, nil
}

func parseSignerInfo(set *der.Cursor, msg *Message) (*SignerInfo, error) {
	seq, err := set.Sequence()
	if err != nil {
		return nil, err
	}
	si := &SignerInfo{}

	ver, err := seq.ReadInteger()
	if err != nil {
		return nil, der.WithField(err, "version")
	}
	v, err := der.ParseInt64(ver)
	if err != nil {
		return nil, der.WithField(err, "version")
	}
	if v != 1 && v != 3 {
		return nil, der.WithField(der.Errorf(der.KindUnsupportedEncoding, "version %d", v), "version")
	}
	si.Version = int(v)

	if err := parseSignerIdentifier(si, seq); err != nil {
		return nil, der.WithField(err, "sid")
	}

	if seq.Empty() {
		return nil, der.WithField(der.Errorf(der.KindUnexpectedTag, "missing"), "digestAlgorithm")
	}
	if si.DigestAlgorithm, err = parseAlgorithm(seq); err != nil {
		return nil, der.WithField(err, "digestAlgorithm")
	}
	if !oid.IsDigest(si.DigestAlgorithm) {
		return nil, der.WithField(der.Errorf(der.KindUnknownAlgorithm, "%s is not a digest", si.DigestAlgorithm), "digestAlgorithm")
	}

	if attrs, ok, err := seq.Optional(der.ClassContextSpecific, true, 0); err != nil {
		return nil, der.WithField(err, "authenticatedAttributes")
	} else if ok {
		if err := parseAuthAttrs(si, attrs, msg); err != nil {
			return nil, der.WithField(err, "authenticatedAttributes")
		}
	}
	if msg.DataType == oid.MSIndirectData && si.AuthAttrs == nil {
		return nil, der.WithField(der.Errorf(der.KindInvalidValue, "Authenticode requires signed attributes"), "authenticatedAttributes")
	}

	if err := parseSignatureAlgorithm(si, seq); err != nil {
		return nil, der.WithField(err, "digestEncryptionAlgorithm")
	}
	sig, err := seq.ReadOctetString()
	if err != nil {
		return nil, der.WithField(err, "encryptedDigest")
	}
	si.Signature = bytes.Clone(sig)

	if _, _, err := seq.Optional(der.ClassContextSpecific, true, 1); err != nil {
		return nil, der.WithField(err, "unauthenticatedAttributes")
	}
	if err := seq.Finish(); err != nil {
		return nil, err
	}
	return si, nil
}

// parseSignerIdentifier decodes issuerAndSerialNumber (version 1) or
// [0] subjectKeyIdentifier (version 3).
func parseSignerIdentifier(si *SignerInfo, seq *der.Cursor) error {
	if skid, ok, err := seq.Optional(der.ClassContextSpecific, false, 0); err != nil {
		return err
	} else if ok {
		if si.Version != 3 {
			return der.Errorf(der.KindInvalidValue, "subjectKeyIdentifier in a version %d SignerInfo", si.Version)
		}
		si.SubjectKeyID = bytes.Clone(skid.Content)
		return nil
	}

	ias, err := seq.Sequence()
	if err != nil {
		return err
	}
	if si.Version != 1 {
		return der.Errorf(der.KindInvalidValue, "issuerAndSerialNumber in a version %d SignerInfo", si.Version)
	}
	issuer, err := ias.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return der.WithField(err, "issuer")
	}
	name, err := x509cert.ParseName(issuer.Raw)
	if err != nil {
		return der.WithField(err, "issuer")
	}
	serial, err := ias.ReadInteger()
	if err != nil {
		return der.WithField(err, "serialNumber")
	}
	if err := ias.Finish(); err != nil {
		return err
	}
	si.Issuer = name
	si.RawIssuer = bytes.Clone(issuer.Raw)
	si.SerialNumber = bytes.Clone(serial)
	return nil
}

// parseSignatureAlgorithm accepts a bare public-key algorithm such as
// rsaEncryption or a combined signature algorithm.
func parseSignatureAlgorithm(si *SignerInfo, seq *der.Cursor) error {
	alg, err := parseAlgorithm(seq)
	if err != nil {
		return err
	}
	si.SignatureAlgorithm = alg
	switch {
	case alg == oid.RSAEncryption:
		si.PublicKeyAlgorithm, si.Encoding = oid.RSAEncryption, "pkcs1"
	case alg == oid.ECPublicKey:
		si.PublicKeyAlgorithm, si.Encoding = oid.ECPublicKey, "x962"
	default:
		scheme, ok := oid.Signature(alg)
		if !ok {
			return der.Errorf(der.KindUnknownAlgorithm, "%s is not a signature algorithm", alg)
		}
		si.PublicKeyAlgorithm, si.Encoding = scheme.PublicKey, scheme.Encoding
	}
	return nil
}
