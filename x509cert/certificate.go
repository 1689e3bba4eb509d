// Package x509cert decodes DER X.509 certificates (RFC 5280) into immutable
// records. Decoded records never alias the input buffer.
package x509cert

import (
	"bytes"
	"time"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
)

// PublicKey is the subjectPublicKeyInfo of a certificate.
type PublicKey struct {
	Algorithm oid.ID
	// Curve is set for ECDSA keys with a named curve.
	Curve oid.ID
	// Key is the subjectPublicKey BIT STRING payload.
	Key []byte
}

// Name returns the symbolic algorithm name, e.g. "rsa".
func (p PublicKey) Name() string { return p.Algorithm.String() }

// Len returns the length of the raw key material in bytes.
func (p PublicKey) Len() int { return len(p.Key) }

// Signature is the outer signature of a certificate.
type Signature struct {
	Algorithm          oid.ID
	PublicKeyAlgorithm oid.ID
	Hash               oid.ID
	Encoding           string
	Value              []byte
}

// Extension is one certificate extension, recognized or not.
type Extension struct {
	ID       oid.ID
	OID      string
	Critical bool
	Value    []byte
}

// Certificate is a decoded X.509 certificate.
type Certificate struct {
	Raw []byte
	// TBS is the encoded tbsCertificate, the bytes covered by Signature.
	TBS          []byte
	Version      int
	SerialNumber []byte

	Issuer     Name
	Subject    Name
	RawIssuer  []byte
	RawSubject []byte

	// ValidFrom and ValidTo are Unix epoch seconds.
	ValidFrom int64
	ValidTo   int64

	PublicKey PublicKey
	Signature Signature

	Extensions     []Extension
	SubjectKeyID   []byte
	AuthorityKeyID []byte
	IsCA           bool
}

// NotBefore returns ValidFrom as a time.Time in UTC.
func (c *Certificate) NotBefore() time.Time { return time.Unix(c.ValidFrom, 0).UTC() }

// NotAfter returns ValidTo as a time.Time in UTC.
func (c *Certificate) NotAfter() time.Time { return time.Unix(c.ValidTo, 0).UTC() }

// SelfIssued reports whether issuer and subject are the same and, when both
// key identifiers are present, they agree.
func (c *Certificate) SelfIssued() bool {
	if !bytes.Equal(c.RawIssuer, c.RawSubject) {
		return false
	}
	if c.AuthorityKeyID != nil && c.SubjectKeyID != nil {
		return bytes.Equal(c.AuthorityKeyID, c.SubjectKeyID)
	}
	return true
}

// MatchesIssuerSerial reports whether the certificate is the one named by an
// issuerAndSerialNumber reference.
func (c *Certificate) MatchesIssuerSerial(rawIssuer, serial []byte) bool {
	return bytes.Equal(c.RawIssuer, rawIssuer) && bytes.Equal(c.SerialNumber, serial)
}

// MatchesSubjectKeyID reports whether the certificate carries the given
// subject key identifier.
func (c *Certificate) MatchesSubjectKeyID(id []byte) bool {
	return c.SubjectKeyID != nil && bytes.Equal(c.SubjectKeyID, id)
}

// ParseCertificate decodes a single DER certificate. Trailing bytes after
// the certificate are an error.
func ParseCertificate(b []byte) (*Certificate, error) {
	top := der.NewCursor(b)
	outer, err := top.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return nil, der.WithField(err, "certificate")
	}
	if err := top.Finish(); err != nil {
		return nil, der.WithField(err, "certificate")
	}
	cert, err := parseCertificate(outer)
	if err != nil {
		return nil, der.WithField(err, "certificate")
	}
	return cert, nil
}

// ParseCertificateNode decodes a certificate that has already been read as a
// SEQUENCE node, as in a PKCS7 certificates set.
func ParseCertificateNode(n der.Node) (*Certificate, error) {
	if !n.Is(der.ClassUniversal, true, der.TagSequence) {
		return nil, der.WithField(der.Errorf(der.KindUnexpectedTag, "expected SEQUENCE, found %s", n), "certificate")
	}
	cert, err := parseCertificate(n)
	if err != nil {
		return nil, der.WithField(err, "certificate")
	}
	return cert, nil
}

func parseCertificate(outer der.Node) (*Certificate, error) {
	seq := der.NewCursor(outer.Content)
	tbsNode, err := seq.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return nil, der.WithField(err, "tbsCertificate")
	}

	algNode, err := seq.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return nil, der.WithField(err, "signatureAlgorithm")
	}
	sigAlg, err := parseSignatureAlgorithm(algNode)
	if err != nil {
		return nil, der.WithField(err, "signatureAlgorithm")
	}

	sigBits, err := seq.ReadBitString()
	if err != nil {
		return nil, der.WithField(err, "signatureValue")
	}
	if sigBits.UnusedBits != 0 {
		return nil, der.WithField(der.Errorf(der.KindMalformedEncoding, "%d unused bits", sigBits.UnusedBits), "signatureValue")
	}
	if err := seq.Finish(); err != nil {
		return nil, err
	}

	cert := &Certificate{
		Raw: bytes.Clone(outer.Raw),
		TBS: bytes.Clone(tbsNode.Raw),
	}
	if err := parseTBS(cert, tbsNode, algNode); err != nil {
		return nil, der.WithField(err, "tbsCertificate")
	}
	sigAlg.Value = bytes.Clone(sigBits.Bytes)
	cert.Signature = sigAlg
	return cert, nil
}

func parseTBS(cert *Certificate, tbsNode, outerAlg der.Node) error {
	tbs := der.NewCursor(tbsNode.Content)

	cert.Version = 1
	if ver, ok, err := tbs.Optional(der.ClassContextSpecific, true, 0); err != nil {
		return der.WithField(err, "version")
	} else if ok {
		v, err := parseVersion(ver)
		if err != nil {
			return der.WithField(err, "version")
		}
		cert.Version = v
	}

	serial, err := tbs.ReadInteger()
	if err != nil {
		return der.WithField(err, "serialNumber")
	}
	cert.SerialNumber = bytes.Clone(serial)

	alg, err := tbs.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return der.WithField(err, "signature")
	}
	if !bytes.Equal(alg.Raw, outerAlg.Raw) {
		return der.WithField(der.Errorf(der.KindInvalidValue, "does not match the outer signatureAlgorithm"), "signature")
	}

	issuer, err := tbs.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return der.WithField(err, "issuer")
	}
	if cert.Issuer, err = ParseName(issuer.Raw); err != nil {
		return der.WithField(err, "issuer")
	}
	cert.RawIssuer = bytes.Clone(issuer.Raw)

	validity, err := tbs.Sequence()
	if err != nil {
		return der.WithField(err, "validity")
	}
	if cert.ValidFrom, err = validity.ReadTime(); err != nil {
		return der.WithField(err, "validity.notBefore")
	}
	if cert.ValidTo, err = validity.ReadTime(); err != nil {
		return der.WithField(err, "validity.notAfter")
	}
	if err := validity.Finish(); err != nil {
		return der.WithField(err, "validity")
	}

	subject, err := tbs.Expect(der.ClassUniversal, true, der.TagSequence)
	if err != nil {
		return der.WithField(err, "subject")
	}
	if cert.Subject, err = ParseName(subject.Raw); err != nil {
		return der.WithField(err, "subject")
	}
	cert.RawSubject = bytes.Clone(subject.Raw)

	spki, err := tbs.Sequence()
	if err != nil {
		return der.WithField(err, "subjectPublicKeyInfo")
	}
	if cert.PublicKey, err = parsePublicKeyInfo(spki); err != nil {
		return der.WithField(err, "subjectPublicKeyInfo")
	}

	// issuerUniqueID and subjectUniqueID are carried but never used.
	for _, u := range []struct {
		tag   uint32
		field string
	}{{1, "issuerUniqueID"}, {2, "subjectUniqueID"}} {
		if _, _, err := tbs.Optional(der.ClassContextSpecific, false, u.tag); err != nil {
			return der.WithField(err, u.field)
		}
	}

	if ext, ok, err := tbs.Optional(der.ClassContextSpecific, true, 3); err != nil {
		return der.WithField(err, "extensions")
	} else if ok {
		if err := parseExtensions(cert, ext.Content); err != nil {
			return der.WithField(err, "extensions")
		}
	}
	return tbs.Finish()
}

func parseVersion(n der.Node) (int, error) {
	c := der.NewCursor(n.Content)
	raw, err := c.ReadInteger()
	if err != nil {
		return 0, err
	}
	if err := c.Finish(); err != nil {
		return 0, err
	}
	v, err := der.ParseInt64(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 2 {
		return 0, der.Errorf(der.KindUnsupportedEncoding, "version %d", v)
	}
	return int(v) + 1, nil
}

// parseSignatureAlgorithm decodes an AlgorithmIdentifier that must name a
// known signature scheme.
func parseSignatureAlgorithm(n der.Node) (Signature, error) {
	c := der.NewCursor(n.Content)
	id, err := c.ReadObjectIdentifier()
	if err != nil {
		return Signature{}, err
	}
	alg := oid.Lookup(id)
	scheme, ok := oid.Signature(alg)
	if !ok {
		return Signature{}, der.Errorf(der.KindUnknownAlgorithm, "signature algorithm %s", id)
	}
	// Parameters are NULL for RSA and absent for ECDSA and Ed25519.
	if !c.Empty() {
		if err := c.ReadNull(); err != nil {
			return Signature{}, der.WithField(err, "parameters")
		}
	}
	if err := c.Finish(); err != nil {
		return Signature{}, err
	}
	return Signature{
		Algorithm:          alg,
		PublicKeyAlgorithm: scheme.PublicKey,
		Hash:               scheme.Hash,
		Encoding:           scheme.Encoding,
	}, nil
}

func parsePublicKeyInfo(spki *der.Cursor) (PublicKey, error) {
	alg, err := spki.Sequence()
	if err != nil {
		return PublicKey{}, der.WithField(err, "algorithm")
	}
	id, err := alg.ReadObjectIdentifier()
	if err != nil {
		return PublicKey{}, der.WithField(err, "algorithm")
	}
	pk := PublicKey{Algorithm: oid.Lookup(id)}
	switch pk.Algorithm {
	case oid.RSAEncryption:
		if !alg.Empty() {
			if err := alg.ReadNull(); err != nil {
				return PublicKey{}, der.WithField(err, "algorithm.parameters")
			}
		}
	case oid.ECPublicKey:
		curve, err := alg.ReadObjectIdentifier()
		if err != nil {
			return PublicKey{}, der.WithField(err, "algorithm.namedCurve")
		}
		pk.Curve = oid.Lookup(curve)
		if !oid.IsCurve(pk.Curve) {
			return PublicKey{}, der.WithField(der.Errorf(der.KindUnknownAlgorithm, "curve %s", curve), "algorithm.namedCurve")
		}
	case oid.Ed25519:
	default:
		return PublicKey{}, der.WithField(der.Errorf(der.KindUnknownAlgorithm, "public key algorithm %s", id), "algorithm")
	}
	if err := alg.Finish(); err != nil {
		return PublicKey{}, der.WithField(err, "algorithm")
	}

	bits, err := spki.ReadBitString()
	if err != nil {
		return PublicKey{}, der.WithField(err, "subjectPublicKey")
	}
	if bits.UnusedBits != 0 {
		return PublicKey{}, der.WithField(der.Errorf(der.KindMalformedEncoding, "%d unused bits", bits.UnusedBits), "subjectPublicKey")
	}
	if err := spki.Finish(); err != nil {
		return PublicKey{}, err
	}
	pk.Key = bytes.Clone(bits.Bytes)
	return pk, nil
}
