// Package pkcs7 decodes PKCS #7 / CMS SignedData messages (RFC 2315, RFC
// 5652) such as the detached Authenticode signatures attached to boot
// images. It extracts digests, signatures and signer references; it does not
// compute or verify anything.
package pkcs7

import (
	"bytes"
	"fmt"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
	"github.com/sensiblebit/bootkit/x509cert"
)

// Message is a decoded SignedData. It never aliases the input buffer.
type Message struct {
	// ContentType is the outer ContentInfo type, always oid.SignedData.
	ContentType      oid.ID
	Version          int
	DigestAlgorithms []oid.ID

	// DataType is the type of the encapsulated content. Unrecognized types
	// are Unknown with the dotted form kept in DataTypeOID.
	DataType    oid.ID
	DataTypeOID string
	// Data holds the content octets of the encapsulated element, the bytes a
	// messageDigest attribute is computed over. It is nil when detached.
	Data []byte
	// DataLen is the declared length of the encapsulated element's content.
	DataLen int
	// DataHeaderLen is the tag and length size of the encapsulated element.
	DataHeaderLen int

	Certificates []*x509cert.Certificate
	SignerInfos  []*SignerInfo
}

// Detached reports whether the message carries no encapsulated content.
func (m *Message) Detached() bool {
	return m.Data == nil
}

// FindSigner returns the embedded certificate that si refers to, or nil.
func (m *Message) FindSigner(si *SignerInfo) *x509cert.Certificate {
	for _, c := range m.Certificates {
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

// ParseMessage decodes a DER ContentInfo whose content is SignedData.
func ParseMessage(b []byte) (*Message, error) {
	top := der.NewCursor(b)
	ci, err := top.Sequence()
	if err != nil {
		return nil, der.WithField(err, "contentInfo")
	}
	if err := top.Finish(); err != nil {
		return nil, der.WithField(err, "contentInfo")
	}

	ct, err := ci.ReadObjectIdentifier()
	if err != nil {
		return nil, der.WithField(err, "contentInfo.contentType")
	}
	if oid.Lookup(ct) != oid.SignedData {
		return nil, der.WithField(der.Errorf(der.KindUnsupportedEncoding, "content type %s is not signedData", ct), "contentInfo.contentType")
	}
	content, err := ci.Explicit(0)
	if err != nil {
		return nil, der.WithField(err, "contentInfo.content")
	}
	if err := ci.Finish(); err != nil {
		return nil, der.WithField(err, "contentInfo")
	}

	msg := &Message{ContentType: oid.SignedData}
	if err := parseSignedData(msg, content); err != nil {
		return nil, der.WithField(err, "signedData")
	}
	for _, si := range msg.SignerInfos {
		si.Signer = msg.FindSigner(si)
	}
	return msg, nil
}

func parseSignedData(msg *Message, content *der.Cursor) error {
	sd, err := content.Sequence()
	if err != nil {
		return err
	}
	if err := content.Finish(); err != nil {
		return err
	}

	ver, err := sd.ReadInteger()
	if err != nil {
		return der.WithField(err, "version")
	}
	v, err := der.ParseInt64(ver)
	if err != nil {
		return der.WithField(err, "version")
	}
	if v != 1 && v != 3 {
		return der.WithField(der.Errorf(der.KindUnsupportedEncoding, "version %d", v), "version")
	}
	msg.Version = int(v)

	if msg.DigestAlgorithms, err = parseDigestAlgorithms(sd); err != nil {
		return der.WithField(err, "digestAlgorithms")
	}
	if err := parseEncapsulatedContent(msg, sd); err != nil {
		return der.WithField(err, "contentInfo")
	}

	if certs, ok, err := sd.Optional(der.ClassContextSpecific, true, 0); err != nil {
		return der.WithField(err, "certificates")
	} else if ok {
		if msg.Certificates, err = parseCertificates(certs.Content); err != nil {
			return der.WithField(err, "certificates")
		}
	}
	// CRLs play no part in boot-time verification.
	if _, _, err := sd.Optional(der.ClassContextSpecific, true, 1); err != nil {
		return der.WithField(err, "crls")
	}

	if msg.SignerInfos, err = parseSignerInfos(sd, msg); err != nil {
		return der.WithField(err, "signerInfos")
	}
	return sd.Finish()
}

func parseDigestAlgorithms(sd *der.Cursor) ([]oid.ID, error) {
	set, err := sd.Set()
	if err != nil {
		return nil, err
	}
	var algs []oid.ID
	for !set.Empty() {
		alg, err := parseAlgorithm(set)
		if err != nil {
			return nil, err
		}
		algs = append(algs, alg)
	}
	return algs, nil
}

// parseAlgorithm decodes an AlgorithmIdentifier whose parameters, if
// present, must be NULL.
func parseAlgorithm(c *der.Cursor) (oid.ID, error) {
	seq, err := c.Sequence()
	if err != nil {
		return oid.Unknown, err
	}
	id, err := seq.ReadObjectIdentifier()
	if err != nil {
		return oid.Unknown, err
	}
	if !seq.Empty() {
		if err := seq.ReadNull(); err != nil {
			return oid.Unknown, der.WithField(err, "parameters")
		}
	}
	if err := seq.Finish(); err != nil {
		return oid.Unknown, err
	}
	alg := oid.Lookup(id)
	if alg == oid.Unknown {
		return oid.Unknown, der.Errorf(der.KindUnknownAlgorithm, "%s", id)
	}
	return alg, nil
}

func parseEncapsulatedContent(msg *Message, sd *der.Cursor) error {
	ci, err := sd.Sequence()
	if err != nil {
		return err
	}
	ct, err := ci.ReadObjectIdentifier()
	if err != nil {
		return der.WithField(err, "contentType")
	}
	msg.DataType = oid.Lookup(ct)
	msg.DataTypeOID = ct.String()

	wrapper, ok, err := ci.Optional(der.ClassContextSpecific, true, 0)
	if err != nil {
		return der.WithField(err, "content")
	}
	if ok {
		inner := der.NewCursor(wrapper.Content)
		if inner.Empty() {
			return der.WithField(der.Errorf(der.KindUnexpectedTag, "empty [0] wrapper"), "content")
		}
		n, err := inner.Next()
		if err != nil {
			return der.WithField(err, "content")
		}
		if err := inner.Finish(); err != nil {
			return der.WithField(err, "content")
		}
		msg.Data = bytes.Clone(n.Content)
		if msg.Data == nil {
			msg.Data = []byte{}
		}
		msg.DataLen = len(n.Content)
		msg.DataHeaderLen = n.HeaderLen
	}
	return ci.Finish()
}

func parseCertificates(content []byte) ([]*x509cert.Certificate, error) {
	c := der.NewCursor(content)
	var certs []*x509cert.Certificate
	for i := 0; !c.Empty(); i++ {
		n, err := c.Next()
		if err != nil {
			return nil, der.WithField(err, fmt.Sprintf("[%d]", i))
		}
		// Attribute and other certificate formats are tagged; only plain
		// X.509 certificates are decoded.
		if !n.Is(der.ClassUniversal, true, der.TagSequence) {
			continue
		}
		cert, err := x509cert.ParseCertificateNode(n)
		if err != nil {
			return nil, der.WithField(err, fmt.Sprintf("[%d]", i))
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
