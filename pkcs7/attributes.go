package pkcs7

import (
	"bytes"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
)

var attrBits = map[oid.ID]AttrSet{
	oid.ContentType:       AttrContentType,
	oid.SigningTime:       AttrSigningTime,
	oid.MessageDigest:     AttrMessageDigest,
	oid.SMIMECapabilities: AttrSMIMECapabilities,
	oid.MSSpOpusInfo:      AttrMSOpusInfo,
	oid.MSStatementType:   AttrMSStatementType,
}

// parseAuthAttrs walks the [0] IMPLICIT SET OF Attribute. Unrecognized
// attributes are skipped but stay part of AuthAttrs.
func parseAuthAttrs(si *SignerInfo, n der.Node, msg *Message) error {
	attrs := der.NewCursor(n.Content)
	for !attrs.Empty() {
		seq, err := attrs.Sequence()
		if err != nil {
			return err
		}
		id, err := seq.ReadObjectIdentifier()
		if err != nil {
			return err
		}
		values, err := seq.Set()
		if err != nil {
			return der.WithField(err, id.String())
		}
		if err := seq.Finish(); err != nil {
			return der.WithField(err, id.String())
		}

		kind := oid.Lookup(id)
		bit, known := attrBits[kind]
		if !known {
			continue
		}
		if si.AASet.Has(bit) {
			return der.WithField(der.Errorf(der.KindInvalidValue, "repeated attribute"), kind.String())
		}
		si.AASet |= bit
		if err := parseAttrValue(si, kind, values, msg); err != nil {
			return der.WithField(err, kind.String())
		}
	}

	if !si.AASet.Has(AttrContentType) || !si.AASet.Has(AttrMessageDigest) {
		return der.Errorf(der.KindInvalidValue, "contentType and messageDigest are mandatory, have %s", si.AASet)
	}

	si.AuthAttrs = bytes.Clone(n.Raw)
	si.AuthAttrs[0] = setTag
	return nil
}

func parseAttrValue(si *SignerInfo, kind oid.ID, values *der.Cursor, msg *Message) error {
	if values.Empty() {
		return der.Errorf(der.KindInvalidValue, "attribute has no value")
	}
	switch kind {
	case oid.ContentType:
		ct, err := values.ReadObjectIdentifier()
		if err != nil {
			return err
		}
		if ct.String() != msg.DataTypeOID {
			return der.Errorf(der.KindInvalidValue, "%s does not match content type %s", ct, msg.DataTypeOID)
		}
		si.ContentType = oid.Lookup(ct)

	case oid.MessageDigest:
		digest, err := values.ReadOctetString()
		if err != nil {
			return err
		}
		si.MessageDigest = bytes.Clone(digest)

	case oid.SigningTime:
		t, err := values.ReadTime()
		if err != nil {
			return err
		}
		si.SigningTime = t

	case oid.MSSpOpusInfo, oid.MSStatementType:
		if msg.DataType != oid.MSIndirectData {
			return der.Errorf(der.KindInvalidValue, "Authenticode attribute on %s content", msg.DataTypeOID)
		}
		if err := values.Skip(); err != nil {
			return err
		}

	default:
		if err := values.Skip(); err != nil {
			return err
		}
	}
	if !values.Empty() {
		return der.Errorf(der.KindInvalidValue, "attribute has more than one value")
	}
	return nil
}
