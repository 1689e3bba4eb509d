package x509cert

import (
	"bytes"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
)

// parseExtensions decodes the content of the [3] wrapper. Unknown
// extensions are kept but not interpreted.
func parseExtensions(cert *Certificate, content []byte) error {
	wrapper := der.NewCursor(content)
	exts, err := wrapper.Sequence()
	if err != nil {
		return err
	}
	if err := wrapper.Finish(); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for !exts.Empty() {
		ext, err := parseExtension(exts)
		if err != nil {
			return err
		}
		if seen[ext.OID] {
			return der.Errorf(der.KindInvalidValue, "extension %s appears twice", ext.OID)
		}
		seen[ext.OID] = true

		if err := applyExtension(cert, ext); err != nil {
			return der.WithField(err, ext.ID.String())
		}
		cert.Extensions = append(cert.Extensions, ext)
	}
	return nil
}

func parseExtension(exts *der.Cursor) (Extension, error) {
	seq, err := exts.Sequence()
	if err != nil {
		return Extension{}, err
	}
	id, err := seq.ReadObjectIdentifier()
	if err != nil {
		return Extension{}, err
	}
	ext := Extension{ID: oid.Lookup(id), OID: id.String()}
	if crit, ok, err := seq.Optional(der.ClassUniversal, false, der.TagBoolean); err != nil {
		return Extension{}, der.WithField(err, ext.OID)
	} else if ok {
		if ext.Critical, err = der.ParseBoolean(crit.Content); err != nil {
			return Extension{}, der.WithField(err, ext.OID+".critical")
		}
	}
	value, err := seq.ReadOctetString()
	if err != nil {
		return Extension{}, der.WithField(err, ext.OID+".extnValue")
	}
	if err := seq.Finish(); err != nil {
		return Extension{}, der.WithField(err, ext.OID)
	}
	ext.Value = bytes.Clone(value)
	return ext, nil
}

func applyExtension(cert *Certificate, ext Extension) error {
	switch ext.ID {
	case oid.SubjectKeyIdentifier:
		c := der.NewCursor(ext.Value)
		id, err := c.ReadOctetString()
		if err != nil {
			return err
		}
		if err := c.Finish(); err != nil {
			return err
		}
		cert.SubjectKeyID = bytes.Clone(id)

	case oid.AuthorityKeyIdentifier:
		c := der.NewCursor(ext.Value)
		seq, err := c.Sequence()
		if err != nil {
			return err
		}
		if err := c.Finish(); err != nil {
			return err
		}
		if kid, ok, err := seq.Optional(der.ClassContextSpecific, false, 0); err != nil {
			return err
		} else if ok {
			cert.AuthorityKeyID = bytes.Clone(kid.Content)
		}

	case oid.BasicConstraints:
		c := der.NewCursor(ext.Value)
		seq, err := c.Sequence()
		if err != nil {
			return err
		}
		if err := c.Finish(); err != nil {
			return err
		}
		if seq.PeekIs(der.ClassUniversal, false, der.TagBoolean) {
			if cert.IsCA, err = seq.ReadBoolean(); err != nil {
				return err
			}
		}
	}
	return nil
}
