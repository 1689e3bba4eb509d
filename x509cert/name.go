package x509cert

import (
	"strings"

	"github.com/sensiblebit/bootkit/der"
	"github.com/sensiblebit/bootkit/oid"
)

// Attribute is one AttributeTypeAndValue of a distinguished name.
type Attribute struct {
	Type  oid.ID
	OID   string
	Value string
}

// Label returns the short rendering label, falling back to the dotted OID.
func (a Attribute) Label() string {
	if l := a.Type.Label(); l != "" {
		return l
	}
	return a.OID
}

// Name is a distinguished name with its attributes in encoding order.
type Name struct {
	Attributes []Attribute
}

// last returns the value of the final attribute of the given type. Later
// RDNs are more specific, so they win when a type repeats.
func (n Name) last(id oid.ID) string {
	for i := len(n.Attributes) - 1; i >= 0; i-- {
		if n.Attributes[i].Type == id {
			return n.Attributes[i].Value
		}
	}
	return ""
}

// CommonName returns the most specific commonName, or "".
func (n Name) CommonName() string { return n.last(oid.CommonName) }

// Organization returns the most specific organizationName, or "".
func (n Name) Organization() string { return n.last(oid.OrganizationName) }

// namePrefixMatch is the number of leading bytes compared when deciding
// whether the organization already appears in the common name.
const namePrefixMatch = 7

// String renders the name the way signer names are displayed at boot: the
// organization and common name joined as "O: CN", collapsed to the common
// name alone when it already starts with the organization. Without either it
// falls back to the email address.
func (n Name) String() string {
	cn := n.CommonName()
	o := n.Organization()
	switch {
	case cn == "" && o == "":
		return n.last(oid.EmailAddress)
	case cn == "":
		return o
	case o == "":
		return cn
	case strings.HasPrefix(cn, o):
		return cn
	case len(cn) >= namePrefixMatch && len(o) >= namePrefixMatch &&
		cn[:namePrefixMatch] == o[:namePrefixMatch]:
		return cn
	}
	return o + ": " + cn
}

// Full renders every attribute as label=value in encoding order.
func (n Name) Full() string {
	parts := make([]string, len(n.Attributes))
	for i, a := range n.Attributes {
		parts[i] = a.Label() + "=" + a.Value
	}
	return strings.Join(parts, ", ")
}

// ParseName decodes Name ::= SEQUENCE OF RelativeDistinguishedName. raw is
// the full encoded SEQUENCE.
func ParseName(raw []byte) (Name, error) {
	top := der.NewCursor(raw)
	rdns, err := top.Sequence()
	if err != nil {
		return Name{}, err
	}
	if err := top.Finish(); err != nil {
		return Name{}, err
	}
	var name Name
	for i := 0; !rdns.Empty(); i++ {
		set, err := rdns.Set()
		if err != nil {
			return Name{}, err
		}
		if set.Empty() {
			return Name{}, der.Errorf(der.KindInvalidValue, "empty relative distinguished name %d", i)
		}
		for !set.Empty() {
			attr, err := parseAttribute(set)
			if err != nil {
				return Name{}, err
			}
			name.Attributes = append(name.Attributes, attr)
		}
	}
	return name, nil
}

func parseAttribute(set *der.Cursor) (Attribute, error) {
	atv, err := set.Sequence()
	if err != nil {
		return Attribute{}, err
	}
	id, err := atv.ReadObjectIdentifier()
	if err != nil {
		return Attribute{}, err
	}
	val, err := atv.Next()
	if err != nil {
		return Attribute{}, der.WithField(err, id.String())
	}
	if err := atv.Finish(); err != nil {
		return Attribute{}, der.WithField(err, id.String())
	}
	if val.Class != der.ClassUniversal || val.Constructed || !der.IsStringTag(val.Tag) {
		return Attribute{}, der.WithField(der.Errorf(der.KindUnsupportedEncoding, "attribute value is %s, not a character string", val), id.String())
	}
	s, err := der.ParseString(val.Tag, val.Content)
	if err != nil {
		return Attribute{}, der.WithField(err, id.String())
	}
	return Attribute{Type: oid.Lookup(id), OID: id.String(), Value: s}, nil
}

// Equal reports whether two names have the same attributes in the same order.
func (n Name) Equal(other Name) bool {
	if len(n.Attributes) != len(other.Attributes) {
		return false
	}
	for i := range n.Attributes {
		if n.Attributes[i] != other.Attributes[i] {
			return false
		}
	}
	return true
}
