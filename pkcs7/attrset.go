package pkcs7

import "strings"

// AttrSet records which recognized signed attributes a SignerInfo carries.
type AttrSet uint32

const (
	AttrContentType AttrSet = 1 << iota
	AttrSigningTime
	AttrMessageDigest
	AttrSMIMECapabilities
	AttrMSOpusInfo
	AttrMSStatementType
)

var attrNames = []struct {
	bit  AttrSet
	name string
}{
	{AttrContentType, "contentType"},
	{AttrSigningTime, "signingTime"},
	{AttrMessageDigest, "messageDigest"},
	{AttrSMIMECapabilities, "smimeCapabilities"},
	{AttrMSOpusInfo, "msSpOpusInfo"},
	{AttrMSStatementType, "msStatementType"},
}

// Has reports whether every bit of a is set.
func (s AttrSet) Has(a AttrSet) bool {
	return s&a == a
}

func (s AttrSet) String() string {
	names := s.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Names returns the names of the set attributes in bit order.
func (s AttrSet) Names() []string {
	var names []string
	for _, a := range attrNames {
		if s.Has(a.bit) {
			names = append(names, a.name)
		}
	}
	return names
}

// ParseAttrName returns the bit for an attribute name as printed by String.
func ParseAttrName(name string) (AttrSet, bool) {
	for _, a := range attrNames {
		if strings.EqualFold(a.name, name) {
			return a.bit, true
		}
	}
	return 0, false
}
