// Package der decodes Distinguished Encoding Rules (X.690) tag-length-value
// units from a fully materialized byte buffer.
//
// Nodes returned by ReadNext and Cursor borrow the input buffer. Callers that
// keep decoded bytes beyond the lifetime of the input must copy them.
package der

import "fmt"

// Class is the ASN.1 tag class (X.690 section 8.1.2.2).
type Class uint8

const (
	ClassUniversal Class = iota
	ClassApplication
	ClassContextSpecific
	ClassPrivate
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context"
	default:
		return "private"
	}
}

// Universal tag numbers (X.680 table 1).
const (
	TagBoolean         uint32 = 1
	TagInteger         uint32 = 2
	TagBitString       uint32 = 3
	TagOctetString     uint32 = 4
	TagNull            uint32 = 5
	TagOID             uint32 = 6
	TagEnumerated      uint32 = 10
	TagUTF8String      uint32 = 12
	TagSequence        uint32 = 16
	TagSet             uint32 = 17
	TagNumericString   uint32 = 18
	TagPrintableString uint32 = 19
	TagT61String       uint32 = 20
	TagIA5String       uint32 = 22
	TagUTCTime         uint32 = 23
	TagGeneralizedTime uint32 = 24
	TagVisibleString   uint32 = 26
	TagUniversalString uint32 = 28
	TagBMPString       uint32 = 30
)

// Identifier octet layout (X.690 section 8.1.2).
const (
	classShift     = 6
	constructedBit = 0x20
	tagNumMask     = 0x1f
	moreOctetsBit  = 0x80
	lenLongForm    = 0x80
	lenIndefinite  = 0x80
	lenReserved    = 0xff
	maxLenOctets   = 4
	maxTagNumber   = 1<<28 - 1
)

// Node is one decoded TLV unit. Content and Raw are views into the buffer
// passed to ReadNext.
type Node struct {
	Class       Class
	Constructed bool
	Tag         uint32
	Content     []byte
	HeaderLen   int
	Raw         []byte
}

// Is reports whether the node has the given identifier.
func (n Node) Is(class Class, constructed bool, tag uint32) bool {
	return n.Class == class && n.Constructed == constructed && n.Tag == tag
}

// Len returns the total encoded size of the node.
func (n Node) Len() int {
	return len(n.Raw)
}

func (n Node) String() string {
	return describe(n.Class, n.Constructed, n.Tag)
}

var universalNames = map[uint32]string{
	TagBoolean:         "BOOLEAN",
	TagInteger:         "INTEGER",
	TagBitString:       "BIT STRING",
	TagOctetString:     "OCTET STRING",
	TagNull:            "NULL",
	TagOID:             "OBJECT IDENTIFIER",
	TagEnumerated:      "ENUMERATED",
	TagUTF8String:      "UTF8String",
	TagSequence:        "SEQUENCE",
	TagSet:             "SET",
	TagNumericString:   "NumericString",
	TagPrintableString: "PrintableString",
	TagT61String:       "T61String",
	TagIA5String:       "IA5String",
	TagUTCTime:         "UTCTime",
	TagGeneralizedTime: "GeneralizedTime",
	TagVisibleString:   "VisibleString",
	TagUniversalString: "UniversalString",
	TagBMPString:       "BMPString",
}

func describe(class Class, constructed bool, tag uint32) string {
	var s string
	switch {
	case class == ClassUniversal && universalNames[tag] != "":
		s = universalNames[tag]
	case class == ClassContextSpecific:
		s = fmt.Sprintf("[%d]", tag)
	default:
		s = fmt.Sprintf("%s %d", class, tag)
	}
	if constructed && !(class == ClassUniversal && (tag == TagSequence || tag == TagSet)) {
		s += " (constructed)"
	}
	return s
}

// ReadNext decodes the TLV unit starting at buf[off] and returns it together
// with the offset of the byte following it.
func ReadNext(buf []byte, off int) (Node, int, error) {
	if off < 0 || off > len(buf) {
		return Node{}, off, Errorf(KindMalformedEncoding, "offset %d outside buffer of %d bytes", off, len(buf))
	}
	if len(buf)-off < 2 {
		return Node{}, off, Errorf(KindTruncatedInput, "need at least 2 header bytes at offset %d, have %d", off, len(buf)-off)
	}

	b := buf[off]
	n := Node{
		Class:       Class(b >> classShift),
		Constructed: b&constructedBit != 0,
		Tag:         uint32(b & tagNumMask),
	}
	i := off + 1

	if n.Tag == tagNumMask {
		tag, next, err := readHighTag(buf, i)
		if err != nil {
			return Node{}, off, err
		}
		n.Tag = tag
		i = next
	}

	length, next, err := readLength(buf, i)
	if err != nil {
		return Node{}, off, err
	}
	i = next

	if length > len(buf)-i {
		return Node{}, off, Errorf(KindTruncatedInput, "%s at offset %d declares %d content bytes, %d remain", n, off, length, len(buf)-i)
	}

	n.HeaderLen = i - off
	n.Content = buf[i : i+length]
	n.Raw = buf[off : i+length]
	return n, i + length, nil
}

// readHighTag decodes a high-tag-number form tag (X.690 section 8.1.2.4).
func readHighTag(buf []byte, i int) (uint32, int, error) {
	var tag uint32
	for first := true; ; first = false {
		if i >= len(buf) {
			return 0, i, Errorf(KindTruncatedInput, "high tag number runs past end of input")
		}
		c := buf[i]
		i++
		if first && c == moreOctetsBit {
			return 0, i, Errorf(KindMalformedEncoding, "high tag number has leading zero septet")
		}
		if tag > maxTagNumber>>7 {
			return 0, i, Errorf(KindMalformedEncoding, "tag number too large")
		}
		tag = tag<<7 | uint32(c&^moreOctetsBit)
		if c&moreOctetsBit == 0 {
			break
		}
	}
	if tag < tagNumMask {
		return 0, i, Errorf(KindMalformedEncoding, "tag number %d must use the low tag form", tag)
	}
	return tag, i, nil
}

// readLength decodes a definite length (X.690 section 10.1).
func readLength(buf []byte, i int) (int, int, error) {
	if i >= len(buf) {
		return 0, i, Errorf(KindTruncatedInput, "length octet missing")
	}
	l := buf[i]
	i++
	switch {
	case l < lenLongForm:
		return int(l), i, nil
	case l == lenIndefinite:
		return 0, i, Errorf(KindUnsupportedEncoding, "indefinite length")
	case l == lenReserved:
		return 0, i, Errorf(KindMalformedEncoding, "reserved length octet 0xff")
	}

	count := int(l &^ lenLongForm)
	if count > maxLenOctets {
		return 0, i, Errorf(KindUnsupportedEncoding, "length uses %d octets", count)
	}
	if count > len(buf)-i {
		return 0, i, Errorf(KindTruncatedInput, "length needs %d octets, %d remain", count, len(buf)-i)
	}
	if buf[i] == 0 {
		return 0, i, Errorf(KindMalformedEncoding, "long-form length has leading zero")
	}
	length := 0
	for _, c := range buf[i : i+count] {
		length = length<<8 | int(c)
	}
	if length < 0 {
		return 0, i, Errorf(KindUnsupportedEncoding, "length overflows int")
	}
	if length < lenLongForm {
		return 0, i, Errorf(KindMalformedEncoding, "length %d must use the short form", length)
	}
	return length, i + count, nil
}
