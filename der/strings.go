package der

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// IsStringTag reports whether tag is a universal character string type the
// decoder understands.
func IsStringTag(tag uint32) bool {
	switch tag {
	case TagUTF8String, TagNumericString, TagPrintableString, TagT61String,
		TagIA5String, TagVisibleString, TagUniversalString, TagBMPString:
		return true
	}
	return false
}

// ParseString decodes the content of a universal character string into UTF-8.
func ParseString(tag uint32, content []byte) (string, error) {
	switch tag {
	case TagUTF8String:
		if !utf8.Valid(content) {
			return "", Errorf(KindMalformedEncoding, "UTF8String is not valid UTF-8")
		}
		return string(content), nil
	case TagNumericString, TagPrintableString, TagIA5String, TagVisibleString:
		for _, c := range content {
			if c >= utf8.RuneSelf {
				return "", Errorf(KindMalformedEncoding, "%s contains non-ASCII octet %#02x", universalNames[tag], c)
			}
		}
		return string(content), nil
	case TagT61String:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		if err != nil {
			return "", &Error{Kind: KindMalformedEncoding, Message: "T61String", Cause: err}
		}
		return string(out), nil
	case TagBMPString:
		if len(content)%2 != 0 {
			return "", Errorf(KindMalformedEncoding, "BMPString has odd length %d", len(content))
		}
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(content)
		if err != nil {
			return "", &Error{Kind: KindMalformedEncoding, Message: "BMPString", Cause: err}
		}
		return string(out), nil
	case TagUniversalString:
		if len(content)%4 != 0 {
			return "", Errorf(KindMalformedEncoding, "UniversalString length %d is not a multiple of 4", len(content))
		}
		out, err := utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM).NewDecoder().Bytes(content)
		if err != nil {
			return "", &Error{Kind: KindMalformedEncoding, Message: "UniversalString", Cause: err}
		}
		return string(out), nil
	}
	return "", Errorf(KindUnexpectedTag, "%s is not a character string", describe(ClassUniversal, false, tag))
}
