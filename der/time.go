package der

import "time"

const (
	utcTimeLen         = len("YYMMDDHHMMSSZ")
	generalizedTimeLen = len("YYYYMMDDHHMMSSZ")
)

// ParseUTCTime decodes UTCTime content of the form YYMMDDHHMMSSZ into Unix
// epoch seconds. Two-digit years below 50 are in the 21st century (RFC 5280
// section 4.1.2.5.1).
func ParseUTCTime(content []byte) (int64, error) {
	if len(content) != utcTimeLen || content[utcTimeLen-1] != 'Z' {
		return 0, Errorf(KindInvalidTimeFormat, "UTCTime %q is not YYMMDDHHMMSSZ", content)
	}
	d, ok := digits(content[:utcTimeLen-1])
	if !ok {
		return 0, Errorf(KindInvalidTimeFormat, "UTCTime %q has non-digit characters", content)
	}
	year := d[0]*10 + d[1]
	if year < 50 {
		year += 2000
	} else {
		year += 1900
	}
	return epoch(content, year, d[2:])
}

// ParseGeneralizedTime decodes GeneralizedTime content of the form
// YYYYMMDDHHMMSSZ into Unix epoch seconds.
func ParseGeneralizedTime(content []byte) (int64, error) {
	if len(content) != generalizedTimeLen || content[generalizedTimeLen-1] != 'Z' {
		return 0, Errorf(KindInvalidTimeFormat, "GeneralizedTime %q is not YYYYMMDDHHMMSSZ", content)
	}
	d, ok := digits(content[:generalizedTimeLen-1])
	if !ok {
		return 0, Errorf(KindInvalidTimeFormat, "GeneralizedTime %q has non-digit characters", content)
	}
	year := d[0]*1000 + d[1]*100 + d[2]*10 + d[3]
	return epoch(content, year, d[4:])
}

func digits(b []byte) ([]int, bool) {
	d := make([]int, len(b))
	for i, c := range b {
		if c < '0' || c > '9' {
			return nil, false
		}
		d[i] = int(c - '0')
	}
	return d, true
}

// epoch validates MMDDHHMMSS digit pairs and converts them. A leap second
// is accepted; midnight is only 000000.
func epoch(raw []byte, year int, d []int) (int64, error) {
	mon := d[0]*10 + d[1]
	day := d[2]*10 + d[3]
	hour := d[4]*10 + d[5]
	minute := d[6]*10 + d[7]
	sec := d[8]*10 + d[9]

	if mon < 1 || mon > 12 {
		return 0, Errorf(KindInvalidTimeFormat, "%q: month %d out of range", raw, mon)
	}
	if day < 1 || day > daysIn(year, time.Month(mon)) {
		return 0, Errorf(KindInvalidTimeFormat, "%q: day %d out of range", raw, day)
	}
	if hour > 23 || minute > 59 || sec > 60 {
		return 0, Errorf(KindInvalidTimeFormat, "%q: time of day out of range", raw)
	}
	return time.Date(year, time.Month(mon), day, hour, minute, sec, 0, time.UTC).Unix(), nil
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
