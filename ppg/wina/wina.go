// Package wina implements X-Wap-Application-Id normalisation against the
// WINA (WAP Internet Assigned Numbers Authority) application-id table.
package wina

import "strings"

// DefaultNumber is the numeric application-id used when a header value
// does not match any registered WINA name ("wml.ua").
const DefaultNumber = "2"

// numbers maps a registered WINA name to its assigned WSP application-id
// number.
var numbers = map[string]string{
	"*":        "0",
	"push.sia": "1",
	"wml.ua":   DefaultNumber,
	"push.mms": "4",
}

// Normalize implements the application-id normalisation algorithm:
//  1. If the header contains ";app-encoding=", the URI part is dropped
//     and the coded value retained as-is.
//  2. Otherwise the value is matched against the WINA name table; a
//     match is replaced by its assigned numeric string.
//  3. An unmatched value defaults to DefaultNumber ("2", wml.ua).
//
// emit reports whether the normalised header should still be sent: it
// is false when the result equals DefaultNumber.
func Normalize(header string) (value string, emit bool) {
	header = strings.TrimSpace(header)

	if idx := strings.Index(header, ";app-encoding="); idx >= 0 {
		coded := strings.TrimSpace(header[idx+len(";app-encoding="):])
		return coded, coded != DefaultNumber
	}

	if num, ok := numbers[header]; ok {
		return num, num != DefaultNumber
	}

	return DefaultNumber, false
}
