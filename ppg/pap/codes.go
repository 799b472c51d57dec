// Package pap builds PAP (Push Access Protocol) XML response documents
// and implements the PAP numeric error taxonomy.
package pap

import "fmt"

// Code is a PAP numeric response/reason code.
type Code int

// Response codes.
const (
	CodeAccepted                   Code = 1001
	CodeBadRequest                 Code = 2000
	CodeAddressError               Code = 2001
	CodeTransformationFailure      Code = 2002
	CodeCapabilitiesMismatch       Code = 2003
	CodeForbidden                  Code = 2004
	CodeRequiredBearerNotAvailable Code = 2005
	CodeDuplicatePushID            Code = 2007
)

// abortBase is the linear-map constant for converting an OTA abort
// reason to a PAP code:
// ota_abort_to_pap(reason) = 5026 + (reason - 0xEA).
const abortBase = 5026

// OTAAbortReasonBase is the first OTA abort reason value the linear map
// accepts (USERREQ == 0xEA).
const OTAAbortReasonBase = 0xEA

// AbortToCode maps an OTA abort reason byte (0xEA..0xFF) to its PAP code.
func AbortToCode(reason int) Code {
	return Code(abortBase + (reason - OTAAbortReasonBase))
}

var descriptions = map[Code]string{
	CodeAccepted:                   "Accepted for processing",
	CodeBadRequest:                 "Bad request",
	CodeAddressError:               "Address error",
	CodeTransformationFailure:      "Content transformation failed",
	CodeCapabilitiesMismatch:       "Requested capabilities not supported",
	CodeForbidden:                  "Forbidden (delivery deadline has passed)",
	CodeRequiredBearerNotAvailable: "Required bearer or network not available",
	CodeDuplicatePushID:            "Duplicate push id",
}

// Describe returns a human-readable description for code. Codes in the
// abort-mapped range (>= 5026) have no static description here and, like
// any other code missing from the table, get the generic "code N" text.
func Describe(code Code) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("code %d", int(code))
}

// String implements fmt.Stringer.
func (c Code) String() string {
	return fmt.Sprintf("%d (%s)", int(c), Describe(c))
}
