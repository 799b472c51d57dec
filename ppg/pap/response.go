package pap

import (
	"fmt"
	"strings"
	"time"
)

// doctype is prefixed to every PAP document this package emits.
const doctype = `<?xml version="1.0"?>` + "\n" +
	`<!DOCTYPE pap PUBLIC "-//WAPFORUM//DTD PAP 1.0//EN" "http://www.wapforum.org/DTD/pap_1.0.dtd">` + "\n"

// SenderName builds the `sender-name` attribute value PAP responses
// echo back to the PI: "<official>; WAP/1.3 (<product>/<version>)".
func SenderName(officialName, productName, version string) string {
	return fmt.Sprintf("%s; WAP/1.3 (%s/%s)", officialName, productName, version)
}

// sanitizeFragment deletes offending characters outright rather than
// entity-encoding them, matching the original gateway's
// bad-message-fragment behaviour byte for byte. This preserves a known
// quirk rather than fixing it.
func sanitizeFragment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"', '<', '>', '&':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BadMessageResponse emits a <badmessage-response> document reporting a
// malformed PAP control entity that could not be processed at all.
func BadMessageResponse(code Code, desc string, fragment string) []byte {
	var b strings.Builder
	b.WriteString(doctype)
	fmt.Fprintf(&b, `<pap><badmessage-response code="%d" desc=%q bad-message-fragment=%q/></pap>`,
		int(code), desc, sanitizeFragment(fragment))
	return []byte(b.String())
}

// PushResponse emits the success <push-response> document for an
// accepted push.
func PushResponse(pushID string, senderName string, replyTime time.Time) []byte {
	var b strings.Builder
	b.WriteString(doctype)
	fmt.Fprintf(&b, `<pap><push-response><response-result code="%d" desc=%q/>`,
		int(CodeAccepted), Describe(CodeAccepted))
	fmt.Fprintf(&b, `<push-id push-id=%q/><sender-name value=%q/><reply-time value=%q/></push-response></pap>`,
		pushID, senderName, FormatTimestamp(replyTime))
	return []byte(b.String())
}

// ErrorResponse emits a <push-response> document reporting a terminal
// error for the push (duplicate id, capabilities mismatch, forbidden,
// transformation failure, bearer unavailable, or an OTA-abort-mapped
// code), echoing sender identity back to the PI.
func ErrorResponse(code Code, desc, pushID, senderName, senderAddr string, replyTime time.Time) []byte {
	var b strings.Builder
	b.WriteString(doctype)
	fmt.Fprintf(&b, `<pap><push-response><response-result code="%d" desc=%q/>`, int(code), desc)
	if pushID != "" {
		fmt.Fprintf(&b, `<push-id push-id=%q/>`, pushID)
	}
	fmt.Fprintf(&b, `<sender-name value=%q/><reply-time value=%q/><sender-address value=%q/>`,
		senderName, FormatTimestamp(replyTime), senderAddr)
	b.WriteString(`</push-response></pap>`)
	return []byte(b.String())
}

// DuplicateResponse is ErrorResponse fixed to CodeDuplicatePushID, kept
// as a named entry point because it is the one error response the PI
// can expect on essentially every run that resubmits a push id.
func DuplicateResponse(pushID, senderName, senderAddr string, replyTime time.Time) []byte {
	return ErrorResponse(CodeDuplicatePushID, Describe(CodeDuplicatePushID), pushID, senderName, senderAddr, replyTime)
}
