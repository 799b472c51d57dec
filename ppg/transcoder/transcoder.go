// Package transcoder implements the content transformation step of
// push processing: compiling text MIME types to their WAP binary
// equivalents, or passing content through unchanged.
package transcoder

import (
	"fmt"
	"net/http"
)

// Compiler compiles a text body into its binary wire form. Production
// wiring supplies WML/SI compiler implementations this repo does not
// contain; tests inject fakes.
type Compiler func(body []byte) ([]byte, error)

type entry struct {
	targetMIME string
	compile    Compiler
}

// Transcoder dispatches a source Content-Type to a Compiler, modelled
// after a discriminant-keyed dispatch table (here: MIME type).
type Transcoder struct {
	table map[string]entry
}

// New creates an empty Transcoder. Use Register to populate the
// dispatch table.
func New() *Transcoder {
	return &Transcoder{table: make(map[string]entry)}
}

// Register adds a source MIME type → compiled-target-MIME mapping.
func (t *Transcoder) Register(sourceMIME, targetMIME string, compile Compiler) {
	t.table[sourceMIME] = entry{targetMIME: targetMIME, compile: compile}
}

// NewDefault creates a Transcoder pre-registered with the WML and SI
// compiled-content transformations.
func NewDefault(wmlCompiler, siCompiler Compiler) *Transcoder {
	t := New()
	t.Register("text/vnd.wap.wml", "application/vnd.wap.wmlc", wmlCompiler)
	t.Register("text/vnd.wap.si", "application/vnd.wap.sic", siCompiler)
	return t
}

// Transform:
//   - headers == nil is itself an error ("fails if push headers are absent").
//   - a missing Content-Type is an error.
//   - `Cache-Control: no-transform` forces pass-through (transformed=false).
//   - an unrecognised Content-Type is a pass-through, not an error.
//   - a recognised type is compiled; compiler errors propagate.
func (t *Transcoder) Transform(headers http.Header, body []byte) (newMIME string, newBody []byte, transformed bool, err error) {
	if headers == nil {
		return "", nil, false, fmt.Errorf("transcoder: push headers absent")
	}

	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return "", nil, false, fmt.Errorf("transcoder: Content-Type missing")
	}

	if cc := headers.Get("Cache-Control"); cc == "no-transform" {
		return contentType, body, false, nil
	}

	e, ok := t.table[contentType]
	if !ok {
		return contentType, body, false, nil
	}

	compiled, err := e.compile(body)
	if err != nil {
		return "", nil, false, fmt.Errorf("transcoder: compile %s: %w", contentType, err)
	}
	return e.targetMIME, compiled, true, nil
}
