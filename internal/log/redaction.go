package log

import (
	"io"
	"regexp"
	"strings"
)

// sensitiveKeys defines the list of field names whose values should be
// redacted before a log line is written. Keys are case-insensitive.
var sensitiveKeys = []string{
	"password",
	"pass",
	"secret",
	"token",
	"auth",
	"ticket",
	"cred",
}

// kvPattern matches a `key=value` or `key="value"` pair as produced by
// zerolog's console writer; fieldPattern matches the `"key":"value"` form
// from its JSON writer. Both are built once at package init.
var (
	kvPattern    = buildPattern(`([\w.-]*%s[\w.-]*)=("(?:[^"\\]|\\.)*"|\S+)`)
	fieldPattern = buildPattern(`("[\w.-]*%s[\w.-]*")\s*:\s*("(?:[^"\\]|\\.)*"|[^,}]+)`)
)

func buildPattern(tmpl string) *regexp.Regexp {
	alt := strings.Join(sensitiveKeys, "|")
	return regexp.MustCompile("(?i)" + strings.Replace(tmpl, "%s", "(?:"+alt+")", 1))
}

const redactedValue = `[REDACTED]`

// RedactingWriter wraps an io.Writer, scrubbing any `key=value` or
// `"key":"value"` pair whose key matches a sensitive name before the
// line reaches the underlying sink. It operates on the serialized log
// line rather than on structured fields, so it works the same whether
// the wrapped writer is zerolog's console formatter or its raw JSON
// output, and whether the secret arrived via PAP's password attribute
// or an SMSC credential pair.
type RedactingWriter struct {
	next io.Writer
}

// NewRedactingWriter wraps next so that sensitive field values are
// scrubbed from every line written through it.
func NewRedactingWriter(next io.Writer) *RedactingWriter {
	return &RedactingWriter{next: next}
}

func (w *RedactingWriter) Write(p []byte) (int, error) {
	redacted := fieldPattern.ReplaceAll(p, []byte(`$1:"`+redactedValue+`"`))
	redacted = kvPattern.ReplaceAll(redacted, []byte(`$1=`+redactedValue))

	if _, err := w.next.Write(redacted); err != nil {
		return 0, err
	}
	// Report the original length so callers (zerolog) don't treat this
	// as a short write, even though the redacted payload differs in size.
	return len(p), nil
}
