package intake

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
)

// NewMultipartParser returns a MIMEParser that does the envelope
// splitting over the stdlib mime/multipart reader. It implements only
// the multipart/related split, not PAP XML schema validation; that is
// the injected PAPDecoder's job. Part ordering is control entity first,
// payload second, an optional multipart/alternative capabilities part
// third.
func NewMultipartParser() MIMEParser {
	return func(contentType string, body io.Reader) (Parts, error) {
		_, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			return Parts{}, fmt.Errorf("intake: parse Content-Type: %w", err)
		}
		boundary, ok := params["boundary"]
		if !ok {
			return Parts{}, fmt.Errorf("intake: multipart/related body missing boundary")
		}

		reader := multipart.NewReader(body, boundary)

		var parts []Part
		for {
			p, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return Parts{}, fmt.Errorf("intake: read multipart part: %w", err)
			}
			b, err := io.ReadAll(p)
			if err != nil {
				return Parts{}, fmt.Errorf("intake: drain multipart part: %w", err)
			}
			parts = append(parts, Part{
				ContentType: p.Header.Get("Content-Type"),
				Headers:     map[string][]string(p.Header),
				Body:        b,
			})
		}

		if len(parts) < 2 {
			return Parts{}, fmt.Errorf("intake: expected at least control + payload parts, got %d", len(parts))
		}

		out := Parts{Control: parts[0], Payload: parts[1]}
		if len(parts) > 2 {
			capPart := parts[2]
			out.Capabilities = &capPart
		}
		return out, nil
	}
}
