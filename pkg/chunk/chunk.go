// Package chunk holds the mutation policy applied to every streamed
// chat-completion chunk before it is sent downstream.
//
// Payloads are edited in place with gjson/sjson rather than decoded into a
// map, so unknown fields survive untouched and keep their original order.
package chunk

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultStripFields are the vendor extension fields removed by default.
var DefaultStripFields = []string{"x_groq"}

var (
	// ErrInvalidJSON is returned for payloads that are not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrNotObject is returned for valid JSON that is not an object.
	ErrNotObject = errors.New("JSON payload is not an object")
)

// Policy rewrites chat-completion chunks: the model is overwritten with the
// advertised identifier and the Strip fields are deleted. Everything else
// passes through.
type Policy struct {
	// Model is the identifier reported downstream.
	Model string

	// Strip lists top-level fields removed from every chunk.
	Strip []string
}

// NewPolicy returns a Policy advertising model and stripping the default
// vendor fields.
func NewPolicy(model string) *Policy {
	return &Policy{
		Model: model,
		Strip: append([]string(nil), DefaultStripFields...),
	}
}

// Rewrite implements sse.Rewriter. The result is compact JSON.
func (p *Policy) Rewrite(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, ErrNotObject
	}

	out := []byte(gjson.GetBytes(data, "@ugly").Raw)

	out, err := sjson.SetBytes(out, "model", p.Model)
	if err != nil {
		return nil, err
	}

	for _, field := range p.Strip {
		path := EscapeKey(field)
		if !gjson.GetBytes(out, path).Exists() {
			continue
		}
		out, err = sjson.DeleteBytes(out, path)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// ParseStripList splits a comma separated field list, dropping blanks.
func ParseStripList(s string) []string {
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// EscapeKey escapes a literal object key for use as a gjson/sjson path.
func EscapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
