package image

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseLiteral converts exported word text ("0x1234,0xABCD,...") into the
// raw little-endian binary image. Whitespace around tokens and empty tokens
// (a trailing comma) are ignored.
func ParseLiteral(r io.Reader) ([]byte, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read literal: %w", err)
	}

	out := make([]byte, 0, WordCount*2)
	for i, tok := range strings.Split(string(text), ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !strings.HasPrefix(tok, "0x") && !strings.HasPrefix(tok, "0X") {
			return nil, fmt.Errorf("token %d %q: missing 0x prefix", i, tok)
		}
		w, err := strconv.ParseUint(tok[2:], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("token %d %q: %w", i, tok, err)
		}
		out = append(out, byte(w), byte(w>>8))
	}
	return out, nil
}

// Binary exports the strict window and returns it as raw bytes.
func (e *Exporter) Binary() ([]byte, error) {
	var text bytes.Buffer
	if err := e.ExportStrict(&text, false, false); err != nil {
		return nil, err
	}
	return ParseLiteral(&text)
}
