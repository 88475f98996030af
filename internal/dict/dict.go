// Package dict parses AFL-style token dictionaries. Each line holds an
// optionally named, double-quoted byte fragment (`keyword@level="bytes"`)
// with \\, \" and \xNN escapes. Parsing is per-line tolerant: malformed
// lines are skipped, never fatal, so a damaged dictionary still yields
// every usable fragment.
package dict

import (
	"fmt"
	"os"
	"strings"
)

// Fragment is one dictionary token. Name is the optional keyword before the
// quoted value, empty for bare entries.
type Fragment struct {
	Name string
	Data []byte
}

// Parse extracts the fragments of a dictionary text, deduplicated by
// content, input order preserved.
func Parse(text []byte) []Fragment {
	var out []Fragment
	seen := make(map[string]struct{})
	for _, line := range strings.Split(string(text), "\n") {
		frag, ok := parseLine(line)
		if !ok {
			continue
		}
		if _, dup := seen[string(frag.Data)]; dup {
			continue
		}
		seen[string(frag.Data)] = struct{}{}
		out = append(out, frag)
	}
	return out
}

// Load reads and parses a dictionary file.
func Load(path string) ([]Fragment, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dict file %s: %w", path, err)
	}
	return Parse(text), nil
}

func parseLine(line string) (Fragment, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Fragment{}, false
	}

	open := strings.IndexByte(line, '"')
	if open < 0 {
		return Fragment{}, false
	}
	name := strings.TrimSpace(line[:open])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	data, rest, ok := unquote(line[open+1:])
	if !ok || len(data) == 0 {
		return Fragment{}, false
	}
	if strings.TrimSpace(rest) != "" {
		return Fragment{}, false
	}
	return Fragment{Name: name, Data: data}, true
}

// unquote consumes bytes up to the closing quote, decoding escapes. It
// returns the remainder after the quote, or ok=false when the value is
// unterminated or an escape is unknown.
func unquote(s string) (data []byte, rest string, ok bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			return data, s[i+1:], true
		case '\\':
			if i+1 >= len(s) {
				return nil, "", false
			}
			i++
			switch s[i] {
			case '\\', '"':
				data = append(data, s[i])
			case 'x':
				if i+2 >= len(s) {
					return nil, "", false
				}
				hi, ok1 := hexVal(s[i+1])
				lo, ok2 := hexVal(s[i+2])
				if !ok1 || !ok2 {
					return nil, "", false
				}
				data = append(data, hi<<4|lo)
				i += 2
			default:
				return nil, "", false
			}
		default:
			data = append(data, s[i])
		}
	}
	return nil, "", false
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
