package oracle

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// Signature identifies a crash class: the fault kind plus the top frame of
// the failure message with volatile values blanked, so repeated hits of the
// same defect collapse into one finding.
type Signature struct {
	Kind  string
	Frame string
}

func (s Signature) Hash() string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s.Kind+"\x00"+s.Frame)))
}

// normalizeFrame keeps the first line of a failure message and replaces
// every digit run with N, so offsets and counters do not split one defect
// into many signatures.
func normalizeFrame(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	var b strings.Builder
	inDigits := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if !inDigits {
				b.WriteByte('N')
			}
			inDigits = true
			continue
		}
		inDigits = false
		b.WriteRune(r)
	}

	const maxFrame = 120
	out := b.String()
	if len(out) > maxFrame {
		out = out[:maxFrame]
	}
	return out
}
