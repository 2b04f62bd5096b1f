package decoder

import (
	"fmt"
	"strings"

	"github.com/idiotf/entry-video-compress/internal/services"
)

// DecodeFailure reports an engine failure. Diagnostic holds the tail of the
// engine's stderr and is meant for logs, not for users.
type DecodeFailure struct {
	Operation  string
	Diagnostic string
	Err        error
}

func (e *DecodeFailure) Error() string {
	var b strings.Builder
	b.WriteString("decode failure: ")
	b.WriteString(e.Operation)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if diag := strings.TrimSpace(e.Diagnostic); diag != "" {
		fmt.Fprintf(&b, " (%s)", diag)
	}
	return b.String()
}

func (e *DecodeFailure) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrDecode}
	}
	return []error{services.ErrDecode, e.Err}
}

func failure(op string, err error, diagnostic string) error {
	return &DecodeFailure{Operation: op, Err: err, Diagnostic: diagnostic}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.data = append(t.data, p...)
	if over := len(t.data) - t.limit; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.data))
}
