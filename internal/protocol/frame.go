package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxBuffer is the receive buffer ceiling used when none is configured.
const DefaultMaxBuffer = 16 << 20

// ErrIncomplete reports that the buffer holds only a prefix of a JSON value.
// The caller should keep the bytes and wait for more input.
var ErrIncomplete = errors.New("incomplete JSON value")

// MalformedError reports bytes that can never become valid JSON, no matter
// how much more input arrives.
type MalformedError struct {
	Offset int64
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed JSON at offset %d: %v", e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// BufferLimitError is returned by Decoder.Feed when accepting more bytes would
// grow the receive buffer past its limit.
type BufferLimitError struct {
	Limit int
	Size  int
}

func (e *BufferLimitError) Error() string {
	return fmt.Sprintf("receive buffer limit exceeded (%d > %d bytes)", e.Size, e.Limit)
}

// Decode parses the first complete JSON value in buf.
//
// On success it returns the raw value and the number of bytes it occupied,
// including any leading whitespace; only that prefix may be dropped by the
// caller. A truncated value returns ErrIncomplete. Input that is not JSON
// returns a *MalformedError.
func Decode(buf []byte) (json.RawMessage, int, error) {
	start := len(buf) - len(bytes.TrimLeft(buf, " \t\r\n"))
	if start == len(buf) {
		return nil, 0, ErrIncomplete
	}

	dec := json.NewDecoder(bytes.NewReader(buf[start:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, ErrIncomplete
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, 0, &MalformedError{Offset: int64(start) + syntaxErr.Offset, Err: err}
		}
		return nil, 0, &MalformedError{Offset: int64(start), Err: err}
	}

	return raw, start + int(dec.InputOffset()), nil
}

// Decoder accumulates bytes from a stream without message boundaries and
// yields one Command per complete JSON value.
//
// Each byte is scanned once to track nesting, so Decode runs only when a
// top-level value may have ended or a byte appears that no JSON value can
// contain. A large command arriving in many reads costs linear time.
//
// A Decoder belongs to a single connection and is not safe for concurrent use.
type Decoder struct {
	buf  []byte
	max  int
	scan scanState
}

// NewDecoder returns a Decoder whose buffer may hold at most max bytes.
// A max of zero or less selects DefaultMaxBuffer.
func NewDecoder(max int) *Decoder {
	if max <= 0 {
		max = DefaultMaxBuffer
	}
	return &Decoder{max: max}
}

// Feed appends p to the receive buffer.
func (d *Decoder) Feed(p []byte) error {
	if size := len(d.buf) + len(p); size > d.max {
		return &BufferLimitError{Limit: d.max, Size: size}
	}
	d.buf = append(d.buf, p...)
	return nil
}

// Next decodes the next Command from the buffer.
//
// It returns ErrIncomplete when more input is needed. A *MalformedError means
// the buffered bytes were discarded. An *InvalidCommandError means a complete
// JSON value was consumed but was not a usable command; decoding may continue.
func (d *Decoder) Next() (*Command, error) {
	before := len(d.buf)
	d.buf = bytes.TrimLeft(d.buf, " \t\r\n")
	d.scan.pos = max(0, d.scan.pos-(before-len(d.buf)))
	if len(d.buf) == 0 {
		d.scan = scanState{}
		return nil, ErrIncomplete
	}
	if !d.scan.advance(d.buf) {
		return nil, ErrIncomplete
	}

	raw, n, err := Decode(d.buf)
	if err != nil {
		if errors.Is(err, ErrIncomplete) {
			return nil, err
		}
		d.Reset()
		return nil, err
	}

	d.buf = append(d.buf[:0], d.buf[n:]...)
	d.scan = scanState{}
	return ParseCommand(raw)
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.scan = scanState{}
}

// scanState follows the structure of the value at the start of the buffer.
type scanState struct {
	pos      int // bytes already scanned
	depth    int
	started  bool
	scalar   bool
	inString bool
	escaped  bool
}

// advance scans buf from the saved position. It reports true, with pos just
// past the deciding byte, when the top-level value may be complete or a byte
// that is invalid outside a string was seen.
func (s *scanState) advance(buf []byte) bool {
	for s.pos < len(buf) {
		c := buf[s.pos]
		s.pos++

		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
				if s.depth == 0 {
					return true
				}
			}
			continue
		}

		if !s.started {
			if isSpace(c) {
				continue
			}
			s.started = true
			switch c {
			case '{', '[':
				s.depth = 1
			case '"':
				s.inString = true
			default:
				s.scalar = true
				if !literalByte(c) {
					return true
				}
			}
			continue
		}

		if s.scalar {
			if !literalByte(c) {
				return true
			}
			continue
		}

		switch c {
		case '"':
			s.inString = true
		case '{', '[':
			s.depth++
		case '}', ']':
			s.depth--
			if s.depth <= 0 {
				return true
			}
		case ':', ',':
		default:
			if !isSpace(c) && !literalByte(c) {
				return true
			}
		}
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// literalByte reports whether c can appear in a number, true, false or null.
func literalByte(c byte) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	return bytes.IndexByte([]byte("-+.eEaflnrstu"), c) >= 0
}
