package sse

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder converts a stream of bytes into text across successive reads.
// An incomplete multi-byte sequence at the end of one read is held back until
// the next read supplies its continuation bytes. Invalid bytes are replaced
// with U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

// NewDecoder returns a streaming UTF-8 decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		t: unicode.UTF8.NewDecoder(),
	}
}

// Decode returns the text that is complete after appending p to any bytes
// held back from the previous call.
func (d *Decoder) Decode(p []byte) string {
	if len(d.pending) == 0 && len(p) == 0 {
		return ""
	}

	src := make([]byte, 0, len(d.pending)+len(p))
	src = append(src, d.pending...)
	src = append(src, p...)
	d.pending = d.pending[:0]

	// Worst case every byte is invalid and becomes a 3 byte U+FFFD.
	dst := make([]byte, 3*len(src)+4)
	out := make([]byte, 0, len(src))

	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(dst, src, false)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch {
		case err == nil:
			// fully consumed
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append(d.pending, src...)
			return string(out)
		case errors.Is(err, transform.ErrShortDst):
			dst = make([]byte, 2*len(dst))
		default:
			// The UTF-8 decoder only reports short buffers; anything else
			// leaves the remaining bytes undecodable.
			return string(out)
		}
	}

	return string(out)
}

// Buffered returns the number of bytes held back waiting for continuation
// bytes.
func (d *Decoder) Buffered() int {
	return len(d.pending)
}

// Reset discards any held back bytes.
func (d *Decoder) Reset() {
	d.pending = d.pending[:0]
	d.t.Reset()
}
