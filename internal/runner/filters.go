package runner

import (
	"bytes"
	"io"
)

// soh is the internal separator emitted by the csv-comma2soh filter.
const soh = '\x01'

// remapWriter turns SOH separators back into commas.
type remapWriter struct {
	w   io.Writer
	buf []byte
}

func newRemapWriter(w io.Writer) *remapWriter {
	return &remapWriter{w: w}
}

func (r *remapWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, soh) < 0 {
		return r.w.Write(p)
	}
	r.buf = append(r.buf[:0], p...)
	for i, c := range r.buf {
		if c == soh {
			r.buf[i] = ','
		}
	}
	n, err := r.w.Write(r.buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}
