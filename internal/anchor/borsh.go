package anchor

import (
	"encoding/binary"
	"errors"
)

var errShortBuffer = errors.New("borsh: short buffer")

// borshWriter appends Borsh-encoded values.
type borshWriter struct {
	buf []byte
}

func (w *borshWriter) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *borshWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *borshWriter) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *borshWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *borshWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *borshWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *borshWriter) i64(v int64)  { w.u64(uint64(v)) }

func (w *borshWriter) string(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// borshReader consumes Borsh-encoded values. The first error sticks.
type borshReader struct {
	buf []byte
	err error
}

func (r *borshReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = errShortBuffer
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *borshReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *borshReader) bool() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = errors.New("borsh: invalid bool")
	}
	return v == 1
}

func (r *borshReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *borshReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *borshReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *borshReader) i64() int64 { return int64(r.u64()) }

func (r *borshReader) string() string {
	n := r.u32()
	return string(r.take(int(n)))
}

func (r *borshReader) fixed(dst []byte) {
	copy(dst, r.take(len(dst)))
}
