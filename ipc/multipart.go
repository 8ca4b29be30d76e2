package ipc

// Accumulator reassembles multipart ciphertext. The zero value is empty.
type Accumulator struct {
	remaining int
	buf       []byte
}

// Begin starts a new reassembly, discarding any previous one.
func (a *Accumulator) Begin(chunks int) {
	a.remaining = chunks
	a.buf = a.buf[:0]
}

// Append adds one chunk. A chunk with no chunks remaining is rejected and
// the buffer is left as it was.
func (a *Accumulator) Append(p []byte) error {
	if a.remaining < 1 {
		return &FrameError{
			Kind: FrameErrorUnexpectedChunk,
			Msg:  "multipart chunk received with no chunks remaining",
		}
	}
	a.remaining--
	a.buf = append(a.buf, p...)
	return nil
}

// Remaining is the number of chunks still expected.
func (a *Accumulator) Remaining() int {
	return a.remaining
}

// Complete reports whether every announced chunk has arrived.
func (a *Accumulator) Complete() bool {
	return a.remaining == 0
}

// Bytes returns a copy of the accumulated buffer.
func (a *Accumulator) Bytes() []byte {
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return out
}

// Reset clears the accumulator.
func (a *Accumulator) Reset() {
	a.remaining = 0
	a.buf = nil
}
