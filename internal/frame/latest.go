package frame

// Latest is either a Buffer or the absence of one for a display slot.
// The zero value is absent.
type Latest struct {
	buf *Buffer
}

// Some wraps a buffer. A nil buffer yields an absent value.
func Some(b *Buffer) Latest {
	return Latest{buf: b}
}

// None returns the absent value.
func None() Latest {
	return Latest{}
}

// Get returns the buffer and whether one is available.
func (l Latest) Get() (*Buffer, bool) {
	return l.buf, l.buf != nil
}

// Available reports whether a buffer is present.
func (l Latest) Available() bool {
	return l.buf != nil
}
