package sl651

import (
	"bytes"

	"github.com/hydronet-io/hydrogate/internal/codec"
)

var preamble = []byte{PreambleByte, PreambleByte}

// Framer accumulates the raw byte stream of one link and yields complete
// candidate frames. It is owned by a single link worker and is not safe
// for concurrent use.
type Framer struct {
	buf     []byte
	maxSize int
}

// NewFramer creates a framer with the given buffer cap. maxSize <= 0
// falls back to MaxBufferSize.
func NewFramer(maxSize int) *Framer {
	if maxSize <= 0 {
		maxSize = MaxBufferSize
	}
	return &Framer{maxSize: maxSize}
}

// Push appends an inbound chunk and drains as many complete frames as
// possible. Each returned slice is an independent copy of one frame.
//
// When the residual buffer still exceeds the cap after draining, the
// buffer is cleared and ErrBufferOverflow is returned alongside any
// frames extracted; the framer resynchronizes on the next preamble.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	f.buf = append(f.buf, chunk...)

	var frames [][]byte
	for {
		frame := f.next()
		if frame == nil {
			break
		}
		frames = append(frames, frame)
	}

	if len(f.buf) > f.maxSize {
		f.buf = f.buf[:0]
		return frames, ErrBufferOverflow
	}

	return frames, nil
}

// next extracts one complete frame from the head of the buffer, or
// returns nil when more bytes are needed.
func (f *Framer) next() []byte {
	// Resync on the preamble; anything before it is line noise. A
	// trailing lone 0x7E may be the first half of the next preamble,
	// so it stays buffered until the following chunk decides.
	idx := bytes.Index(f.buf, preamble)
	if idx < 0 {
		if n := len(f.buf); n > 0 && f.buf[n-1] == PreambleByte {
			f.buf[0] = PreambleByte
			f.buf = f.buf[:1]
		} else {
			f.buf = f.buf[:0]
		}
		return nil
	}
	if idx > 0 {
		f.buf = f.buf[idx:]
	}

	if len(f.buf) < HeaderLen {
		return nil
	}

	bodyLen := int(codec.Uint16(f.buf[11:13]) & 0x0FFF)
	total := HeaderLen + 1 + bodyLen + 1 + 2
	if len(f.buf) < total {
		return nil
	}

	frame := make([]byte, total)
	copy(frame, f.buf[:total])
	f.buf = f.buf[total:]
	return frame
}

// Pending returns the number of buffered bytes awaiting more data.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered bytes.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}
