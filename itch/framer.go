package itch

import (
	"errors"
	"fmt"
	"io"
)

const maxEmptyReads = 100

// FramerStats counts what a Framer has delivered so far.
type FramerStats struct {
	Messages    uint64 // complete messages returned
	Bytes       uint64 // framed bytes consumed, length prefixes included
	Reads       uint64 // calls to the underlying reader
	Relocations uint64 // partial messages moved to the buffer start
}

// Framer splits a length-prefixed ITCH byte stream into whole messages.
// It reads the source in buffer-sized chunks; a header or message body that
// straddles a chunk boundary is moved to the start of the buffer and
// completed by further reads, so no byte is dropped or delivered twice.
//
// Framer is not safe for concurrent use.
type Framer struct {
	r     io.Reader
	buf   []byte
	pos   int // first byte of the next message
	end   int // end of buffered data
	eof   bool
	ended bool // zero-length sentinel seen
	err   error
	stats FramerStats
}

// NewFramer creates a Framer over r with a working buffer of bufferSize bytes.
// The buffer must be strictly larger than HeaderLength+MaxMessageLength.
func NewFramer(r io.Reader, bufferSize int) (*Framer, error) {
	if bufferSize <= HeaderLength+MaxMessageLength {
		return nil, fmt.Errorf("%w: got %d", ErrBufferTooSmall, bufferSize)
	}
	return &Framer{
		r:   r,
		buf: make([]byte, bufferSize),
	}, nil
}

// Next returns the payload of the next message, type byte first and without
// its length prefix. The returned slice aliases the internal buffer and is
// only valid until the following call.
//
// Next returns io.EOF after the end-of-session sentinel or when the source
// ends on a message boundary. A source that ends inside a message yields
// io.ErrUnexpectedEOF; read failures are wrapped in ErrRead. Once Next has
// returned an error it keeps returning it.
func (f *Framer) Next() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}

	if err := f.fill(HeaderLength); err != nil {
		f.err = err
		return nil, err
	}

	n := int(be.Uint16(f.buf[f.pos:]))
	if n == 0 {
		f.pos += HeaderLength
		f.stats.Bytes += HeaderLength
		f.ended = true
		f.err = io.EOF
		return nil, io.EOF
	}

	size := HeaderLength + n
	if size > len(f.buf) {
		f.err = fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
		return nil, f.err
	}
	if err := f.fill(size); err != nil {
		f.err = err
		return nil, err
	}

	start := f.pos + HeaderLength
	f.pos += size
	f.stats.Messages++
	f.stats.Bytes += uint64(size)
	return f.buf[start:f.pos:f.pos], nil
}

// EndOfSession reports whether the stream was terminated by the zero-length
// sentinel rather than by running out of bytes.
func (f *Framer) EndOfSession() bool {
	return f.ended
}

// Stats returns the counters accumulated so far.
func (f *Framer) Stats() FramerStats {
	return f.stats
}

// fill makes sure at least need bytes are buffered from pos onwards.
func (f *Framer) fill(need int) error {
	empty := 0
	for f.end-f.pos < need {
		if f.eof {
			if f.end == f.pos {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		}

		switch {
		case f.pos == f.end:
			// nothing pending, read a whole buffer
			f.pos, f.end = 0, 0
		case f.pos+need > len(f.buf):
			f.end = copy(f.buf, f.buf[f.pos:f.end])
			f.pos = 0
			f.stats.Relocations++
		}

		n, err := f.r.Read(f.buf[f.end:])
		f.stats.Reads++
		f.end += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.eof = true
				continue
			}
			return fmt.Errorf("%w: %w", ErrRead, err)
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return fmt.Errorf("%w: %w", ErrRead, io.ErrNoProgress)
			}
			continue
		}
		empty = 0
	}
	return nil
}
