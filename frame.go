package eka

import (
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultEventName is the event name of a frame without an "event:" line.
const DefaultEventName = "message"

const frameDelimiter = "\n\n"

// Frame is one decoded unit of a text event stream.
type Frame struct {
	Event string
	Data  string
}

// DecodeFrames extracts the complete frames from remainder+chunk. The last,
// possibly incomplete, segment is never emitted and is returned as rest for
// the next call. Decoding the same bytes yields the same frames no matter how
// they were split across calls.
//
// Lines starting with "event:" set the frame's event name (the last one
// wins); lines starting with "data:" add a data line; any other line is
// ignored. Frames with no data and the default event name are dropped.
func DecodeFrames(remainder, chunk string) (frames []Frame, rest string) {
	parts := strings.Split(remainder+chunk, frameDelimiter)
	rest = parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		if f, ok := decodeFrame(part); ok {
			frames = append(frames, f)
		}
	}
	return frames, rest
}

func decodeFrame(block string) (Frame, bool) {
	event := DefaultEventName
	var data []string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	f := Frame{Event: event, Data: strings.Join(data, "\n")}
	if f.Data == "" && f.Event == DefaultEventName {
		return Frame{}, false
	}
	return f, true
}

// Decoder accumulates chunks of a text event stream and emits complete
// frames. The zero value is ready to use.
type Decoder struct {
	rest string
}

// Feed appends chunk to the buffered text and returns the frames it completes.
func (d *Decoder) Feed(chunk string) []Frame {
	var frames []Frame
	frames, d.rest = DecodeFrames(d.rest, chunk)
	return frames
}

// Remainder returns the buffered text that does not yet form a frame.
func (d *Decoder) Remainder() string {
	return d.rest
}

const readSize = 4096

// FrameReader pulls frames from a byte stream. Reads suspend only at the
// underlying reader; frames come out in arrival order.
type FrameReader struct {
	r       io.Reader
	buf     []byte
	partial []byte // incomplete UTF-8 sequence held back from the last read
	dec     Decoder
	queue   []Frame
	err     error
}

// NewFrameReader returns a FrameReader reading from r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, buf: make([]byte, readSize)}
}

// Next returns the next frame. It returns io.EOF once the source is exhausted
// and every complete frame has been returned; text left without a closing
// blank line is discarded. Any other read error is returned as is.
func (fr *FrameReader) Next() (Frame, error) {
	for len(fr.queue) == 0 {
		if fr.err != nil {
			return Frame{}, fr.err
		}
		n, err := fr.r.Read(fr.buf)
		if n > 0 {
			fr.queue = append(fr.queue, fr.dec.Feed(fr.text(fr.buf[:n]))...)
		}
		if err != nil {
			fr.err = err
		}
	}
	f := fr.queue[0]
	fr.queue = fr.queue[1:]
	return f, nil
}

// text converts b to a string, holding back a trailing multi-byte sequence
// that the next read will complete.
func (fr *FrameReader) text(b []byte) string {
	joined := make([]byte, 0, len(fr.partial)+len(b))
	joined = append(joined, fr.partial...)
	joined = append(joined, b...)
	cut := incompleteSuffix(joined)
	fr.partial = append(fr.partial[:0], joined[cut:]...)
	return string(joined[:cut])
}

// incompleteSuffix returns the index where a truncated trailing rune starts,
// or len(b) if b ends on a rune boundary.
func incompleteSuffix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
