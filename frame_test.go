package eka_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/fwojciec/eka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "event: meta\ndata: {\"citations\":[{\"title\":\"A\"}]}\n\n" +
	"event: token\ndata: {\"delta\":\"Hel\"}\n\n" +
	": comment line\n\n" +
	"event: ping\ndata: {}\n\n" +
	"event: token\ndata: {\"delta\":\"lo ✓\"}\n\n" +
	"data: first\ndata: second\n\n" +
	"event: done\ndata: [DONE]\n\n"

var sampleFrames = []eka.Frame{
	{Event: "meta", Data: `{"citations":[{"title":"A"}]}`},
	{Event: "token", Data: `{"delta":"Hel"}`},
	{Event: "ping", Data: "{}"},
	{Event: "token", Data: `{"delta":"lo ✓"}`},
	{Event: "message", Data: "first\nsecond"},
	{Event: "done", Data: "[DONE]"},
}

func TestDecodeFrames(t *testing.T) {
	t.Parallel()

	t.Run("whole input", func(t *testing.T) {
		t.Parallel()
		frames, rest := eka.DecodeFrames("", sampleStream)
		assert.Equal(t, sampleFrames, frames)
		assert.Equal(t, "", rest)
	})

	t.Run("incomplete trailing frame is returned as remainder", func(t *testing.T) {
		t.Parallel()
		frames, rest := eka.DecodeFrames("", "event: token\ndata: {\"delta\":\"a\"}\n\nevent: tok")
		require.Len(t, frames, 1)
		assert.Equal(t, "event: tok", rest)

		frames, rest = eka.DecodeFrames(rest, "en\ndata: {\"delta\":\"b\"}\n\n")
		assert.Equal(t, []eka.Frame{{Event: "token", Data: `{"delta":"b"}`}}, frames)
		assert.Equal(t, "", rest)
	})

	t.Run("last event line wins", func(t *testing.T) {
		t.Parallel()
		frames, _ := eka.DecodeFrames("", "event: meta\nevent: token\ndata: x\n\n")
		assert.Equal(t, []eka.Frame{{Event: "token", Data: "x"}}, frames)
	})

	t.Run("event and data are trimmed", func(t *testing.T) {
		t.Parallel()
		frames, _ := eka.DecodeFrames("", "event:   done  \ndata:   payload  \n\n")
		assert.Equal(t, []eka.Frame{{Event: "done", Data: "payload"}}, frames)
	})

	t.Run("named frame without data is kept", func(t *testing.T) {
		t.Parallel()
		frames, _ := eka.DecodeFrames("", "event: done\n\n")
		assert.Equal(t, []eka.Frame{{Event: "done", Data: ""}}, frames)
	})

	t.Run("keep-alive and unknown lines are dropped", func(t *testing.T) {
		t.Parallel()
		frames, rest := eka.DecodeFrames("", ": keep-alive\n\nid: 7\nretry: 100\n\n\n\n")
		assert.Empty(t, frames)
		assert.Equal(t, "", rest)
	})

	t.Run("no delimiter yields no frames", func(t *testing.T) {
		t.Parallel()
		frames, rest := eka.DecodeFrames("", "event: token\ndata: {}")
		assert.Empty(t, frames)
		assert.Equal(t, "event: token\ndata: {}", rest)
	})
}

func TestDecodeFrames_ChunkingIndependence(t *testing.T) {
	t.Parallel()

	want, _ := eka.DecodeFrames("", sampleStream)

	// Every single split point.
	for i := 0; i <= len(sampleStream); i++ {
		var got []eka.Frame
		frames, rest := eka.DecodeFrames("", sampleStream[:i])
		got = append(got, frames...)
		frames, rest = eka.DecodeFrames(rest, sampleStream[i:])
		got = append(got, frames...)
		require.Equal(t, want, got, "split at %d", i)
		require.Equal(t, "", rest)
	}

	// Fixed-size chunks of every width.
	for size := 1; size <= len(sampleStream); size++ {
		var dec eka.Decoder
		var got []eka.Frame
		for start := 0; start < len(sampleStream); start += size {
			end := min(start+size, len(sampleStream))
			got = append(got, dec.Feed(sampleStream[start:end])...)
		}
		require.Equal(t, want, got, "chunk size %d", size)
		require.Equal(t, "", dec.Remainder())
	}
}

func collectFrames(t *testing.T, fr *eka.FrameReader) []eka.Frame {
	t.Helper()
	var frames []eka.Frame
	for {
		f, err := fr.Next()
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
}

func TestFrameReader(t *testing.T) {
	t.Parallel()

	t.Run("reads all frames from one read", func(t *testing.T) {
		t.Parallel()
		fr := eka.NewFrameReader(strings.NewReader(sampleStream))
		assert.Equal(t, sampleFrames, collectFrames(t, fr))
	})

	t.Run("byte-at-a-time reads split multi-byte runes", func(t *testing.T) {
		t.Parallel()
		fr := eka.NewFrameReader(iotest.OneByteReader(strings.NewReader(sampleStream)))
		assert.Equal(t, sampleFrames, collectFrames(t, fr))
	})

	t.Run("data returned with EOF is decoded", func(t *testing.T) {
		t.Parallel()
		fr := eka.NewFrameReader(iotest.DataErrReader(strings.NewReader(sampleStream)))
		assert.Equal(t, sampleFrames, collectFrames(t, fr))
	})

	t.Run("unterminated trailing frame is discarded", func(t *testing.T) {
		t.Parallel()
		fr := eka.NewFrameReader(strings.NewReader("event: token\ndata: {\"delta\":\"a\"}\n\nevent: done\n"))
		frames := collectFrames(t, fr)
		assert.Equal(t, []eka.Frame{{Event: "token", Data: `{"delta":"a"}`}}, frames)
	})

	t.Run("read error is returned after buffered frames", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("connection reset")
		r := io.MultiReader(strings.NewReader("event: token\ndata: {\"delta\":\"a\"}\n\n"), iotest.ErrReader(boom))
		fr := eka.NewFrameReader(r)

		f, err := fr.Next()
		require.NoError(t, err)
		assert.Equal(t, "token", f.Event)

		_, err = fr.Next()
		assert.ErrorIs(t, err, boom)

		// The error is sticky.
		_, err = fr.Next()
		assert.ErrorIs(t, err, boom)
	})
}
