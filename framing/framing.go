// Package framing implements the newline-delimited JSON framing used on the
// byte streams of worker processes. Encode produces a complete wire frame;
// Feed incrementally decodes a chunked byte stream, buffering partial frames
// between calls.
package framing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/localrivet/mcphost/protocol"
)

// DecodeError reports a single malformed frame. The framer recovers and keeps
// scanning subsequent frames.
type DecodeError struct {
	Frame []byte
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame %q: %v", string(e.Frame), e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Frame is the outcome of decoding one complete wire frame: either a parsed
// message or a per-frame decode error.
type Frame struct {
	Message *protocol.Message
	Err     error
}

// Framer encodes messages to wire frames and decodes a chunked byte stream
// back into messages. It is purely synchronous and not safe for concurrent
// use.
type Framer struct {
	buf bytes.Buffer
}

// NewFramer creates an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Encode serializes a message to its wire form: the JSON encoding terminated
// by exactly one newline.
func (f *Framer) Encode(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	data = bytes.TrimRight(data, "\n")
	return append(data, '\n'), nil
}

// Feed appends chunk to the internal buffer, extracts every complete frame,
// and returns the decoded results in order. A trailing partial frame is
// retained for the next call. Blank frames are skipped; a malformed frame
// yields a Frame carrying a DecodeError and scanning continues.
func (f *Framer) Feed(chunk []byte) []Frame {
	f.buf.Write(chunk)

	var frames []Frame
	for {
		data := f.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return frames
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		f.buf.Next(idx + 1)

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg, err := protocol.ParseMessage(line)
		if err != nil {
			frames = append(frames, Frame{Err: &DecodeError{Frame: line, Cause: err}})
			continue
		}
		frames = append(frames, Frame{Message: msg})
	}
}

// Pending reports the number of buffered bytes belonging to a partial frame.
func (f *Framer) Pending() int {
	return f.buf.Len()
}
