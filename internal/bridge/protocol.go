// Package bridge carries capture requests from the browser extension to
// the service. Two transports share the message types: a native
// messaging host speaking length-prefixed JSON on stdio, and a local
// TCP control channel speaking newline-delimited JSON.
package bridge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ReadFrame reads one length-prefixed message: a 4-byte little-endian
// payload size followed by that many bytes of JSON.
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 || int(length) > maxBytes {
		return nil, fmt.Errorf("invalid message length: %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed message.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// WriteFrameJSON marshals v and writes it as one frame.
func WriteFrameJSON(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return WriteFrame(w, payload)
}
