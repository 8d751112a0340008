package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds every framed payload at 1 MiB; exceeding it is a fatal protocol error.
const MaxFrameSize = 1 << 20

// Frame tags used by the tag-prefixed enrollment/enhancement path.
const (
	TagTerminal byte = 0x00
	TagStream   byte = 0x01
)

// WriteFrame writes a u32-little-endian length prefix followed by payload. Used by the
// untagged authenticate path.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("codec: frame of %d bytes exceeds %d byte cap", len(payload), MaxFrameSize)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a u32-little-endian length prefix then exactly that many payload bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("codec: declared frame length %d exceeds %d byte cap", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteTaggedFrame writes the single tag byte then a length-prefixed payload, used by the
// enroll/enhance path.
func WriteTaggedFrame(w io.Writer, tag byte, payload []byte) error {
	if _, err := w.Write([]byte{tag}); err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadTaggedFrame reads the tag byte then a length-prefixed payload. An unrecognized tag is
// a fatal protocol error.
func ReadTaggedFrame(r io.Reader) (byte, []byte, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return 0, nil, err
	}
	tag := tagBuf[0]
	if tag != TagTerminal && tag != TagStream {
		return 0, nil, fmt.Errorf("codec: unknown frame tag 0x%02x", tag)
	}
	payload, err := ReadFrame(r)
	if err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}
