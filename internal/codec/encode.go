package codec

import (
	"bytes"
	"encoding/binary"
	"time"
)

// Request variant discriminants, fixed across protocol versions.
const (
	discRequestAuthenticate uint32 = 0
	discRequestEnroll       uint32 = 1
	discRequestEnhance      uint32 = 2

	discResponseAuth    uint32 = 0
	discResponseEnroll  uint32 = 1
	discResponseEnhance uint32 = 2
	discResponseError   uint32 = 3

	discStreamPreviewFrame uint32 = 0
	discStreamStatusUpdate uint32 = 1
	discStreamComplete     uint32 = 2
)

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}
func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}
func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}
func (e *encoder) bytes(v []byte) {
	e.u64(uint64(len(v)))
	e.buf.Write(v)
}
func (e *encoder) str(v string) {
	e.bytes([]byte(v))
}
func (e *encoder) timestamp(t time.Time) {
	e.u64(uint64(t.Unix()))
	e.u32(uint32(t.Nanosecond()))
}
func (e *encoder) optU32(v *uint32) {
	if v == nil {
		e.u8(0)
		return
	}
	e.u8(1)
	e.u32(*v)
}

// EncodeRequest serializes a Request into the stable binary payload format.
func EncodeRequest(r Request) []byte {
	var e encoder
	e.str(r.ID)
	switch {
	case r.Authenticate != nil:
		e.u32(discRequestAuthenticate)
		e.str(r.Authenticate.Username)
		e.bytes(r.Authenticate.Challenge)
		e.timestamp(r.Authenticate.Timestamp)
	case r.Enroll != nil:
		e.u32(discRequestEnroll)
		e.str(r.Enroll.Username)
		e.bool(r.Enroll.EnablePreview)
	case r.Enhance != nil:
		e.u32(discRequestEnhance)
		e.str(r.Enhance.Username)
		e.optU32(r.Enhance.AdditionalCaptures)
		e.bool(r.Enhance.ReplaceWeak)
		e.bool(r.Enhance.EnablePreview)
	}
	return e.buf.Bytes()
}

// EncodeResponse serializes a Response into the stable binary payload format.
func EncodeResponse(r Response) []byte {
	var e encoder
	switch {
	case r.Auth != nil:
		e.u32(discResponseAuth)
		e.bool(r.Auth.Success)
		e.str(r.Auth.Message)
		e.u32(r.Auth.Attempts)
		e.bytes(r.Auth.Signature)
		e.timestamp(r.Auth.Timestamp)
	case r.Enroll != nil:
		e.u32(discResponseEnroll)
		e.bool(r.Enroll.Success)
		e.str(r.Enroll.Message)
	case r.Enhance != nil:
		e.u32(discResponseEnhance)
		e.bool(r.Enhance.Success)
		e.str(r.Enhance.Message)
		e.u64(r.Enhance.EmbeddingsBefore)
		e.u64(r.Enhance.EmbeddingsAfter)
		e.u64(r.Enhance.ReplacedCount)
	case r.Error != nil:
		e.u32(discResponseError)
		e.str(*r.Error)
	}
	return e.buf.Bytes()
}

// EncodeStreamMessage serializes a StreamMessage into the stable binary payload format.
func EncodeStreamMessage(m StreamMessage) []byte {
	var e encoder
	switch {
	case m.PreviewFrame != nil:
		e.u32(discStreamPreviewFrame)
		e.str(m.PreviewFrame.ASCII)
		e.u32(m.PreviewFrame.Captured)
		e.u32(m.PreviewFrame.Total)
	case m.StatusUpdate != nil:
		e.u32(discStreamStatusUpdate)
		e.str(m.StatusUpdate.Message)
	default:
		e.u32(discStreamComplete)
	}
	return e.buf.Bytes()
}
