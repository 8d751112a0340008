package codec

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

func TestRequestRoundTrip(t *testing.T) {
	additional := uint32(3)
	cases := []Request{
		{Authenticate: &AuthenticateRequest{
			Username:  "alice",
			Challenge: []byte{1, 2, 3, 4},
			Timestamp: time.Unix(1_700_000_000, 500).UTC(),
		}},
		{Enroll: &EnrollRequest{Username: "bob", EnablePreview: true}},
		{Enhance: &EnhanceRequest{
			Username:           "carol",
			AdditionalCaptures: &additional,
			ReplaceWeak:        true,
			EnablePreview:      false,
		}},
		{Enhance: &EnhanceRequest{Username: "dave", AdditionalCaptures: nil}},
	}

	for _, req := range cases {
		got, err := DecodeRequest(EncodeRequest(req))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, req) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
		}
	}
}

func TestRequestIDSurvivesRoundTrip(t *testing.T) {
	req := Request{ID: "11111111-2222-3333-4444-555555555555", Enroll: &EnrollRequest{Username: "erin", EnablePreview: true}}
	got, err := DecodeRequest(EncodeRequest(req))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != req.ID {
		t.Fatalf("got id %q, want %q", got.ID, req.ID)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	errMsg := "service unavailable"
	cases := []Response{
		{Auth: &AuthResponse{
			Success:   true,
			Message:   "ok",
			Attempts:  3,
			Signature: []byte{0xAA, 0xBB},
			Timestamp: time.Unix(1_700_000_001, 0).UTC(),
		}},
		{Enroll: &EnrollResponse{Success: false, Message: "only 3/5 captures completed"}},
		{Enhance: &EnhanceResponse{Success: true, Message: "merged", EmbeddingsBefore: 3, EmbeddingsAfter: 4, ReplacedCount: 1}},
		{Error: &errMsg},
	}

	for _, resp := range cases {
		got, err := DecodeResponse(EncodeResponse(resp))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, resp) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, resp)
		}
	}
}

func TestStreamMessageRoundTrip(t *testing.T) {
	cases := []StreamMessage{
		{PreviewFrame: &PreviewFrame{ASCII: "####", Captured: 2, Total: 5}},
		{StatusUpdate: &StatusUpdate{Message: "captured image 2/5"}},
		{Complete: true},
	}

	for _, msg := range cases {
		got, err := DecodeStreamMessage(EncodeStreamMessage(msg))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, msg)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, frame")
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrameRejectsOversizeDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	// Fabricate a length prefix declaring more than MaxFrameSize without supplying the bytes.
	lenBuf := make([]byte, 4)
	lenBuf[0], lenBuf[1], lenBuf[2], lenBuf[3] = 0x01, 0x00, 0x10, 0x00 // 0x00100001 > 1MiB
	buf.Write(lenBuf)
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for an oversize declared frame length")
	}
}

func TestTaggedFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTaggedFrame(&buf, TagStream, []byte("preview")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteTaggedFrame(&buf, TagTerminal, []byte("final")); err != nil {
		t.Fatalf("write: %v", err)
	}

	tag, payload, err := ReadTaggedFrame(&buf)
	if err != nil || tag != TagStream || string(payload) != "preview" {
		t.Fatalf("first frame: tag=%v payload=%q err=%v", tag, payload, err)
	}
	tag, payload, err = ReadTaggedFrame(&buf)
	if err != nil || tag != TagTerminal || string(payload) != "final" {
		t.Fatalf("second frame: tag=%v payload=%q err=%v", tag, payload, err)
	}
}

func TestTaggedFrameRejectsUnknownTag(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x02)
	if err := WriteFrame(&buf, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ReadTaggedFrame(&buf); err == nil {
		t.Fatal("expected an error for an unknown tag byte")
	}
}
