package codec

import (
	"encoding/binary"
	"fmt"
	"time"
)

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) u8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, fmt.Errorf("codec: truncated u8")
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("codec: truncated u32")
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("codec: truncated u64")
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	if uint64(d.remaining()) < n {
		return nil, fmt.Errorf("codec: truncated byte sequence of declared length %d", n)
	}
	v := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) timestamp() (time.Time, error) {
	secs, err := d.u64()
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := d.u32()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), int64(nanos)).UTC(), nil
}

func (d *decoder) optU32() (*uint32, error) {
	present, err := d.u8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := d.u32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeRequest parses the stable binary payload format produced by EncodeRequest.
func DecodeRequest(payload []byte) (Request, error) {
	d := &decoder{buf: payload}
	id, err := d.str()
	if err != nil {
		return Request{}, err
	}
	disc, err := d.u32()
	if err != nil {
		return Request{}, err
	}
	switch disc {
	case discRequestAuthenticate:
		username, err := d.str()
		if err != nil {
			return Request{}, err
		}
		challenge, err := d.bytes()
		if err != nil {
			return Request{}, err
		}
		ts, err := d.timestamp()
		if err != nil {
			return Request{}, err
		}
		return Request{ID: id, Authenticate: &AuthenticateRequest{Username: username, Challenge: challenge, Timestamp: ts}}, nil
	case discRequestEnroll:
		username, err := d.str()
		if err != nil {
			return Request{}, err
		}
		preview, err := d.boolean()
		if err != nil {
			return Request{}, err
		}
		return Request{ID: id, Enroll: &EnrollRequest{Username: username, EnablePreview: preview}}, nil
	case discRequestEnhance:
		username, err := d.str()
		if err != nil {
			return Request{}, err
		}
		additional, err := d.optU32()
		if err != nil {
			return Request{}, err
		}
		replaceWeak, err := d.boolean()
		if err != nil {
			return Request{}, err
		}
		preview, err := d.boolean()
		if err != nil {
			return Request{}, err
		}
		return Request{
			ID: id,
			Enhance: &EnhanceRequest{
				Username:           username,
				AdditionalCaptures: additional,
				ReplaceWeak:        replaceWeak,
				EnablePreview:      preview,
			},
		}, nil
	default:
		return Request{}, fmt.Errorf("codec: unknown request discriminant %d", disc)
	}
}

// DecodeResponse parses the stable binary payload format produced by EncodeResponse.
func DecodeResponse(payload []byte) (Response, error) {
	d := &decoder{buf: payload}
	disc, err := d.u32()
	if err != nil {
		return Response{}, err
	}
	switch disc {
	case discResponseAuth:
		success, err := d.boolean()
		if err != nil {
			return Response{}, err
		}
		message, err := d.str()
		if err != nil {
			return Response{}, err
		}
		attempts, err := d.u32()
		if err != nil {
			return Response{}, err
		}
		sig, err := d.bytes()
		if err != nil {
			return Response{}, err
		}
		ts, err := d.timestamp()
		if err != nil {
			return Response{}, err
		}
		return Response{Auth: &AuthResponse{Success: success, Message: message, Attempts: attempts, Signature: sig, Timestamp: ts}}, nil
	case discResponseEnroll:
		success, err := d.boolean()
		if err != nil {
			return Response{}, err
		}
		message, err := d.str()
		if err != nil {
			return Response{}, err
		}
		return Response{Enroll: &EnrollResponse{Success: success, Message: message}}, nil
	case discResponseEnhance:
		success, err := d.boolean()
		if err != nil {
			return Response{}, err
		}
		message, err := d.str()
		if err != nil {
			return Response{}, err
		}
		before, err := d.u64()
		if err != nil {
			return Response{}, err
		}
		after, err := d.u64()
		if err != nil {
			return Response{}, err
		}
		replaced, err := d.u64()
		if err != nil {
			return Response{}, err
		}
		return Response{Enhance: &EnhanceResponse{
			Success:          success,
			Message:          message,
			EmbeddingsBefore: before,
			EmbeddingsAfter:  after,
			ReplacedCount:    replaced,
		}}, nil
	case discResponseError:
		msg, err := d.str()
		if err != nil {
			return Response{}, err
		}
		return Response{Error: &msg}, nil
	default:
		return Response{}, fmt.Errorf("codec: unknown response discriminant %d", disc)
	}
}

// DecodeStreamMessage parses the stable binary payload format produced by EncodeStreamMessage.
func DecodeStreamMessage(payload []byte) (StreamMessage, error) {
	d := &decoder{buf: payload}
	disc, err := d.u32()
	if err != nil {
		return StreamMessage{}, err
	}
	switch disc {
	case discStreamPreviewFrame:
		ascii, err := d.str()
		if err != nil {
			return StreamMessage{}, err
		}
		captured, err := d.u32()
		if err != nil {
			return StreamMessage{}, err
		}
		total, err := d.u32()
		if err != nil {
			return StreamMessage{}, err
		}
		return StreamMessage{PreviewFrame: &PreviewFrame{ASCII: ascii, Captured: captured, Total: total}}, nil
	case discStreamStatusUpdate:
		msg, err := d.str()
		if err != nil {
			return StreamMessage{}, err
		}
		return StreamMessage{StatusUpdate: &StatusUpdate{Message: msg}}, nil
	case discStreamComplete:
		return StreamMessage{Complete: true}, nil
	default:
		return StreamMessage{}, fmt.Errorf("codec: unknown stream message discriminant %d", disc)
	}
}
