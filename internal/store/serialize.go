package store

import (
	"encoding/binary"
	"fmt"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// serialize encodes a UserRecord with the same stable binary invariants as the wire codec:
// little-endian integers, u64-length-prefixed sequences, u8-prefixed optionals.
func serialize(u model.UserRecord) []byte {
	var buf []byte
	putU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	putU64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	putF32 := func(v float32) {
		putU32(math32bits(v))
	}
	putStr := func(s string) {
		putU64(uint64(len(s)))
		buf = append(buf, s...)
	}
	putEmbedding := func(e model.Embedding) {
		putU64(uint64(len(e)))
		for _, v := range e {
			putF32(v)
		}
	}

	putU32(u.Version)
	putStr(u.Username)

	putU64(uint64(len(u.Embeddings)))
	for _, e := range u.Embeddings {
		putEmbedding(e)
	}

	if u.AveragedEmbedding == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		putEmbedding(u.AveragedEmbedding)
	}

	if u.Qualities == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		putU64(uint64(len(u.Qualities)))
		for _, q := range u.Qualities {
			putF32(q)
		}
	}

	return buf
}

func deserialize(data []byte) (model.UserRecord, error) {
	pos := 0
	need := func(n int) error {
		if pos+n > len(data) {
			return fmt.Errorf("store: truncated record at offset %d, need %d more bytes", pos, n)
		}
		return nil
	}
	getU32 := func() (uint32, error) {
		if err := need(4); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		return v, nil
	}
	getU64 := func() (uint64, error) {
		if err := need(8); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		return v, nil
	}
	getF32 := func() (float32, error) {
		v, err := getU32()
		if err != nil {
			return 0, err
		}
		return bits32float(v), nil
	}
	getU8 := func() (byte, error) {
		if err := need(1); err != nil {
			return 0, err
		}
		v := data[pos]
		pos++
		return v, nil
	}
	getStr := func() (string, error) {
		n, err := getU64()
		if err != nil {
			return "", err
		}
		if err := need(int(n)); err != nil {
			return "", err
		}
		s := string(data[pos : pos+int(n)])
		pos += int(n)
		return s, nil
	}
	getEmbedding := func() (model.Embedding, error) {
		n, err := getU64()
		if err != nil {
			return nil, err
		}
		e := make(model.Embedding, n)
		for i := range e {
			v, err := getF32()
			if err != nil {
				return nil, err
			}
			e[i] = v
		}
		return e, nil
	}

	var u model.UserRecord
	var err error

	if u.Version, err = getU32(); err != nil {
		return u, err
	}
	if u.Username, err = getStr(); err != nil {
		return u, err
	}

	nEmb, err := getU64()
	if err != nil {
		return u, err
	}
	u.Embeddings = make([]model.Embedding, nEmb)
	for i := range u.Embeddings {
		if u.Embeddings[i], err = getEmbedding(); err != nil {
			return u, err
		}
	}

	hasAvg, err := getU8()
	if err != nil {
		return u, err
	}
	if hasAvg == 1 {
		if u.AveragedEmbedding, err = getEmbedding(); err != nil {
			return u, err
		}
	}

	hasQualities, err := getU8()
	if err != nil {
		return u, err
	}
	if hasQualities == 1 {
		nQ, err := getU64()
		if err != nil {
			return u, err
		}
		u.Qualities = make([]float32, nQ)
		for i := range u.Qualities {
			if u.Qualities[i], err = getF32(); err != nil {
				return u, err
			}
		}
	}

	return u, nil
}
