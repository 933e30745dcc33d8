package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Value header byte.
const (
	codecRaw  byte = 0
	codecZstd byte = 1
)

var errCorrupt = errors.New("corrupt cache value")

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder
}

func zstdDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	return decoder
}

// encode serializes v with msgpack and compresses payloads larger than
// threshold. A threshold <= 0 disables compression.
func encode(v any, threshold int) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	if threshold <= 0 || len(raw) <= threshold {
		return append([]byte{codecRaw}, raw...), nil
	}
	out := make([]byte, 1, len(raw)/2+1)
	out[0] = codecZstd
	return zstdEncoder().EncodeAll(raw, out), nil
}

func decode(data []byte, dst any) error {
	if len(data) < 2 {
		return errCorrupt
	}
	body := data[1:]
	switch data[0] {
	case codecRaw:
	case codecZstd:
		var err error
		body, err = zstdDecoder().DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
	default:
		return fmt.Errorf("%w: codec %d", errCorrupt, data[0])
	}
	if err := msgpack.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}
	return nil
}
