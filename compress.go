package pixelrts

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdEncErr  error

	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
	zstdDecErr  error
)

func zstdEncoder() (*zstd.Encoder, error) {
	zstdEncOnce.Do(func() {
		zstdEnc, zstdEncErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return zstdEnc, zstdEncErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	zstdDecOnce.Do(func() {
		zstdDec, zstdDecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdDec, zstdDecErr
}

// compress returns payload as a single zstd frame. EncodeAll is safe for
// concurrent use on a shared encoder.
func compress(payload []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("pixelrts: zstd encoder: %w", err)
	}
	return enc.EncodeAll(payload, make([]byte, 0, len(payload)/2+64)), nil
}

// decompress expands a zstd frame. limit bounds the output size.
func decompress(frame []byte, limit int) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("pixelrts: zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(frame, make([]byte, 0, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrIntegrity, err)
	}
	if len(out) != limit {
		return nil, fmt.Errorf("%w: decompressed %d bytes, data_size is %d", ErrIntegrity, len(out), limit)
	}
	return out, nil
}
