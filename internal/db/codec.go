package db

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// blobCodec stores JSON documents as zstd frames. Encoders and decoders are
// pooled; both are safe to reuse across calls once returned to the pool.
type blobCodec struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newBlobCodec() *blobCodec {
	return &blobCodec{
		encoders: sync.Pool{
			New: func() any {
				e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
				}
				return e
			},
		},
		decoders: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

func (c *blobCodec) encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal blob: %w", err)
	}
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (c *blobCodec) decode(data []byte, v any) error {
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("zstd decompression failed: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal blob: %w", err)
	}
	return nil
}
