package persistence

import (
	"fmt"
	"github.com/klauspost/compress/zstd"
	"streamflix/internal/persistence/interfaces"
	"streamflix/internal/structures"
)

// maxDecodedSize bounds the memory a snapshot or archive bucket may expand to.
const maxDecodedSize = 1 << 30

type ZstdCompression struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func (z *ZstdCompression) Compress(val []byte) ([]byte, error) {
	return z.encoder.EncodeAll(val, make([]byte, 0, len(val)/2)), nil
}

func (z *ZstdCompression) Decompress(val []byte) ([]byte, error) {
	return z.decoder.DecodeAll(val, nil)
}

func (z *ZstdCompression) Close() {
	_ = z.encoder.Close()
	z.decoder.Close()
}

// NewZstdCompressor builds the codec shared by the ledger snapshot and the
// history archive. An empty compression level means "default".
func NewZstdCompressor(conf *structures.Config) (interfaces.CompressorInterface, error) {
	level := zstd.SpeedDefault
	if name := conf.Persistence.CompressionLevel; name != "" {
		ok, l := zstd.EncoderLevelFromString(name)
		if !ok {
			return nil, fmt.Errorf("unknown zstd level %q", name)
		}
		level = l
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ZstdCompression{encoder: encoder, decoder: decoder}, nil
}
