package compressor

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/errkind"
)

// Zstd compresses with github.com/klauspost/compress/zstd, the
// higher-ratio option selected by COMPRESSOR_TOPIC=compress:zstd.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd builds a reusable encoder/decoder pair. Both are safe for
// concurrent use by multiple goroutines.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("zstd: new encoder: %w", err))
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, faults.Wrap(fmt.Errorf("zstd: new decoder: %w", err))
	}
	return &Zstd{encoder: enc, decoder: dec}, nil
}

func (*Zstd) Topic() string { return "compress:zstd" }

func (z *Zstd) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (z *Zstd) Decompress(data []byte) ([]byte, error) {
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: zstd decompress: %v", errkind.Integrity, err))
	}
	return out, nil
}

// Close releases the decoder's background goroutines.
func (z *Zstd) Close() {
	z.decoder.Close()
}
