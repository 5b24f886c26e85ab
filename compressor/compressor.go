// Package compressor provides symmetric, lossless byte-size reduction
// for event payloads. Selection happens by configuration; absence of a
// compressor means identity.
package compressor

// Compressor is the contract: Compress and Decompress must be exact
// inverses for every byte slice.
type Compressor interface {
	Topic() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// None is the identity compressor, used when no compressor is configured.
type None struct{}

func (None) Topic() string { return "compress:none" }

func (None) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (None) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
