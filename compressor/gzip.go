package compressor

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/errkind"
)

// Gzip compresses with the standard library's gzip implementation, kept
// alongside Zstd as the cheaper, lower-ratio option.
type Gzip struct{}

func (Gzip) Topic() string { return "compress:gzip" }

func (Gzip) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: gzip compress: %v", errkind.Integrity, err))
	}
	if err := w.Close(); err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: gzip compress: %v", errkind.Integrity, err))
	}
	return buf.Bytes(), nil
}

func (Gzip) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: gzip decompress: %v", errkind.Integrity, err))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, faults.Wrap(fmt.Errorf("%w: gzip decompress: %v", errkind.Integrity, err))
	}
	return out, nil
}
