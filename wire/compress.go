package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

/*
Payload compression. Brotli is the only algorithm on the wire; the handshake
carries a list so a future algorithm can be added without a frame change.
Compression only pays for itself on larger payloads, so the codec applies it
above a threshold and signals it per-frame with the compressed flag.
*/

////////////////////////////////////////////////////////////////////////////////

// CompressionBrotli is the advertised name of the Brotli algorithm.
const CompressionBrotli = "brotli"

// SupportedCompression lists the algorithms this build understands, in
// preference order.
var SupportedCompression = []string{CompressionBrotli}

// compressThreshold is the payload size above which compression is applied.
const compressThreshold = 1024

// SelectCompression returns the first locally supported algorithm in the
// peer's offer, or empty when there is no overlap.
func SelectCompression(offered []string) string {
	for _, ours := range SupportedCompression {
		for _, theirs := range offered {
			if ours == theirs {
				return ours
			}
		}
	}
	return ""
}

func compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush compressed payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(payload))
	out, err := io.ReadAll(io.LimitReader(r, MaxFrameSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if len(out) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}
