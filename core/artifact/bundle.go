package artifact

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/artpar/nodecfg/pkg/codec"
)

// Package-level zstd encoder and decoder; both are safe for concurrent
// EncodeAll/DecodeAll calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifact: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder initialization failed: " + err.Error())
	}
}

// bundle is the encoded form of several artifacts.
type bundle struct {
	Version   int      `cbor:"v"`
	Artifacts [][]byte `cbor:"artifacts"`
}

const bundleVersion = 1

// WriteBundle writes artifacts as one zstd-compressed CBOR bundle.
func WriteBundle(w io.Writer, artifacts []*Artifact) error {
	b := bundle{Version: bundleVersion}
	for _, a := range artifacts {
		data, err := a.Encode()
		if err != nil {
			return err
		}
		b.Artifacts = append(b.Artifacts, data)
	}

	raw, err := codec.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if _, err := w.Write(zstdEncoder.EncodeAll(raw, nil)); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// ReadBundle reads a bundle written with WriteBundle. Digests are
// recomputed from the stored encodings.
func ReadBundle(r io.Reader) ([]*Artifact, error) {
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress bundle: %w", err)
	}

	var b bundle
	if err := codec.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Version != bundleVersion {
		return nil, fmt.Errorf("decode bundle: unsupported version %d", b.Version)
	}

	result := make([]*Artifact, 0, len(b.Artifacts))
	for _, data := range b.Artifacts {
		a, err := Decode(data)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}
