// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a stored value is compressed. The numeric
// values are written to the database and must not change.
type Compression uint8

const (
	// CompressionNone stores the encoded value as is.
	CompressionNone Compression = 0

	// CompressionLZ4 uses LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses zstd at the default level: better ratio
	// for text-like values.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("kvstore: unknown compression %q", name)
	}
}

// MaxValueSize is the largest encoded value Put accepts. Get treats a
// stored size outside [0, MaxValueSize] as corruption.
const MaxValueSize = 64 << 20

// errIncompressible means compression would not shrink the value; the
// caller stores it uncompressed instead.
var errIncompressible = errors.New("kvstore: value is incompressible")

// zstd encoders and decoders are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("kvstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxValueSize))
	if err != nil {
		panic("kvstore: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte, algorithm Compression) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports 0 for data it cannot compress.
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression %s", algorithm)
	}
}

// decompress reverses compress. size is the length of the original
// data and is verified.
func decompress(data []byte, algorithm Compression, size int) ([]byte, error) {
	if size < 0 || size > MaxValueSize {
		return nil, fmt.Errorf("%s decompress: stored size %d outside [0, %d]", algorithm, size, MaxValueSize)
	}
	var (
		result []byte
		err    error
	)
	switch algorithm {
	case CompressionNone:
		result = data

	case CompressionLZ4:
		result = make([]byte, size)
		var read int
		read, err = lz4.UncompressBlock(data, result)
		result = result[:max(read, 0)]

	case CompressionZstd:
		result, err = zstdDecoder.DecodeAll(data, make([]byte, 0, size))

	default:
		return nil, fmt.Errorf("unsupported compression %s", algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", algorithm, err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("%s decompress: got %d bytes, expected %d", algorithm, len(result), size)
	}
	return result, nil
}
