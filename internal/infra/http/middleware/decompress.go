package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/leakwatch/gateway/pkg/apierror"
)

// DecompressConfig configures the decompression middleware.
type DecompressConfig struct {
	// MaxDecompressedSize bounds the inflated body.
	MaxDecompressedSize int64
	// MaxCompressedSize bounds the bytes read off the wire.
	MaxCompressedSize int64
	// MaxCompressionRatio rejects bodies that inflate beyond this factor.
	MaxCompressionRatio float64
}

// DefaultDecompressConfig suits schedule definitions, which are small.
func DefaultDecompressConfig() DecompressConfig {
	return DecompressConfig{
		MaxDecompressedSize: 1 << 20,
		MaxCompressedSize:   256 << 10,
		MaxCompressionRatio: 100,
	}
}

// Decompress inflates gzip and zstd request bodies. Place it before
// BodyLimit so the limit applies to the inflated size.
func Decompress(cfg DecompressConfig) func(http.Handler) http.Handler {
	def := DefaultDecompressConfig()
	if cfg.MaxDecompressedSize <= 0 {
		cfg.MaxDecompressedSize = def.MaxDecompressedSize
	}
	if cfg.MaxCompressedSize <= 0 {
		cfg.MaxCompressedSize = def.MaxCompressedSize
	}
	if cfg.MaxCompressionRatio <= 0 {
		cfg.MaxCompressionRatio = def.MaxCompressionRatio
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			switch encoding {
			case "", "identity":
				next.ServeHTTP(w, r)
				return
			case "gzip", "zstd":
			default:
				apierror.New(http.StatusUnsupportedMediaType, apierror.CodeBadRequest,
					fmt.Sprintf("Unsupported Content-Encoding: %s", encoding)).
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			body, err := inflate(r.Body, encoding, cfg)
			if err != nil {
				apierror.BadRequest("Invalid compressed request body").
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")

			next.ServeHTTP(w, r)
		})
	}
}

func inflate(body io.ReadCloser, encoding string, cfg DecompressConfig) ([]byte, error) {
	defer body.Close()

	compressed, err := io.ReadAll(io.LimitReader(body, cfg.MaxCompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read compressed body: %w", err)
	}
	if int64(len(compressed)) > cfg.MaxCompressedSize {
		return nil, fmt.Errorf("compressed size exceeds limit %d", cfg.MaxCompressedSize)
	}
	if len(compressed) == 0 {
		return []byte{}, nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gr, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gr.Close()
		reader = gr
	case "zstd":
		//nolint:gosec // MaxDecompressedSize is positive
		zr, err := zstd.NewReader(bytes.NewReader(compressed),
			zstd.WithDecoderMaxMemory(uint64(cfg.MaxDecompressedSize)),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}

	out, err := io.ReadAll(io.LimitReader(reader, cfg.MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if int64(len(out)) > cfg.MaxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds limit %d", cfg.MaxDecompressedSize)
	}
	if ratio := float64(len(out)) / float64(len(compressed)); ratio > cfg.MaxCompressionRatio {
		return nil, fmt.Errorf("compression ratio %.1f exceeds limit %.1f", ratio, cfg.MaxCompressionRatio)
	}
	return out, nil
}
