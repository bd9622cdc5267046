package port

import (
	"context"

	"webpify/internal/core/domain"
)

type ImageInspector interface {
	// Inspect returns the pixel dimensions and byte size of the image at path,
	// or an error if the file is unreadable or not a decodable image.
	Inspect(ctx context.Context, path string) (domain.ImageInfo, error)
}

type ImageConverter interface {
	// Convert re-encodes the image at inPath to outPath, applying the
	// shrink-only bounds and quality in opts and stripping metadata. inPath
	// and outPath may be equal for an in-place re-encode. The target format
	// is inferred from outPath's extension.
	Convert(ctx context.Context, inPath, outPath string, opts domain.ConvertOptions) error
}
