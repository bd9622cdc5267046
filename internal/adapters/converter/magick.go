package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"webpify/internal/core/domain"
)

// MagickTool binds the image inspector and image converter ports to an
// ImageMagick installation. Version 7 ships a single "magick" binary; older
// installations expose the classic "convert"/"identify" pair. One binding is
// chosen at construction time.
type MagickTool struct {
	convertBinary  []string
	identifyBinary []string
}

func NewMagickTool() (*MagickTool, error) {
	m := &MagickTool{}
	commands := [][]string{{"magick", "-version"}, {"convert", "-version"}}

	for _, command := range commands {
		_, err := exec.Command(command[0], command[1:]...).Output()
		if err != nil {
			log.Debug().Strs("command", command).Msg("binary not found")
			continue
		}

		log.Debug().Strs("command", command).Msg("binary found")
		if command[0] == "magick" {
			m.convertBinary = []string{"magick"}
			m.identifyBinary = []string{"magick", "identify"}
		} else {
			m.convertBinary = []string{"convert"}
			m.identifyBinary = []string{"identify"}
		}
		break
	}

	if len(m.convertBinary) == 0 {
		return nil, errors.New("imagemagick binary not available")
	}

	return m, nil
}

// SupportsWebP reports whether the bound ImageMagick build carries a WebP
// encoder delegate.
func (m *MagickTool) SupportsWebP() bool {
	args := append(append([]string{}, m.convertBinary...), "-list", "format")

	out, err := exec.Command(args[0], args[1:]...).Output()
	if err != nil {
		log.Warn().Err(err).Msg("could not list imagemagick formats")
		return false
	}

	return strings.Contains(strings.ToUpper(string(out)), "WEBP")
}

// Inspect queries pixel dimensions via identify and the byte size via stat.
func (m *MagickTool) Inspect(ctx context.Context, path string) (domain.ImageInfo, error) {
	args := append(append([]string{}, m.identifyBinary...), "-format", "%w %h", path)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.Output()
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("identify failed")
		return domain.ImageInfo{}, fmt.Errorf("identifying %s: %w", path, err)
	}

	width, height, err := parseDimensions(string(out))
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("identifying %s: %w", path, err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return domain.ImageInfo{Width: width, Height: height, Bytes: stat.Size()}, nil
}

// Convert shells out for the actual resize/re-encode. The geometry carries
// the ">" suffix, so ImageMagick only ever shrinks, preserving aspect ratio.
func (m *MagickTool) Convert(ctx context.Context, inPath, outPath string, opts domain.ConvertOptions) error {
	args := append(append([]string{}, m.convertBinary...),
		inPath,
		"-resize", resizeGeometry(opts.MaxWidth, opts.MaxHeight),
		"-quality", strconv.Itoa(opts.Quality),
		"-strip",
		outPath,
	)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Debug().Bytes("magickOutput", out).Str("path", inPath).Msg("convert failed")
		return fmt.Errorf("converting %s: %w", inPath, err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("converting %s: no output produced: %w", inPath, err)
	}

	return nil
}

// resizeGeometry builds a shrink-only bounding box geometry like "1200x1200>".
func resizeGeometry(maxWidth, maxHeight int) string {
	return fmt.Sprintf("%dx%d>", maxWidth, maxHeight)
}

// parseDimensions reads "width height" as printed by identify -format "%w %h".
// Multi-frame images (animated GIFs, layered files) repeat the format per
// frame; only the first pair is used.
func parseDimensions(out string) (int, int, error) {
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected identify output %q", out)
	}

	width, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected identify output %q", out)
	}
	height, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected identify output %q", out)
	}

	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("degenerate dimensions %dx%d", width, height)
	}

	return width, height, nil
}
