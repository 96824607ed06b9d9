package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coolbeans/carta/pkg/extract"
)

// Format is an output serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or yaml)", s)
	}
}

// Extension returns the file extension of the format, with the dot.
func (f Format) Extension() string {
	if f == FormatYAML {
		return ".yaml"
	}
	return ".json"
}

// MediaType returns the MIME type recorded in the manifest.
func (f Format) MediaType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Encode serializes doc in the format, keeping key insertion order.
func (f Format) Encode(doc *extract.Mapping) ([]byte, error) {
	switch f {
	case FormatJSON:
		return extract.EncodeJSON(doc)
	case FormatYAML:
		return extract.EncodeYAML(doc)
	default:
		return nil, fmt.Errorf("unknown output format %q", string(f))
	}
}

// WriteFile writes data to path, creating parent directories. Replacing an
// existing file is allowed and logged as a warning.
func WriteFile(path string, data []byte, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return errors.New("output path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory %s: %w", dir, err)
		}
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("output path %s is a directory", path)
	case err == nil:
		logger.Warn("overwriting existing file", "path", path)
	case !os.IsNotExist(err):
		return fmt.Errorf("checking output path %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Info("output written", "path", path, "bytes", len(data))
	return nil
}
