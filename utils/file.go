package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SaveWithTimestamp writes data to dir as <name>_<unix><ext>, with characters
// outside [A-Za-z0-9._-] replaced by '_'. It returns the written path.
func SaveWithTimestamp(dir, filename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	name := SanitizeFilename(fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext))
	dest := filepath.Join(dir, name)

	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return dest, nil
}

func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
}
