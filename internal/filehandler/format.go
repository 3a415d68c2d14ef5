package filehandler

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9._-]`)
)

// FormatBytes renders a byte count with binary units, e.g. "2.00 MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	value := float64(n) / math.Pow(1024, float64(i))
	if value >= 10 || i == 0 {
		return fmt.Sprintf("%.0f %s", value, sizes[i])
	}
	return fmt.Sprintf("%.2f %s", value, sizes[i])
}

// SafeFileName lowercases name, turns whitespace into underscores and drops
// anything outside [a-z0-9._-].
func SafeFileName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespaceRun.ReplaceAllString(s, "_")
	return unsafeNameChars.ReplaceAllString(s, "")
}

// TitleFromName strips a trailing .pdf extension, case-insensitively.
func TitleFromName(name string) string {
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".pdf") {
		return name[:len(name)-4]
	}
	return name
}
