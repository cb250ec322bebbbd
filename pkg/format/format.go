// Package format renders clipboard content for log output
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/berrythewa/clipbridge/internal/types"
)

// DefaultPreviewLen is the rune limit used for debug log previews
const DefaultPreviewLen = 40

// Preview creates a short single-line preview of text content
func Preview(content *types.ClipboardContent, maxLen int) string {
	if content == nil {
		return ""
	}
	if content.Cleared {
		return "(cleared)"
	}

	preview := strings.ReplaceAll(content.Text(), "\r\n", " ")
	preview = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(preview)
	return TruncateText(preview, maxLen)
}

// FormatSize formats a byte count as a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// TruncateText truncates text to maxLen runes with ellipsis
func TruncateText(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}

	runes := []rune(text)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
