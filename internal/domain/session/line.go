package session

import "strings"

// Result markers printed by the enumeration tool at the start of a line.
const (
	MarkerPositive = "[+]"
	MarkerNegative = "[-]"
	MarkerNotice   = "[!]"
)

// LineKind classifies a line of tool output.
type LineKind int

const (
	// LineNoise is a blank line, a banner or any other line without a marker.
	LineNoise LineKind = iota
	// LineResult is a checked site that did not match.
	LineResult
	// LinePositive is a checked site where the target was found.
	LinePositive
)

// ClassifyLine trims raw and reports what kind of line it is. The trimmed
// text is returned for result lines.
func ClassifyLine(raw string) (string, LineKind) {
	line := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(line, MarkerPositive):
		return line, LinePositive
	case strings.HasPrefix(line, MarkerNegative), strings.HasPrefix(line, MarkerNotice):
		return line, LineResult
	default:
		return "", LineNoise
	}
}
