// Package privacy sanitizes camera addresses and error messages before they
// reach logs or telemetry.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`\b(?:https?|rtsp|rtsps|rtmp)://\S+`)

// ScrubMessage replaces every stream URL in message with its sanitized form.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, SanitizeStreamURL)
}

// SanitizeStreamURL strips credentials, path and query from a network
// camera address, keeping scheme, host and port for debugging. Local paths
// and device names are returned unchanged.
func SanitizeStreamURL(source string) string {
	if !strings.Contains(source, "://") {
		return source
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		// unparsable: keep only the scheme
		scheme, _, _ := strings.Cut(source, "://")
		return scheme + "://[REDACTED]"
	}
	return u.Scheme + "://" + u.Host
}
