// Package privacy scrubs credentials and user content identifiers from
// messages before they are logged or reported.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	urlPattern = regexp.MustCompile(`\bhttps?://\S+`)

	// absolute paths ending in an audio file name
	audioPathPattern = regexp.MustCompile(`(?i)(?:/|[a-z]:\\)\S*\.(?:wav|mp3|m4a|mp4|flac|ogg|oga|aif|aiff|raw|pcm)\b`)

	// md5 digests identify the uploaded track
	digestPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32}\b`)

	apiKeyPattern = regexp.MustCompile(`(?i)api[_-]?key[=:]\s*\S+`)
)

// ScrubMessage anonymizes URLs, audio file paths, API keys and content
// digests found in message.
func ScrubMessage(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	scrubbed = apiKeyPattern.ReplaceAllString(scrubbed, "api_key=[REDACTED]")
	scrubbed = audioPathPattern.ReplaceAllStringFunc(scrubbed, anonymizePath)
	return digestPattern.ReplaceAllString(scrubbed, "[DIGEST]")
}

// AnonymizeURL keeps the scheme, host and path of rawURL and drops the
// query string and credentials. The API key travels in the query.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "[REDACTED]"
	}
	parsed.Fragment = ""
	return parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath() + querySuffix(parsed.RawQuery)
}

func querySuffix(q string) string {
	if q == "" {
		return ""
	}
	return "?" + q
}

// anonymizePath replaces a file path with a hash, keeping the extension.
func anonymizePath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	hash := sha256.Sum256([]byte(path))
	return fmt.Sprintf("file-%x%s", hash[:6], ext)
}
