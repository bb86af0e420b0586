// internal/safeurl/safeurl.go
package safeurl

import (
	"net/url"
	"regexp"
	"strings"
)

var absoluteSchemePattern = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*:`)

// blockedPrefixes are compared against the lower-cased value.
var blockedPrefixes = []string{"javascript:", "data:", "vbscript:", "blob:"}

// IsSafeAssetURL 判断一个字符串能否安全地作为 src/href 输出。
// Relative and root-relative paths are safe, absolute URLs only with http or https.
func IsSafeAssetURL(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}

	// protocol-relative URLs inherit the page scheme and host, block them
	if strings.HasPrefix(trimmed, "//") {
		return false
	}

	lower := strings.ToLower(trimmed)
	for _, prefix := range blockedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	if !absoluteSchemePattern.MatchString(trimmed) {
		return true
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}
