// internal/services/media.go
package services

import (
	"encoding/base64"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Corphon/StoryEngine/internal/models"
)

// DefaultMaxUploadBytes 解码后的上传上限
const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

var storyIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

var mediaFolders = map[models.MediaType]string{
	models.MediaTypeImage: "images",
	models.MediaTypeVideo: "videos",
	models.MediaTypeAudio: "audio",
}

var mediaExtensions = map[models.MediaType][]string{
	models.MediaTypeImage: {".jpg", ".jpeg", ".png", ".webp", ".gif", ".svg"},
	models.MediaTypeVideo: {".mp4", ".webm", ".mov", ".m4v"},
	models.MediaTypeAudio: {".mp3", ".wav", ".ogg", ".m4a"},
}

// ValidStoryID reports whether id can name a story file.
func ValidStoryID(id string) bool {
	return storyIDPattern.MatchString(id)
}

// MediaFolder maps a media type to its folder under the content root.
func MediaFolder(mediaType string) (string, bool) {
	folder, ok := mediaFolders[models.MediaType(mediaType)]
	return folder, ok
}

// SanitizeFileName keeps only the last path element of name, for both
// separators. It returns "" when nothing usable remains.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return ""
	}
	return name
}

// AllowedExtension checks the file extension against the per-type allow-list.
func AllowedExtension(mediaType models.MediaType, fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range mediaExtensions[mediaType] {
		if ext == allowed {
			return true
		}
	}
	return false
}

// dataURLPayload returns the part after the first comma of a data URL.
func dataURLPayload(data string) string {
	idx := strings.IndexByte(data, ',')
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(data[idx+1:])
}

// decodeBase64 accepts padded and unpadded standard base64.
func decodeBase64(payload string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
}
