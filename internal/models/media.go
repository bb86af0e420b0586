// internal/models/media.go
package models

// MediaType 媒体库分类
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

// MediaFile 媒体目录中的一个文件，由目录列表生成，不单独持久化
type MediaFile struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	UpdatedAt int64  `json:"updatedAt"` // unix millis
}

// MediaUpload POST /media 请求体
type MediaUpload struct {
	Name string `json:"name"`
	Data string `json:"data"`
}
