// internal/models/event.go
package models

// ChangeEventType 内容变更事件类型
type ChangeEventType string

const (
	EventStorySaved    ChangeEventType = "story.saved"
	EventStoryDeleted  ChangeEventType = "story.deleted"
	EventContentSaved  ChangeEventType = "content.saved"
	EventMediaUploaded ChangeEventType = "media.uploaded"
	EventMediaTrashed  ChangeEventType = "media.trashed"
	EventIndexUpdated  ChangeEventType = "index.updated"
)

// ChangeEvent 推送给编辑器的变更通知
type ChangeEvent struct {
	Type      ChangeEventType `json:"type"`
	ID        string          `json:"id,omitempty"`
	File      string          `json:"file,omitempty"`
	Path      string          `json:"path,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix millis
}
