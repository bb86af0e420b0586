// internal/services/content_store.go
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/Corphon/StoryEngine/internal/errors"
	"github.com/Corphon/StoryEngine/internal/models"
	"github.com/Corphon/StoryEngine/internal/schema"
	"github.com/Corphon/StoryEngine/internal/storage"
	"github.com/Corphon/StoryEngine/internal/utils"
)

const (
	storiesDir = "stories"
	trashDir   = ".trash"
)

// 客户端可见的错误消息
const (
	msgInvalidStoryID      = "Invalid story id."
	msgInvalidJSON         = "Invalid JSON body."
	msgStoryValidation     = "Story config failed validation."
	msgStoryNotFound       = "Story not found."
	msgReadStory           = "Failed to read story."
	msgWriteStory          = "Failed to write story."
	msgDeleteStory         = "Failed to delete story."
	msgListStories         = "Failed to list stories."
	msgInvalidContentFile  = "Invalid content file."
	msgContentValidation   = "Content file failed validation."
	msgContentNotFound     = "Content file not found."
	msgReadContent         = "Failed to read content file."
	msgWriteContent        = "Failed to write content file."
	msgInvalidMediaType    = "Invalid media type."
	msgListMedia           = "Failed to list media."
	msgMissingNameOrData   = "Missing file name or data."
	msgInvalidFileName     = "Invalid file name."
	msgUnsupportedFileType = "Unsupported file type."
	msgInvalidFileData     = "Invalid file data."
	msgFileTooLarge        = "File is too large."
	msgFileExists          = "File already exists."
	msgUploadFailed        = "Failed to upload file."
	msgFileNotFound        = "File not found."
	msgDeleteFileFailed    = "Failed to delete file."
)

// EventPublisher receives a notification after every successful mutation.
type EventPublisher interface {
	Publish(event models.ChangeEvent)
}

// ContentStoreConfig ContentStore 依赖
type ContentStoreConfig struct {
	MaxUploadBytes int64
	Logger         *zap.Logger
	Metrics        *utils.Metrics
	Publisher      EventPublisher
}

// ContentStore 内容根目录上的故事、首页/关于页和媒体库操作。
// Every method returns *apperrors.AppError values whose Message is safe to
// send to clients.
type ContentStore struct {
	storage   *storage.FileStorage
	maxUpload int64
	logger    *zap.Logger
	metrics   *utils.Metrics
	publisher EventPublisher
	now       func() time.Time
}

// NewContentStore 创建内容存储服务
func NewContentStore(fileStorage *storage.FileStorage, cfg ContentStoreConfig) *ContentStore {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &ContentStore{
		storage:   fileStorage,
		maxUpload: cfg.MaxUploadBytes,
		logger:    cfg.Logger.Named("content_store"),
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		now:       time.Now,
	}
}

// SetPublisher attaches the change feed after construction.
func (s *ContentStore) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// MaxUploadBytes 解码后的上传上限
func (s *ContentStore) MaxUploadBytes() int64 {
	return s.maxUpload
}

// ListStories 列出 stories/ 中的所有 *.json，顺序为目录枚举顺序
func (s *ContentStore) ListStories(ctx context.Context) (entries []models.StoryIndexEntry, err error) {
	defer s.observe("list_stories", time.Now(), &err)

	entries, err = listStoryEntries(s.storage)
	if err != nil {
		s.logger.Error("list stories failed", zap.Error(err))
		return nil, apperrors.NewProcessingError(msgListStories, err)
	}
	return entries, nil
}

// ReadStory 返回存储的故事原文，不做 schema 校验
func (s *ContentStore) ReadStory(ctx context.Context, id string) (raw json.RawMessage, err error) {
	defer s.observe("read_story", time.Now(), &err)

	if !ValidStoryID(id) {
		return nil, apperrors.NewValidationError(msgInvalidStoryID, nil)
	}
	return s.readDocument(storiesDir, id+".json", msgStoryNotFound, msgReadStory)
}

// WriteStory 校验并整体替换故事文件，持久化规范化后的文档
func (s *ContentStore) WriteStory(ctx context.Context, id string, body []byte) (doc *models.StoryDocument, err error) {
	defer s.observe("write_story", time.Now(), &err)

	if !ValidStoryID(id) {
		return nil, apperrors.NewValidationError(msgInvalidStoryID, nil)
	}

	doc, err = schema.ParseStory(body)
	if err != nil {
		return nil, parseFailure(err, msgStoryValidation)
	}

	if err := s.storage.SaveJSONFile(storiesDir, id+".json", doc); err != nil {
		s.logger.Error("write story failed", zap.String("id", id), zap.Error(err))
		return nil, apperrors.NewProcessingError(msgWriteStory, err)
	}

	s.logger.Info("story saved", zap.String("id", id), zap.Int("pages", len(doc.Pages)))
	s.publish(models.ChangeEvent{Type: models.EventStorySaved, ID: id})
	return doc, nil
}

// DeleteStory 硬删除故事文件，故事没有回收站
func (s *ContentStore) DeleteStory(ctx context.Context, id string) (err error) {
	defer s.observe("delete_story", time.Now(), &err)

	if !ValidStoryID(id) {
		return apperrors.NewValidationError(msgInvalidStoryID, nil)
	}

	if err := s.storage.DeleteFile(storiesDir, id+".json"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.NewNotFoundError(msgStoryNotFound, err)
		}
		s.logger.Error("delete story failed", zap.String("id", id), zap.Error(err))
		return apperrors.NewProcessingError(msgDeleteStory, err)
	}

	s.logger.Info("story deleted", zap.String("id", id))
	s.publish(models.ChangeEvent{Type: models.EventStoryDeleted, ID: id})
	return nil
}

// ReadContent 读取 home.json 或 about.json
func (s *ContentStore) ReadContent(ctx context.Context, file string) (raw json.RawMessage, err error) {
	defer s.observe("read_content", time.Now(), &err)

	if !schema.IsContentFile(file) {
		return nil, apperrors.NewValidationError(msgInvalidContentFile, nil)
	}
	return s.readDocument("", file, msgContentNotFound, msgReadContent)
}

// WriteContent 按文件名选择 schema，校验后整体替换
func (s *ContentStore) WriteContent(ctx context.Context, file string, body []byte) (doc any, err error) {
	defer s.observe("write_content", time.Now(), &err)

	if !schema.IsContentFile(file) {
		return nil, apperrors.NewValidationError(msgInvalidContentFile, nil)
	}

	doc, err = schema.ParseContent(file, body)
	if err != nil {
		return nil, parseFailure(err, msgContentValidation)
	}

	if err := s.storage.SaveJSONFile("", file, doc); err != nil {
		s.logger.Error("write content failed", zap.String("file", file), zap.Error(err))
		return nil, apperrors.NewProcessingError(msgWriteContent, err)
	}

	s.logger.Info("content saved", zap.String("file", file))
	s.publish(models.ChangeEvent{Type: models.EventContentSaved, File: file})
	return doc, nil
}

// ListMedia 列出某类媒体，目录不存在时返回空列表
func (s *ContentStore) ListMedia(ctx context.Context, mediaType string) (files []models.MediaFile, err error) {
	defer s.observe("list_media", time.Now(), &err)

	folder, ok := MediaFolder(mediaType)
	if !ok {
		return nil, apperrors.NewValidationError(msgInvalidMediaType, nil)
	}

	entries, err := s.storage.ListFiles(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.MediaFile{}, nil
		}
		s.logger.Error("list media failed", zap.String("type", mediaType), zap.Error(err))
		return nil, apperrors.NewProcessingError(msgListMedia, err)
	}

	files = make([]models.MediaFile, 0, len(entries))
	for _, entry := range entries {
		files = append(files, models.MediaFile{
			Name:      entry.Name,
			Path:      mediaPath(folder, entry.Name),
			Size:      entry.Size,
			UpdatedAt: entry.ModTime.UnixMilli(),
		})
	}
	return files, nil
}

// UploadMedia 解码 data URL 并创建新文件，同名文件存在时返回冲突，绝不覆盖
func (s *ContentStore) UploadMedia(ctx context.Context, mediaType string, upload models.MediaUpload) (relPath string, err error) {
	defer s.observe("upload_media", time.Now(), &err)

	folder, ok := MediaFolder(mediaType)
	if !ok {
		return "", apperrors.NewValidationError(msgInvalidMediaType, nil)
	}
	if upload.Name == "" || upload.Data == "" {
		return "", apperrors.NewValidationError(msgMissingNameOrData, nil)
	}

	fileName := SanitizeFileName(upload.Name)
	if fileName == "" {
		return "", apperrors.NewValidationError(msgInvalidFileName, nil)
	}
	if !AllowedExtension(models.MediaType(mediaType), fileName) {
		return "", apperrors.NewValidationError(msgUnsupportedFileType, nil)
	}

	payload := dataURLPayload(upload.Data)
	if payload == "" {
		return "", apperrors.NewValidationError(msgInvalidFileData, nil)
	}
	if s.storage.FileExists(folder, fileName) {
		return "", apperrors.NewConflictError(msgFileExists, nil)
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxUpload+2 {
		return "", apperrors.NewTooLargeError(msgFileTooLarge, nil)
	}

	data, err := decodeBase64(payload)
	if err != nil || len(data) == 0 {
		return "", apperrors.NewValidationError(msgInvalidFileData, err)
	}
	if int64(len(data)) > s.maxUpload {
		return "", apperrors.NewTooLargeError(msgFileTooLarge, nil)
	}

	if err := s.storage.CreateExclusive(folder, fileName, data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return "", apperrors.NewConflictError(msgFileExists, err)
		}
		s.logger.Error("upload media failed", zap.String("type", mediaType), zap.String("name", fileName), zap.Error(err))
		return "", apperrors.NewProcessingError(msgUploadFailed, err)
	}

	relPath = mediaPath(folder, fileName)
	if s.metrics != nil {
		s.metrics.UploadedBytes.Add(float64(len(data)))
	}
	s.logger.Info("media uploaded", zap.String("path", relPath), zap.Int("bytes", len(data)))
	s.publish(models.ChangeEvent{Type: models.EventMediaUploaded, Path: relPath})
	return relPath, nil
}

// DeleteMedia 将媒体文件移入 .trash/<folder>/<unix毫秒>-<name>
func (s *ContentStore) DeleteMedia(ctx context.Context, mediaType, name string) (err error) {
	defer s.observe("delete_media", time.Now(), &err)

	folder, ok := MediaFolder(mediaType)
	if !ok {
		return apperrors.NewValidationError(msgInvalidMediaType, nil)
	}

	fileName := SanitizeFileName(name)
	if fileName == "" {
		return apperrors.NewValidationError(msgInvalidFileName, nil)
	}
	if !s.storage.FileExists(folder, fileName) {
		return apperrors.NewNotFoundError(msgFileNotFound, nil)
	}

	trashName := fmt.Sprintf("%d-%s", s.now().UnixMilli(), fileName)
	if err := s.storage.MoveFile(folder, fileName, filepath.Join(trashDir, folder), trashName); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.NewNotFoundError(msgFileNotFound, err)
		}
		s.logger.Error("trash media failed", zap.String("type", mediaType), zap.String("name", fileName), zap.Error(err))
		return apperrors.NewProcessingError(msgDeleteFileFailed, err)
	}

	s.logger.Info("media trashed", zap.String("path", mediaPath(folder, fileName)), zap.String("trash", trashName))
	s.publish(models.ChangeEvent{Type: models.EventMediaTrashed, Path: mediaPath(folder, fileName)})
	return nil
}

func (s *ContentStore) readDocument(dir, file, notFoundMsg, failMsg string) (json.RawMessage, error) {
	raw, err := s.storage.LoadFile(dir, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(notFoundMsg, err)
		}
		s.logger.Error("read document failed", zap.String("file", path.Join(dir, file)), zap.Error(err))
		return nil, apperrors.NewProcessingError(failMsg, err)
	}
	if !json.Valid(raw) {
		s.logger.Error("stored document is not valid JSON", zap.String("file", path.Join(dir, file)))
		return nil, apperrors.NewProcessingError(failMsg, schema.ErrMalformedJSON)
	}
	return json.RawMessage(raw), nil
}

func (s *ContentStore) publish(event models.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = s.now().UnixMilli()
	s.publisher.Publish(event)
}

func (s *ContentStore) observe(operation string, start time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = string(apperrors.TypeOf(*errp))
	}
	s.metrics.ObserveOperation(operation, outcome, start)
}

// parseFailure maps schema errors onto the client-facing taxonomy.
func parseFailure(err error, validationMsg string) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		issues := make([]apperrors.FieldIssue, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			issues = append(issues, apperrors.FieldIssue{Path: f.Path, Message: f.Message})
		}
		return apperrors.NewSchemaError(validationMsg, issues, err)
	}
	return apperrors.NewValidationError(msgInvalidJSON, err)
}

func mediaPath(folder, name string) string {
	return "/" + folder + "/" + name
}

// listStoryEntries 扫描 stories/，缺少目录时返回空列表
func listStoryEntries(fileStorage *storage.FileStorage) ([]models.StoryIndexEntry, error) {
	files, err := fileStorage.ListFiles(storiesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.StoryIndexEntry{}, nil
		}
		return nil, err
	}

	entries := make([]models.StoryIndexEntry, 0, len(files))
	for _, file := range files {
		if filepath.Ext(file.Name) != ".json" {
			continue
		}
		entries = append(entries, models.StoryIndexEntry{
			ID:         file.Name[:len(file.Name)-len(".json")],
			ConfigPath: "/" + storiesDir + "/" + file.Name,
		})
	}
	return entries, nil
}
