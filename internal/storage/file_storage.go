// internal/storage/file_storage.go
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrExists is returned by CreateExclusive when the target is already present.
var ErrExists = fs.ErrExist

// FileEntry 目录中的一个普通文件
type FileEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FileStorage 提供内容根目录下的文件存储服务。
// dirPath and filename arguments must already be validated by the caller;
// FileStorage only joins them under BaseDir.
type FileStorage struct {
	BaseDir string

	// 并发控制
	fileLocks sync.Map // 文件级别锁 path -> *sync.RWMutex

	cache *DocumentCache
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string, cache *DocumentCache) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	if cache == nil {
		cache = NewDocumentCache(0, 0)
	}

	return &FileStorage{
		BaseDir: baseDir,
		cache:   cache,
	}, nil
}

// Cache 返回底层文档缓存
func (fs *FileStorage) Cache() *DocumentCache {
	return fs.cache
}

// Path 返回 dirPath/filename 在内容根目录下的完整路径
func (fs *FileStorage) Path(dirPath, filename string) string {
	return filepath.Join(fs.BaseDir, dirPath, filename)
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile 原子写入文件：先写同目录临时文件再重命名
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	// dot prefix keeps the temp file out of directory listings
	tmp, err := os.CreateTemp(fullDirPath, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("设置文件权限失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}

	fs.cache.Invalidate(fullPath)
	return nil
}

// MarshalDocument 序列化为两空格缩进的 JSON，不转义 HTML 字符
func MarshalDocument(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveJSONFile 保存JSON文件
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, data interface{}) error {
	content, err := MarshalDocument(data)
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	return fs.SaveTextFile(dirPath, filename, content)
}

// LoadFile 读取文件，经过文档缓存
func (fs *FileStorage) LoadFile(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := fs.cache.Read(fullPath)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return content, nil
}

// LoadJSONFile 读取并解析JSON文件
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadFile(dirPath, filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// DirExists 检查目录是否存在
func (fs *FileStorage) DirExists(dirPath string) bool {
	info, err := os.Stat(filepath.Join(fs.BaseDir, dirPath))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FileExists 检查普通文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	info, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	return err == nil && info.Mode().IsRegular()
}

// DeleteFile 删除文件，不存在时返回 fs.ErrNotExist
func (fs *FileStorage) DeleteFile(dirPath, filename string) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("删除文件失败: %w", err)
	}

	fs.cache.Invalidate(fullPath)
	return nil
}

// MoveFile 移动文件，目标目录按需创建
func (fs *FileStorage) MoveFile(srcDir, srcName, dstDir, dstName string) error {
	srcPath := filepath.Join(fs.BaseDir, srcDir, srcName)
	dstDirPath := filepath.Join(fs.BaseDir, dstDir)
	dstPath := filepath.Join(dstDirPath, dstName)

	lock := fs.getFileLock(srcPath)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("源文件不可用: %w", err)
	}
	if err := os.MkdirAll(dstDirPath, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("移动文件失败: %w", err)
	}

	fs.cache.Invalidate(srcPath)
	return nil
}

// CreateExclusive 创建新文件，已存在时返回 ErrExists，绝不覆盖
func (fs *FileStorage) CreateExclusive(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("文件已存在: %w", ErrExists)
		}
		return fmt.Errorf("创建文件失败: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(fullPath)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}

// ListFiles 列出目录下的普通文件，跳过点文件和子目录。
// A missing directory yields an error wrapping fs.ErrNotExist.
func (fs *FileStorage) ListFiles(dirPath string) ([]FileEntry, error) {
	entries, err := os.ReadDir(filepath.Join(fs.BaseDir, dirPath))
	if err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	files := make([]FileEntry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, FileEntry{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return files, nil
}
