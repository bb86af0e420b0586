// internal/api/static.go
package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryEngine/internal/basepath"
)

// ContentFiles 只读地提供内容根目录下的文件。
// Any path segment beginning with "." is refused, which keeps .trash and
// the atomic-write temp files out of reach.
func ContentFiles(root string, resolver basepath.Resolver, resp *ResponseHelper) gin.HandlerFunc {
	base := resolver.Base()

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			resp.Error(c, http.StatusNotFound, ErrorNotFound)
			return
		}

		requestPath := c.Request.URL.Path
		if !strings.HasPrefix(requestPath, base) {
			resp.Error(c, http.StatusNotFound, ErrorNotFound)
			return
		}

		rel := path.Clean("/" + strings.TrimPrefix(requestPath, base))
		if rel == "/" || hasHiddenSegment(rel) {
			resp.Error(c, http.StatusNotFound, ErrorNotFound)
			return
		}

		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			resp.Error(c, http.StatusNotFound, ErrorNotFound)
			return
		}

		c.File(full)
	}
}

func hasHiddenSegment(p string) bool {
	for _, segment := range strings.Split(strings.Trim(p, "/"), "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
