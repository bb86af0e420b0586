// internal/schema/story.go
package schema

import (
	"github.com/Corphon/StoryEngine/internal/models"
)

// ParseStory decodes and validates a story document. On success the returned
// document is the normalized form that gets persisted: unknown fields are gone
// and empty optional lists are omitted when marshalled.
func ParseStory(raw []byte) (*models.StoryDocument, error) {
	var doc models.StoryDocument
	if err := decodeAndValidate("story", raw, &doc); err != nil {
		return nil, err
	}
	normalizeStory(&doc)
	return &doc, nil
}

func normalizeStory(doc *models.StoryDocument) {
	if len(doc.Citations) == 0 {
		doc.Citations = nil
	}
	for i := range doc.Pages {
		page := &doc.Pages[i]
		if len(page.Actions) == 0 {
			page.Actions = nil
		}
		if len(page.Timeline) == 0 {
			page.Timeline = nil
		}
		if len(page.Citations) == 0 {
			page.Citations = nil
		}
	}
}
