// internal/schema/content.go
package schema

import (
	"fmt"

	"github.com/Corphon/StoryEngine/internal/models"
)

// Content file names accepted by the content endpoints.
const (
	HomeFile  = "home.json"
	AboutFile = "about.json"
)

// IsContentFile reports whether file is one of the fixed content documents.
func IsContentFile(file string) bool {
	return file == HomeFile || file == AboutFile
}

// ParseHome decodes and validates home.json.
func ParseHome(raw []byte) (*models.HomeContent, error) {
	var doc models.HomeContent
	if err := decodeAndValidate("home", raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseAbout decodes and validates about.json.
func ParseAbout(raw []byte) (*models.AboutContent, error) {
	var doc models.AboutContent
	if err := decodeAndValidate("about", raw, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Sections {
		if len(doc.Sections[i].Items) == 0 {
			doc.Sections[i].Items = nil
		}
		if len(doc.Sections[i].Tags) == 0 {
			doc.Sections[i].Tags = nil
		}
	}
	return &doc, nil
}

// ParseContent picks the schema by file name.
func ParseContent(file string, raw []byte) (any, error) {
	switch file {
	case HomeFile:
		doc, err := ParseHome(raw)
		if err != nil {
			return nil, err
		}
		return doc, nil
	case AboutFile:
		doc, err := ParseAbout(raw)
		if err != nil {
			return nil, err
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unknown content file %q", file)
	}
}
