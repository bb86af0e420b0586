// internal/models/content.go
package models

// HomeContent home.json
type HomeContent struct {
	NavTitle    string    `json:"navTitle" schema:"required"`
	Description string    `json:"description,omitempty"`
	Hero        *HomeHero `json:"hero" schema:"required"`
}

// HomeHero 首页头图区
type HomeHero struct {
	Kicker   string   `json:"kicker" schema:"required"`
	Title    string   `json:"title" schema:"required"`
	Body     string   `json:"body" schema:"required"`
	Tags     []string `json:"tags" schema:"required"`
	Image    string   `json:"image" schema:"required" validate:"safeurl"`
	ImageAlt string   `json:"imageAlt" schema:"required"`
	Note     string   `json:"note" schema:"required"`
}

// AboutContent about.json
type AboutContent struct {
	Kicker      string         `json:"kicker" schema:"required"`
	Title       string         `json:"title" schema:"required"`
	Description string         `json:"description,omitempty"`
	Sections    []AboutSection `json:"sections" schema:"required" validate:"dive"`
	CTA         string         `json:"cta,omitempty"`
}

// AboutSection 关于页的一个段落
type AboutSection struct {
	Title   string   `json:"title" schema:"required"`
	Content string   `json:"content,omitempty"`
	Items   []string `json:"items,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
