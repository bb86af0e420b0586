// internal/models/story.go
package models

// ThemeName 故事主题
type ThemeName string

const (
	ThemeDarkCinematic  ThemeName = "dark-cinematic"
	ThemeLightEditorial ThemeName = "light-editorial"
	ThemeBoldGradient   ThemeName = "bold-gradient"
)

// LayoutType 决定页面由哪个渲染器消费
type LayoutType string

const (
	LayoutHero      LayoutType = "hero"
	LayoutSplit     LayoutType = "split"
	LayoutTimeline  LayoutType = "timeline"
	LayoutImmersive LayoutType = "immersive"
)

// TransitionStyle 页面进入动画
type TransitionStyle string

const (
	TransitionFade      TransitionStyle = "fade"
	TransitionSlideUp   TransitionStyle = "slide-up"
	TransitionSlideLeft TransitionStyle = "slide-left"
	TransitionZoom      TransitionStyle = "zoom"
)

// MediaKind 页面媒体资源类型
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// StoryDocument 一个完整的故事配置，对应 stories/<id>.json。
// The id is the file name stem and is never stored inside the document.
// `schema:"required"` only demands the key; an empty string is still a value.
type StoryDocument struct {
	Theme           ThemeName  `json:"theme" schema:"required" validate:"oneof=dark-cinematic light-editorial bold-gradient"`
	Title           string     `json:"title" schema:"required" validate:"min=1"`
	Subtitle        string     `json:"subtitle,omitempty"`
	Description     string     `json:"description,omitempty"`
	PublishedAt     string     `json:"publishedAt,omitempty" validate:"omitempty,isodate"`
	BackgroundMusic string     `json:"backgroundMusic,omitempty" validate:"omitempty,safeurl"`
	Badge           string     `json:"badge,omitempty"`
	Citations       []Citation `json:"citations,omitempty" validate:"omitempty,dive"`
	Pages           []Page     `json:"pages" schema:"required" validate:"unique=ID,dive"`
}

// Page 一个可滚动的叙事段落
type Page struct {
	ID         string          `json:"id" schema:"required"`
	Title      string          `json:"title" schema:"required"`
	Kicker     string          `json:"kicker,omitempty"`
	Body       []string        `json:"body" schema:"required"`
	Layout     LayoutType      `json:"layout" schema:"required" validate:"oneof=hero split timeline immersive"`
	Transition TransitionStyle `json:"transition,omitempty" validate:"omitempty,oneof=fade slide-up slide-left zoom"`
	Background *MediaAsset     `json:"background,omitempty" validate:"omitempty"`
	Foreground *MediaAsset     `json:"foreground,omitempty" validate:"omitempty"`
	Actions    []ActionLink    `json:"actions,omitempty" validate:"omitempty,dive"`
	Timeline   []TimelineEntry `json:"timeline,omitempty" validate:"omitempty,dive"`
	Emphasis   string          `json:"emphasis,omitempty"`
	Citations  []Citation      `json:"citations,omitempty" validate:"omitempty,dive"`
}

// MediaAsset 背景或前景媒体
type MediaAsset struct {
	Type     MediaKind `json:"type" schema:"required" validate:"oneof=image video"`
	Src      string    `json:"src" schema:"required" validate:"safeurl"`
	Alt      string    `json:"alt,omitempty"`
	Loop     *bool     `json:"loop,omitempty"`
	AutoPlay *bool     `json:"autoPlay,omitempty"`
}

// ActionLink 页面上的行动按钮
type ActionLink struct {
	Label string `json:"label" schema:"required"`
	Href  string `json:"href" schema:"required" validate:"safeurl"`
}

// Citation 引用来源，故事级或页面级
type Citation struct {
	Label string `json:"label" schema:"required"`
	URL   string `json:"url" schema:"required" validate:"safeurl"`
}

// TimelineEntry 时间线条目，仅 timeline 布局会渲染
type TimelineEntry struct {
	Title       string `json:"title" schema:"required"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description" schema:"required"`
	Marker      string `json:"marker,omitempty"`
}

// StoryIndexEntry 由 stories/ 目录扫描得到
type StoryIndexEntry struct {
	ID         string `json:"id"`
	ConfigPath string `json:"configPath"`
}

// ContentIndex index.json 的结构
type ContentIndex struct {
	Version string            `json:"version"`
	Stories []StoryIndexEntry `json:"stories"`
}

// StoryMeta 站点首页和导航使用的故事摘要
type StoryMeta struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Description string    `json:"description"`
	Theme       ThemeName `json:"theme"`
	Cover       string    `json:"cover"`
	ConfigPath  string    `json:"configPath"`
	Badge       string    `json:"badge,omitempty"`
	PublishedAt string    `json:"publishedAt"`
}
