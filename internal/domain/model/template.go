package model

// TemplateFormat describes how template content becomes the delivered payload.
type TemplateFormat string

const (
	FormatHTML     TemplateFormat = "html"
	FormatMarkdown TemplateFormat = "markdown"
	FormatText     TemplateFormat = "text"
)

// Template is a reusable message body owned by a tenant. Template CRUD lives
// outside the dispatch core; it is only read here.
type Template struct {
	ID       string
	Slug     string
	OwnerID  string
	Content  string
	Format   TemplateFormat
	IsPublic bool
}

// VisibleTo reports whether ownerID may use the template.
func (t Template) VisibleTo(ownerID string) bool {
	return t.IsPublic || t.OwnerID == ownerID
}
