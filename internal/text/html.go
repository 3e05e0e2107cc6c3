package text

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// Content types accepted for resources.
const (
	ContentTypeHTML     = "text/html"
	ContentTypeMarkdown = "text/markdown"
	ContentTypePlain    = "text/plain"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// ToMarkdown converts resource content of contentType to markdown.
func ToMarkdown(content, contentType string) (string, error) {
	if strings.HasPrefix(contentType, ContentTypeHTML) {
		return mdConverter.ConvertString(content)
	}
	return content, nil
}

// SupportedContentType reports whether ToMarkdown understands contentType.
func SupportedContentType(contentType string) bool {
	for _, ct := range []string{ContentTypeHTML, ContentTypeMarkdown, ContentTypePlain} {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}
