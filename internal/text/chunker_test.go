package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkMarkdown(t *testing.T) {
	t.Run("Single Section", func(t *testing.T) {
		md := "Our launch campaign targets small retailers in the midwest."
		chunks := ChunkMarkdown(md, 100)
		require.Len(t, chunks, 1)
		assert.Equal(t, md, chunks[0])
	})

	t.Run("Splits On Headers", func(t *testing.T) {
		md := "# Positioning\nWe are the fastest charger on the market today.\n\n# Audience\nBusy commuters who forget to charge overnight."
		chunks := ChunkMarkdown(md, 100)
		require.Len(t, chunks, 2)
		assert.True(t, strings.HasPrefix(chunks[0], "# Positioning"))
		assert.True(t, strings.HasPrefix(chunks[1], "# Audience"))
	})

	t.Run("Packs Paragraphs Under Limit", func(t *testing.T) {
		para := strings.Repeat("word ", 15) // 75 chars
		md := strings.Join([]string{para, para, para, para}, "\n\n")
		chunks := ChunkMarkdown(md, 40) // 160 chars

		require.Len(t, chunks, 2)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 160)
		}
	})

	t.Run("Falls Back To Words", func(t *testing.T) {
		md := strings.Repeat("benefit ", 100)
		chunks := ChunkMarkdown(md, 10) // 40 chars

		require.NotEmpty(t, chunks)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 40)
		}
		assert.Equal(t, strings.Fields(md), strings.Fields(strings.Join(chunks, " ")))
	})

	t.Run("Keeps Small Table Whole", func(t *testing.T) {
		md := "| Plan | Price |\n| --- | --- |\n| Basic | $9 |\n| Pro | $29 |"
		chunks := ChunkMarkdown(md, 100)
		require.Len(t, chunks, 1)
		assert.Equal(t, md, chunks[0])
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, ChunkMarkdown("   ", 100))
	})
}

func TestClean(t *testing.T) {
	md := "Intro text\n\n\n\n![hero](https://cdn.example.com/hero.png)\n\nMore text"
	assert.Equal(t, "Intro text\n\nMore text", Clean(md))
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "  ", true},
		{"short label", "Overview", true},
		{"nav list", "- [Home](/)\n- [Pricing](/pricing)\n- [Blog](/blog)", true},
		{"cookie banner", "We use cookies to improve your experience.", true},
		{"legal", "© 2024 Acme Inc. All rights reserved.", true},
		{"real copy", "Customers love that the charger fills a phone in twenty minutes.", false},
		{"long legal document", strings.Repeat("These terms of service govern your use. ", 10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNoise(tt.content))
		})
	}
}

func TestChunkMarkdown_DropsNoise(t *testing.T) {
	md := "# Pricing\nThe Pro plan includes unlimited seats and priority support.\n\n# Footer\n© 2024 Acme. All rights reserved."
	chunks := ChunkMarkdown(md, 20)

	for _, c := range chunks {
		assert.NotContains(t, c, "All rights reserved")
	}
	assert.NotEmpty(t, chunks)
}
