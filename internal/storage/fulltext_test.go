package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "uppercases and drops short tokens",
			text: "go is a remarkable language",
			want: []string{"REMARKABLE", "LANGUAGE"},
		},
		{
			name: "deduplicates preserving first occurrence",
			text: "words words more WORDS",
			want: []string{"WORDS", "MORE"},
		},
		{
			name: "splits on punctuation but keeps hyphens",
			text: "well-known,separated;tokens",
			want: []string{"WELL-KNOWN", "SEPARATED", "TOKENS"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IndexWords(tt.text))
		})
	}

	require.Empty(t, IndexWords(""))
}

func TestIndexHTML(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style>
		<script>var ignored = true;</script></head>
		<body><h1>Heading</h1><p>Body &amp; entities</p></body></html>`

	words := IndexHTML(html)

	require.Contains(t, words, "HEADING")
	require.Contains(t, words, "BODY")
	require.Contains(t, words, "ENTITIES")
	require.NotContains(t, words, "IGNORED")
	require.NotContains(t, words, "COLOR")
	require.NotContains(t, words, "SCRIPT")
}
