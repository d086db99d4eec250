package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Link
	}{
		{"inline", "See [API](api.md) for details.", []Link{{LinkKindInline, "api.md"}}},
		{"image", "![Figure](fig/incidence.png)", []Link{{LinkKindImage, "fig/incidence.png"}}},
		{"auto", "<https://example.com/path>", []Link{{LinkKindAuto, "https://example.com/path"}}},
		{
			"reference usage and definition",
			"See [API][ref].\n\n[ref]: api.md\n",
			[]Link{{LinkKindInline, "api.md"}, {LinkKindReferenceDefinition, "api.md"}},
		},
		{
			"code is skipped",
			"Inline code: `[Link](./ignored.md)`\n\n```\n[Link](./fence.md)\n```\n\nReal: [OK](./real.md)\n",
			[]Link{{LinkKindInline, "./real.md"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractLinks([]byte(tt.src)))
		})
	}
}
