package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

func TestSourceFromInput(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o600))

	tests := []struct {
		in   string
		want domain.Source
	}{
		{"https://arxiv.org/abs/1706.03762", domain.Source{Kind: domain.SourceURL, Value: "https://arxiv.org/abs/1706.03762"}},
		{"  HTTP://example.com/p.pdf ", domain.Source{Kind: domain.SourceURL, Value: "HTTP://example.com/p.pdf"}},
		{"1706.03762v5", domain.Source{Kind: domain.SourceURL, Value: "https://arxiv.org/abs/1706.03762v5"}},
		{"arXiv:2101.00001", domain.Source{Kind: domain.SourceURL, Value: "https://arxiv.org/abs/2101.00001"}},
		{pdf, domain.Source{Kind: domain.SourceFile, Value: pdf, Filename: "paper.pdf"}},
		{"Vaswani et al. Attention is all you need. 2017.", domain.Source{Kind: domain.SourceText, Value: "Vaswani et al. Attention is all you need. 2017."}},
		{filepath.Dir(pdf), domain.Source{Kind: domain.SourceText, Value: filepath.Dir(pdf)}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, SourceFromInput(tt.in))
		})
	}
}
