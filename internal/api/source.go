package api

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

var arxivID = regexp.MustCompile(`^(arxiv:)?\d{4}\.\d{4,5}(v\d+)?$`)

// SourceFromInput guesses how the user supplied a paper: http(s) URLs and
// arXiv ids are URLs, paths of existing regular files are files, anything
// else is pasted bibliography text.
func SourceFromInput(in string) domain.Source {
	s := strings.TrimSpace(in)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return domain.Source{Kind: domain.SourceURL, Value: s}
	case arxivID.MatchString(lower):
		return domain.Source{Kind: domain.SourceURL, Value: "https://arxiv.org/abs/" + strings.TrimPrefix(lower, "arxiv:")}
	}
	if !strings.Contains(s, "\n") {
		if info, err := os.Stat(s); err == nil && info.Mode().IsRegular() {
			return domain.Source{Kind: domain.SourceFile, Value: s, Filename: filepath.Base(s)}
		}
	}
	return domain.Source{Kind: domain.SourceText, Value: s}
}
