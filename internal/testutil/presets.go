package testutil

import (
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// WithStandardHistory adds four checks, newest first: a running one with a
// persisted session, an errored one, a cancelled one and a completed one
// with mixed results.
func (b *Builder) WithStandardHistory() *Builder {
	now := time.Now()
	return b.
		WithRecord(8,
			Title("Language Models are Few-Shot Learners"), URL("https://arxiv.org/abs/2005.14165"),
			Status(domain.StatusInProgress), Progress(3, 31), CreatedAt(now)).
		WithRecord(7,
			File("/tmp/draft.pdf", "draft.pdf"), Failed("could not extract references"),
			CreatedAt(now.Add(-time.Hour))).
		WithRecord(6,
			Title("BERT"), Status(domain.StatusCancelled), Progress(5, 12),
			CreatedAt(now.Add(-2*time.Hour))).
		WithRecord(5,
			Title("Attention Is All You Need"), URL("https://arxiv.org/abs/1706.03762"),
			Label("transformer"),
			Refs(
				Ref("Adam: A Method for Stochastic Optimization", domain.RefVerified),
				RefWithError("Long Short-Term Memory", "year", "cited 1996, published 1997"),
				RefWithWarning("Layer Normalization", "venue", "arXiv preprint"),
				Ref("Neural GPUs Learn Algorithms", domain.RefUnverified),
			),
			CreatedAt(now.Add(-24*time.Hour))).
		WithSession("s8", 8)
}
