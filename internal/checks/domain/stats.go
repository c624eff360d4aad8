package domain

// PaperStats counts references, not issue objects: a reference with three
// warnings counts once in WarningsOnly.
type PaperStats struct {
	Verified     int
	WithErrors   int
	WarningsOnly int
	Unverified   int
}

// Total is the number of classified (resolved) references.
func (p PaperStats) Total() int {
	return p.Verified + p.WithErrors + p.WarningsOnly + p.Unverified
}

// Bucket is the single paper-level category of a reference.
type Bucket int

const (
	BucketNone Bucket = iota // not yet resolved
	BucketVerified
	BucketErrors
	BucketWarningsOnly
	BucketUnverified
)

// Classify places a reference in exactly one bucket. Error objects win over
// the status string so a reference reported as "warning" with a missing
// required field still lands in the error bucket.
func Classify(ref Reference) Bucket {
	switch {
	case len(ref.Errors) > 0 || ref.Status == RefError:
		return BucketErrors
	case ref.Status == RefUnverified:
		return BucketUnverified
	case len(ref.Warnings) > 0 || ref.Status == RefWarning:
		return BucketWarningsOnly
	case ref.Status == RefVerified:
		return BucketVerified
	default:
		return BucketNone
	}
}

// ClassifyReferences computes paper-level counts for refs.
func ClassifyReferences(refs []Reference) PaperStats {
	var p PaperStats
	for _, ref := range refs {
		switch Classify(ref) {
		case BucketVerified:
			p.Verified++
		case BucketErrors:
			p.WithErrors++
		case BucketWarningsOnly:
			p.WarningsOnly++
		case BucketUnverified:
			p.Unverified++
		}
	}
	return p
}

// CountResolved returns how many references have a final status.
func CountResolved(refs []Reference) int {
	n := 0
	for _, ref := range refs {
		if ref.Status.IsResolved() {
			n++
		}
	}
	return n
}
