package pipeline

import "github.com/sells-group/addrverify/internal/model"

// NeedsValidation reports whether the postal-validation call is warranted.
// It is an OR over five independent predicates and has no side effects,
// so it is evaluated fresh every time.
func NeedsValidation(b *model.SignalBundle) bool {
	return !b.Precision().IsTop() ||
		!b.StructurePresent() ||
		b.ImageryStatus() == model.StatusZeroResults ||
		b.ImageryStale() ||
		b.NonPhysical
}
