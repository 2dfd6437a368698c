// Package pipeline runs the per-record signal stages in dependency order
// and fills one SignalBundle per input record.
package pipeline

import (
	"context"

	"github.com/sells-group/addrverify/internal/model"
)

// Stage names, also used as failure-marker labels.
const (
	StageGeocode    = "geocode"
	StageImagery    = "imagery"
	StageFootprint  = "footprint"
	StageValidation = "validation"
)

// Stage produces one signal on a record's bundle. Each stage owns exactly
// one bundle field, so stages in the same wave can run concurrently.
type Stage interface {
	// Name identifies the stage in logs and failure markers.
	Name() string
	// Done reports whether the stage already wrote its signal. Done stages
	// are never run again.
	Done(b *model.SignalBundle) bool
	// Ready reports whether the stage's inputs are present.
	Ready(b *model.SignalBundle) bool
	// Run fetches the signal and writes it to b. A returned error is
	// recorded as a failure marker; it never aborts the batch.
	Run(ctx context.Context, rec model.Record, b *model.SignalBundle) error
	// Skip records whatever the stage writes when it is not ready.
	Skip(b *model.SignalBundle)
}
