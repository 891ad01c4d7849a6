package audit

import (
	"context"
	"errors"
)

// Fanout appends to every sink, collecting failures so one slow or broken
// sink never hides the others.
type Fanout []Store

func (f Fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, store := range f {
		if err := store.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
