package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into the
// registry's typed errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record, salt entry, or blob does not exist in store
// - ErrConflict: record version moved under a concurrent writer
// - ErrUnavailable: store or blob backend temporarily unavailable
//
// For validation errors (bad input, malformed containers), use pkg/errors.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
