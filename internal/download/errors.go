package download

import (
	"fmt"

	"github.com/italolelis/xtream_offline/internal/storage"
)

// InvalidStateError is returned when an operation is not valid for the
// record's current status, e.g. resuming a completed download. The record is
// left unchanged.
type InvalidStateError struct {
	ID     string         // Download id the operation targeted
	Status storage.Status // Status the record was in
	Op     string         // The rejected operation ("resume", ...)
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s download %s from status %q", e.Op, e.ID, e.Status)
}
