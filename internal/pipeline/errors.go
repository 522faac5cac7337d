package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"retail-dashboard/internal/models"
)

var (
	// ErrLoad matches every LoadError.
	ErrLoad = errors.New("load failed")

	// ErrEmptyDataset matches every EmptyDatasetError.
	ErrEmptyDataset = errors.New("no rows left after validation")

	// ErrInvalidRankRequest matches every InvalidRankRequestError.
	ErrInvalidRankRequest = errors.New("invalid rank request")
)

// LoadError aborts a run: required columns are absent or the source could not be read.
type LoadError struct {
	Missing []string
	Cause   error
}

func (e *LoadError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("load: missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("load: %v", e.Cause)
}

func (e *LoadError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrLoad, e.Cause}
	}
	return []error{ErrLoad}
}

// EmptyDatasetError aborts a run when validation accepted no rows. The
// rejection report explains what happened to each input row.
type EmptyDatasetError struct {
	TotalRows  int
	Rejections models.RejectionReport
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("empty dataset: %d of %d rows rejected", e.Rejections.Count, e.TotalRows)
}

func (e *EmptyDatasetError) Unwrap() error {
	return ErrEmptyDataset
}

// InvalidRankRequestError fails a single ranking call; the buckets it was
// asked to rank stay valid.
type InvalidRankRequestError struct {
	N      int
	Metric models.Metric
}

func (e *InvalidRankRequestError) Error() string {
	if e.N <= 0 {
		return fmt.Sprintf("invalid rank request: top count must be positive, got %d", e.N)
	}
	return fmt.Sprintf("invalid rank request: unknown metric %q", string(e.Metric))
}

func (e *InvalidRankRequestError) Unwrap() error {
	return ErrInvalidRankRequest
}
