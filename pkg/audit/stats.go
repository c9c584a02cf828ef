package audit

import "math"

// Progress is the read-only projection of a run's state consumed by UIs.
// It is derived, never stored; consumers must not assume completion order.
type Progress struct {
	Total     int `json:"total"`
	Ignored   int `json:"ignored"`
	Processed int `json:"processed"`
	Pending   int `json:"pending"`
	InFlight  int `json:"inFlight"`
	Errors    int `json:"errors"`
	Percent   int `json:"percent"`
}

// computeProgress derives percent-complete from processed over the checkable
// population. An empty population reports 0% rather than dividing by zero.
func computeProgress(total, ignored, processed, pending, inFlight, errs int) Progress {
	p := Progress{
		Total:     total,
		Ignored:   ignored,
		Processed: processed,
		Pending:   pending,
		InFlight:  inFlight,
		Errors:    errs,
	}
	if denom := total - ignored; denom > 0 {
		p.Percent = int(math.Round(float64(processed) / float64(denom) * 100))
	}
	return p
}
