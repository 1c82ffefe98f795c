package sync

import "time"

// EntityResult is the tagged outcome of pushing one entity during a pass.
type EntityResult struct {
	EntityID string
	Error    string
}

// OK reports whether the entity was pushed successfully.
func (r EntityResult) OK() bool {
	return r.Error == ""
}

// PassReport collects per-entity outcomes of one reconciliation pass.
// A failed entity does not abort the pass; it stays pending and is
// retried on the next pass.
type PassReport struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Results   []EntityResult
	Succeeded int
	Failed    int
}

func (r *PassReport) add(entityID string, err error) {
	res := EntityResult{EntityID: entityID}
	if err != nil {
		res.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Results = append(r.Results, res)
}

// AllSucceeded reports whether every entity in the pass was pushed.
func (r *PassReport) AllSucceeded() bool {
	return r.Failed == 0
}
