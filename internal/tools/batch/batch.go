package batch

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome for a single item.
type Result struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates the results of a batch.
type Report struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Run calls fn for each item in order. Failures are recorded and the batch
// continues; once ctx is done the remaining items fail with its error.
func Run(ctx context.Context, items []string, fn func(ctx context.Context, item string) (string, error)) Report {
	results := make([]Result, 0, len(items))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			results = append(results, NewErrorResult(item, err))
			continue
		}
		res, err := fn(ctx, item)
		if err != nil {
			results = append(results, NewErrorResult(item, err))
			continue
		}
		results = append(results, NewSuccessResult(item, res))
	}

	return NewReport(results)
}

// NewReport counts successes and failures.
func NewReport(results []Result) Report {
	r := Report{Total: len(results), Results: results}
	for _, res := range results {
		if res.Status == StatusSuccess {
			r.Successful++
		} else {
			r.Failed++
		}
	}
	return r
}

// Err returns a summary error when any item failed.
func (r Report) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d items failed", r.Failed, r.Total)
}

// JSON returns the indented JSON form of the report.
func (r Report) JSON() string {
	jsonBytes, _ := json.MarshalIndent(r, "", "  ")
	return string(jsonBytes)
}

// NewSuccessResult creates a success result
func NewSuccessResult(item, result string) Result {
	return Result{
		Item:   item,
		Status: StatusSuccess,
		Result: result,
	}
}

// NewErrorResult creates an error result
func NewErrorResult(item string, err error) Result {
	return Result{
		Item:   item,
		Status: StatusError,
		Error:  err.Error(),
	}
}
