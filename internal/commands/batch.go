package commands

import (
	"context"
	"regexp"
	"strings"
)

var lineSplit = regexp.MustCompile(`\r?\n`)

// BatchOptions controls batch script execution.
type BatchOptions struct {
	// ContinueOnError keeps running after a failed line.
	ContinueOnError bool

	// SkipComments treats empty lines and lines starting with # as skipped.
	// Defaults to true through DefaultBatchOptions.
	SkipComments bool
}

// DefaultBatchOptions returns the standard batch policy.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{ContinueOnError: false, SkipComments: true}
}

// BatchCommandResult reports one line of a batch run.
type BatchCommandResult struct {
	Command string  `json:"command"`
	Index   int     `json:"index"`
	Result  *Result `json:"result,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Results   []BatchCommandResult `json:"results"`
	Total     int                  `json:"total"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Skipped   int                  `json:"skipped"`
	Aborted   bool                 `json:"aborted,omitempty"`
}

// ExecuteBatch runs a newline-delimited script line by line. Cancellation
// breaks the loop and marks the batch aborted.
func (e *Executor) ExecuteBatch(ctx context.Context, script string, session SessionInfo, opts BatchOptions) *BatchResult {
	batch := &BatchResult{}

	for i, line := range lineSplit.Split(script, -1) {
		trimmed := strings.TrimSpace(line)

		if opts.SkipComments && (trimmed == "" || strings.HasPrefix(trimmed, "#")) {
			batch.Results = append(batch.Results, BatchCommandResult{
				Command: line,
				Index:   i,
				Skipped: true,
			})
			batch.Skipped++
			continue
		}

		if err := ctx.Err(); err != nil {
			batch.Aborted = true
			break
		}

		res := e.Execute(ctx, trimmed, session)
		batch.Results = append(batch.Results, BatchCommandResult{
			Command: trimmed,
			Index:   i,
			Result:  res,
		})
		batch.Total++
		if res.OK() {
			batch.Succeeded++
		} else {
			batch.Failed++
			if res.Code == CodeCommandAborted {
				batch.Aborted = true
				break
			}
			if !opts.ContinueOnError {
				break
			}
		}
	}

	return batch
}
