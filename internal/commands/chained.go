package commands

import "context"

// ChainResult reports a chain execution: the final result plus which segment
// indices actually ran.
type ChainResult struct {
	Result      *Result
	RanIndices  []int
	LastCommand string
}

// ExecuteChain applies short-circuit semantics over the parsed chain: a
// segment after && runs only when the previous one succeeded, a segment
// after || runs only when it failed, and ; runs unconditionally. Skipped
// segments leave the success flag untouched, so /a && /b || /c runs /c when
// /a fails. The returned result is the last executed segment's.
func (e *Executor) ExecuteChain(ctx context.Context, chain *ChainParse, session SessionInfo) *ChainResult {
	out := &ChainResult{Result: Success("")}

	lastOK := true
	executedAny := false
	for i, segment := range chain.Segments {
		if err := ctx.Err(); err != nil {
			out.Result = Aborted()
			return out
		}

		if i > 0 {
			switch chain.Segments[i-1].Operator {
			case ChainAnd:
				if !lastOK {
					// Skip; lastOK stays false so a later || still fires.
					continue
				}
			case ChainOr:
				if lastOK {
					// Previous success skips this segment but the chain continues.
					continue
				}
			case ChainSeq:
				// Unconditional.
			}
		}

		res := e.ExecuteSingle(ctx, segment.Command, session, "")
		executedAny = true
		out.Result = res
		out.RanIndices = append(out.RanIndices, i)
		out.LastCommand = commandOnly(segment.Command)
		lastOK = res.OK()
	}

	if !executedAny {
		out.Result = Success("")
	}
	return out
}
