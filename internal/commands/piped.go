package commands

import "context"

// ExecutePipes runs a pipe composition: each command segment's output message
// is threaded as the next segment's input; a terminal > or >> redirect writes
// the final output through the session's FileSink. The first failing segment
// terminates the pipeline.
func (e *Executor) ExecutePipes(ctx context.Context, pipes *PipeParse, session SessionInfo) *Result {
	var (
		last  *Result
		stdin string
	)

	for _, segment := range pipes.Segments {
		if segment.Type == PipeFile {
			break
		}
		if err := ctx.Err(); err != nil {
			return Aborted()
		}

		res := e.ExecuteSingle(ctx, segment.Text, session, stdin)
		if !res.OK() {
			return res
		}
		last = res
		stdin = res.Message
	}

	if last == nil {
		return Error(CodeInvalidArgument, "empty pipeline")
	}

	if pipes.HasRedirect {
		caps := e.provider.Capabilities(session)
		if caps.FileSink == nil {
			return Error(CodeInternalError, "no file sink available for redirection")
		}
		if pipes.RedirectTarget == "" {
			return Error(CodeInvalidArgument, "missing redirect target")
		}
		if err := caps.FileSink.Write(pipes.RedirectTarget, last.Message, pipes.RedirectMode); err != nil {
			return Errorf(CodeInternalError, "writing %s: %v", pipes.RedirectTarget, err)
		}
	}

	return last
}
