package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeSink struct {
	calls []sinkCall
	err   error
}

type sinkCall struct {
	path    string
	content string
	mode    RedirectMode
}

func (s *fakeSink) Write(path, content string, mode RedirectMode) error {
	s.calls = append(s.calls, sinkCall{path, content, mode})
	return s.err
}

func testExecutor(t *testing.T, sink FileSink) *Executor {
	t.Helper()
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	mustRegister := func(s *Signature) {
		if err := r.Register(s); err != nil {
			t.Fatal(err)
		}
	}

	mustRegister(&Signature{
		Name: "build", Kind: KindBuiltin, Category: "tools",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return Error(CodeInternalError, "build failed"), nil
		},
	})
	mustRegister(&Signature{
		Name: "test", Kind: KindBuiltin, Category: "tools",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return Success("tests passed"), nil
		},
	})
	// The fixture replaces the builtin /rollback with a stub that always succeeds.
	r.Unregister("rollback")
	mustRegister(&Signature{
		Name: "rollback", Kind: KindBuiltin, Category: "tools",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return Success("rolled back"), nil
		},
	})
	mustRegister(&Signature{
		Name: "list", Kind: KindBuiltin, Category: "tools",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return Success("a\nb\nfoo\nc"), nil
		},
	})
	mustRegister(&Signature{
		Name: "boom", Kind: KindBuiltin, Category: "debug",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			panic("kaboom")
		},
	})
	mustRegister(&Signature{
		Name: "fail", Kind: KindBuiltin, Category: "debug",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return nil, errors.New("handler error")
		},
	})

	provider := StaticProvider{Caps: Capabilities{Events: NopEmitter{}, FileSink: sink}}
	return NewExecutor(r, provider, nil)
}

func TestExecutor_Single(t *testing.T) {
	e := testExecutor(t, nil)
	session := SessionInfo{ID: "s1"}

	t.Run("success", func(t *testing.T) {
		res := e.Execute(context.Background(), "/test", session)
		if !res.OK() || res.Message != "tests passed" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("unknown command gets suggestions", func(t *testing.T) {
		res := e.Execute(context.Background(), "/hel", session)
		if res.Kind != ResultError || res.Code != CodeCommandNotFound {
			t.Fatalf("result = %+v", res)
		}
		if len(res.Suggestions) == 0 || res.Suggestions[0] != "/help" {
			t.Errorf("Suggestions = %v", res.Suggestions)
		}
		if res.HelpCommand != "/help" {
			t.Errorf("HelpCommand = %q", res.HelpCommand)
		}
	})

	t.Run("validation failure carries help command", func(t *testing.T) {
		res := e.Execute(context.Background(), "/filter", session)
		if res.Code != CodeMissingArgument {
			t.Fatalf("result = %+v", res)
		}
		if res.HelpCommand != "/help filter" {
			t.Errorf("HelpCommand = %q", res.HelpCommand)
		}
	})

	t.Run("panic wrapped as internal error", func(t *testing.T) {
		res := e.Execute(context.Background(), "/boom", session)
		if res.Code != CodeInternalError {
			t.Errorf("result = %+v", res)
		}
		if !strings.Contains(res.Message, "kaboom") {
			t.Errorf("Message = %q", res.Message)
		}
	})

	t.Run("handler error wrapped as internal error", func(t *testing.T) {
		res := e.Execute(context.Background(), "/fail", session)
		if res.Code != CodeInternalError {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := e.Execute(ctx, "/test", session)
		if res.Code != CodeCommandAborted {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("parse error surfaces as result", func(t *testing.T) {
		res := e.Execute(context.Background(), "not a command", session)
		if res.Code != CodeInvalidArgument {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestExecutor_ChainShortCircuit(t *testing.T) {
	e := testExecutor(t, nil)
	session := SessionInfo{ID: "s1"}

	t.Run("failed build skips test, runs rollback", func(t *testing.T) {
		chain := ParseChain("/build && /test || /rollback")
		res := e.ExecuteChain(context.Background(), chain, session)
		if !res.Result.OK() || res.Result.Message != "rolled back" {
			t.Errorf("final result = %+v", res.Result)
		}
		if len(res.RanIndices) != 2 || res.RanIndices[0] != 0 || res.RanIndices[1] != 2 {
			t.Errorf("RanIndices = %v", res.RanIndices)
		}
	})

	t.Run("success skips or branch", func(t *testing.T) {
		chain := ParseChain("/test || /rollback")
		res := e.ExecuteChain(context.Background(), chain, session)
		if res.Result.Message != "tests passed" {
			t.Errorf("final result = %+v", res.Result)
		}
		if len(res.RanIndices) != 1 {
			t.Errorf("RanIndices = %v", res.RanIndices)
		}
	})

	t.Run("semicolon runs unconditionally", func(t *testing.T) {
		chain := ParseChain("/build ; /test")
		res := e.ExecuteChain(context.Background(), chain, session)
		if res.Result.Message != "tests passed" {
			t.Errorf("final result = %+v", res.Result)
		}
		if len(res.RanIndices) != 2 {
			t.Errorf("RanIndices = %v", res.RanIndices)
		}
	})
}

func TestExecutor_Pipes(t *testing.T) {
	session := SessionInfo{ID: "s1"}

	t.Run("pipe threads output and redirect writes once", func(t *testing.T) {
		sink := &fakeSink{}
		e := testExecutor(t, sink)
		pipes := ParsePipes("/list | /filter foo > out.txt")
		res := e.ExecutePipes(context.Background(), pipes, session)
		if !res.OK() {
			t.Fatalf("result = %+v", res)
		}
		if len(sink.calls) != 1 {
			t.Fatalf("sink called %d times", len(sink.calls))
		}
		call := sink.calls[0]
		if call.path != "out.txt" || call.content != "foo" || call.mode != RedirectOverwrite {
			t.Errorf("sink call = %+v", call)
		}
	})

	t.Run("first failure terminates pipeline", func(t *testing.T) {
		sink := &fakeSink{}
		e := testExecutor(t, sink)
		pipes := ParsePipes("/build | /filter foo > out.txt")
		res := e.ExecutePipes(context.Background(), pipes, session)
		if res.OK() {
			t.Fatalf("expected failure, got %+v", res)
		}
		if len(sink.calls) != 0 {
			t.Error("sink called after pipeline failure")
		}
	})

	t.Run("missing sink is internal error", func(t *testing.T) {
		e := testExecutor(t, nil)
		pipes := ParsePipes("/list > out.txt")
		res := e.ExecutePipes(context.Background(), pipes, session)
		if res.Code != CodeInternalError {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("sink failure surfaces", func(t *testing.T) {
		sink := &fakeSink{err: fmt.Errorf("disk full")}
		e := testExecutor(t, sink)
		pipes := ParsePipes("/list > out.txt")
		res := e.ExecutePipes(context.Background(), pipes, session)
		if res.Code != CodeInternalError || !strings.Contains(res.Message, "disk full") {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestExecutor_Batch(t *testing.T) {
	e := testExecutor(t, nil)
	session := SessionInfo{ID: "s1"}

	t.Run("comments and blanks skipped", func(t *testing.T) {
		script := "# comment\n\n/test\n"
		batch := e.ExecuteBatch(context.Background(), script, session, DefaultBatchOptions())
		if batch.Total != 1 || batch.Succeeded != 1 {
			t.Errorf("batch = %+v", batch)
		}
		if batch.Skipped != 3 {
			t.Errorf("Skipped = %d, want 3", batch.Skipped)
		}
	})

	t.Run("only comments completes with zero total", func(t *testing.T) {
		batch := e.ExecuteBatch(context.Background(), "# a\n# b\n", session, DefaultBatchOptions())
		if batch.Total != 0 || batch.Skipped == 0 || batch.Aborted {
			t.Errorf("batch = %+v", batch)
		}
	})

	t.Run("stop on error by default", func(t *testing.T) {
		batch := e.ExecuteBatch(context.Background(), "/build\n/test", session, DefaultBatchOptions())
		if batch.Total != 1 || batch.Failed != 1 {
			t.Errorf("batch = %+v", batch)
		}
	})

	t.Run("continue on error", func(t *testing.T) {
		opts := DefaultBatchOptions()
		opts.ContinueOnError = true
		batch := e.ExecuteBatch(context.Background(), "/build\n/test", session, opts)
		if batch.Total != 2 || batch.Succeeded != 1 || batch.Failed != 1 {
			t.Errorf("batch = %+v", batch)
		}
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		batch := e.ExecuteBatch(ctx, "/test\n/test", session, DefaultBatchOptions())
		if !batch.Aborted {
			t.Errorf("batch = %+v", batch)
		}
	})
}

func TestExecutor_PipedInputReachesHandler(t *testing.T) {
	e := testExecutor(t, nil)
	res := e.Execute(context.Background(), "/list | /echo", SessionInfo{ID: "s1"})
	if !res.OK() || res.Message != "a\nb\nfoo\nc" {
		t.Errorf("result = %+v", res)
	}
}
