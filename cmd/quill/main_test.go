package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/quill/internal/commands"
	"github.com/haasonsaas/quill/internal/config"
)

func TestBuildRootCmd(t *testing.T) {
	root := buildRootCmd()
	want := map[string]bool{"exec": false, "batch": false, "run": false, "models": false, "version": false}
	for _, cmd := range root.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestBuildApp(t *testing.T) {
	cfg := config.Default()
	a, err := buildApp(cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	for _, name := range []string{"help", "context", "compact", "checkpoint", "rollback"} {
		if _, ok := a.registry.Get(name); !ok {
			t.Errorf("builtin %q not registered", name)
		}
	}
	if a.manager.Budget().Usable <= 0 {
		t.Error("budget not resolved")
	}
	if a.metricsReg == nil || a.sessionCtx == nil {
		t.Error("metrics registry or session context missing")
	}

	// Each app owns its metrics registry; building twice must not collide.
	if _, err := buildApp(config.Default()); err != nil {
		t.Fatalf("second buildApp: %v", err)
	}
}

func TestSessionContext(t *testing.T) {
	a, err := buildApp(config.Default())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	ctx := context.Background()

	t.Run("usage reflects turns", func(t *testing.T) {
		before := a.sessionCtx.Usage()
		a.sessionCtx.AppendTurn("/echo hi", "hi")
		after := a.sessionCtx.Usage()
		if after.Messages != before.Messages+2 {
			t.Errorf("Messages = %d, want %d", after.Messages, before.Messages+2)
		}
		if after.Tokens <= before.Tokens {
			t.Error("token count did not grow")
		}
		if after.State != "healthy" {
			t.Errorf("State = %q", after.State)
		}
	})

	t.Run("checkpoint and rollback round trip", func(t *testing.T) {
		info, err := a.sessionCtx.Checkpoint("mark")
		if err != nil {
			t.Fatalf("Checkpoint: %v", err)
		}
		a.sessionCtx.AppendTurn("/echo extra", "extra")
		if err := a.sessionCtx.Rollback(info.ID); err != nil {
			t.Fatalf("Rollback: %v", err)
		}
		if got := a.sessionCtx.Usage().Messages; got != info.Messages {
			t.Errorf("Messages after rollback = %d, want %d", got, info.Messages)
		}
		found := false
		for _, cp := range a.sessionCtx.Checkpoints() {
			if cp.ID == info.ID {
				found = true
			}
		}
		if !found {
			t.Error("checkpoint missing from listing")
		}
	})

	t.Run("rollback unknown id", func(t *testing.T) {
		if err := a.sessionCtx.Rollback("missing"); err == nil {
			t.Error("unknown checkpoint accepted")
		}
	})

	t.Run("compact on healthy history is a no-op", func(t *testing.T) {
		report, err := a.sessionCtx.Compact(ctx)
		if err != nil {
			t.Fatalf("Compact: %v", err)
		}
		if report.StateAfter != "healthy" || report.TokensBefore != report.TokensAfter {
			t.Errorf("report = %+v", report)
		}
	})
}

func TestContextCommandsThroughExecutor(t *testing.T) {
	a, err := buildApp(config.Default())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	ctx := context.Background()
	a.sessionCtx.AppendTurn("/echo hi", "hi")

	res := a.executor.Execute(ctx, "/context", a.session)
	if !res.OK() || res.Data["messages"] != 2 {
		t.Errorf("/context = %+v", res)
	}

	res = a.executor.Execute(ctx, "/checkpoint before", a.session)
	if !res.OK() {
		t.Fatalf("/checkpoint = %+v", res)
	}
	id, _ := res.Data["id"].(string)

	res = a.executor.Execute(ctx, "/rollback "+id, a.session)
	if !res.OK() {
		t.Errorf("/rollback = %+v", res)
	}

	res = a.executor.Execute(ctx, "/compact", a.session)
	if !res.OK() {
		t.Errorf("/compact = %+v", res)
	}
}

func TestApplyConfig_ReloadsUserCommands(t *testing.T) {
	cfg := config.Default()
	cfg.Commands = []config.UserCommand{{Name: "old", Template: "old {{x}}"}}
	a, err := buildApp(cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}

	next := config.Default()
	next.Commands = []config.UserCommand{{Name: "fresh", Template: "fresh"}}
	a.applyConfig(next)

	if _, ok := a.registry.Get("old"); ok {
		t.Error("stale user command still registered")
	}
	if _, ok := a.registry.Get("fresh"); !ok {
		t.Error("reloaded user command missing")
	}
	if _, ok := a.registry.Get("help"); !ok {
		t.Error("builtin lost during reload")
	}
}

func TestRegisterUserCommands(t *testing.T) {
	cfg := config.Default()
	cfg.Commands = []config.UserCommand{{
		Name:     "review",
		Template: "Review {{file}} with style {{style}}",
		Positional: []config.UserArg{
			{Name: "file", Type: "path", Required: true},
		},
		Named: []config.UserArg{
			{Name: "style", Type: "string", Default: "strict"},
		},
	}}

	a, err := buildApp(cfg)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}

	result := a.executor.Execute(context.Background(), "/review main.go", a.session)
	if !result.OK() {
		t.Fatalf("result = %+v", result)
	}
	if result.Message != "Review main.go with style strict" {
		t.Errorf("rendered = %q", result.Message)
	}
}

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		result *commands.Result
		want   int
	}{
		{commands.Success("ok"), 0},
		{commands.Error(commands.CodeInvalidArgument, "bad"), 2},
		{commands.Error(commands.CodeMissingArgument, "bad"), 2},
		{commands.Error(commands.CodeInternalError, "boom"), 1},
		{commands.Error(commands.CodeCommandNotFound, "nope"), 1},
	}
	for _, tc := range cases {
		if got := exitCodeFor(tc.result); got != tc.want {
			t.Errorf("exitCodeFor(%s) = %d, want %d", tc.result.Code, got, tc.want)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		if got := resolveConfigPath("explicit.yaml"); got != "explicit.yaml" {
			t.Errorf("path = %q", got)
		}
	})

	t.Run("env var", func(t *testing.T) {
		t.Setenv("QUILL_CONFIG", "/tmp/from-env.yaml")
		if got := resolveConfigPath(""); got != "/tmp/from-env.yaml" {
			t.Errorf("path = %q", got)
		}
	})
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Model == "" {
		t.Error("defaults not applied")
	}
}

func TestOSFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	sink := osFileSink{}

	if err := sink.Write(path, "one", commands.RedirectOverwrite); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(path, "-two", commands.RedirectAppend); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "one-two" {
		t.Errorf("content = %q", data)
	}

	if err := sink.Write(path, "fresh", commands.RedirectOverwrite); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "fresh" {
		t.Errorf("content after overwrite = %q", data)
	}
}

func TestEnvCredentials(t *testing.T) {
	creds := newEnvCredentials()

	t.Run("env lookup", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
		key, err := creds.Get(context.Background(), "anthropic")
		if err != nil || key != "sk-ant-env" {
			t.Errorf("key = %q, %v", key, err)
		}
	})

	t.Run("overlay wins", func(t *testing.T) {
		creds.Store(context.Background(), "openai", "sk-stored")
		key, err := creds.Get(context.Background(), "openai")
		if err != nil || key != "sk-stored" {
			t.Errorf("key = %q, %v", key, err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := creds.Get(context.Background(), "mystery"); err == nil {
			t.Error("unknown provider resolved")
		}
	})
}

func TestRunModels(t *testing.T) {
	var buf bytes.Buffer
	if err := runModels(&buf); err != nil {
		t.Fatalf("runModels: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "claude-opus-4") || !strings.Contains(out, "gpt-4o") {
		t.Errorf("output missing models:\n%s", out)
	}
}

func TestResolveResult_InteractiveContinuation(t *testing.T) {
	// Pipe scripted input through the prompt loop.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	go func() {
		w.WriteString("my-secret\n")
		w.Close()
	}()

	var out bytes.Buffer
	result := commands.Interactive(&commands.Prompt{
		InputType: commands.InputText,
		Message:   "key:",
		Handler: func(input string) *commands.Result {
			return commands.Successf("got %s", input)
		},
	})

	final := resolveResult(context.Background(), result, r, &out)
	if !final.OK() || final.Message != "got my-secret" {
		t.Errorf("final = %+v", final)
	}
}

func TestResolveResult_Pending(t *testing.T) {
	future := make(chan *commands.Result, 1)
	future <- commands.Success("async done")

	result := commands.Pending(&commands.Operation{Message: "working...", Future: future})
	var out bytes.Buffer
	final := resolveResult(context.Background(), result, os.Stdin, &out)
	if !final.OK() || final.Message != "async done" {
		t.Errorf("final = %+v", final)
	}
	if !strings.Contains(out.String(), "working...") {
		t.Error("pending message not printed")
	}
}

func TestResolveResult_PendingCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cancelled := false
	result := commands.Pending(&commands.Operation{
		Future: make(chan *commands.Result),
		Cancel: func() { cancelled = true },
	})
	final := resolveResult(ctx, result, os.Stdin, &bytes.Buffer{})
	if final.Code != commands.CodeCommandAborted {
		t.Errorf("final = %+v", final)
	}
	if !cancelled {
		t.Error("cancel hook not invoked")
	}
}
