// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// invocation records one Runner call made by the code under test.
type invocation struct {
	Stdin string
	Bin   string
	Args  []string
}

// fakeRunner scripts subprocess behaviour so command assembly and
// exit-code surfacing are testable without any Android SDK installed.
type fakeRunner struct {
	calls []invocation
	// respond, when set, supplies output/error per invocation.
	respond func(inv invocation) (string, error)
}

func (f *fakeRunner) Run(env Env, stdin, bin string, args ...string) (string, error) {
	inv := invocation{Stdin: stdin, Bin: bin, Args: args}
	f.calls = append(f.calls, inv)
	if f.respond != nil {
		return f.respond(inv)
	}
	return "", nil
}

func (f *fakeRunner) call(i int) invocation {
	return f.calls[i]
}

func joinArgs(inv invocation) string {
	return inv.Bin + " " + strings.Join(inv.Args, " ")
}

func newFakeEnv(t *testing.T, r *fakeRunner) Env {
	t.Helper()
	return Env{
		AVDHome:    t.TempDir(),
		APILevel:   DefaultAPILevel,
		ABI:        DefaultABI,
		Tag:        DefaultTag,
		SdkManager: "sdkmanager",
		AvdMgr:     "avdmanager",
		Emulator:   "emulator",
		ADB:        "adb",
		Runner:     r,
		In:         strings.NewReader(""),
		Out:        os.Stdout,
	}
}

func TestExecRunnerSurfacesExitCodeAndOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	dir := t.TempDir()
	tool := filepath.Join(dir, "failing-tool")
	script := "#!/bin/sh\necho some progress\necho boom >&2\nexit 3\n"
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	env := Env{Runner: execRunner{}}
	out, err := run(env, tool, "--flag")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error should carry the tool output, got: %v", err)
	}
	if !strings.Contains(out, "some progress") {
		t.Fatalf("combined output should include stdout, got: %q", out)
	}
}

func TestExecRunnerPassesStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	dir := t.TempDir()
	tool := filepath.Join(dir, "echo-stdin")
	script := "#!/bin/sh\ncat\n"
	if err := os.WriteFile(tool, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	env := Env{Runner: execRunner{}}
	out, err := runInput(env, "no\n", tool)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(out) != "no" {
		t.Fatalf("expected stdin echoed back, got %q", out)
	}
}

func TestExecRunnerMissingTool(t *testing.T) {
	env := Env{Runner: execRunner{}}
	if _, err := run(env, ""); err == nil {
		t.Fatal("expected error when the tool path is empty")
	}
}
