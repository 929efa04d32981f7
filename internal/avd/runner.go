// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes a one-shot subprocess and returns its combined
// stdout+stderr. The exec-backed implementation is the default; tests
// substitute a fake that records invocations and scripts outputs, so
// command assembly and exit-code surfacing are testable without any
// Android SDK installed.
type Runner interface {
	Run(env Env, stdin, bin string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(env Env, stdin, bin string, args ...string) (string, error) {
	if bin == "" {
		return "", errors.New("tool not found (is the Android SDK installed and on PATH?)")
	}
	cmd := exec.CommandContext(spanContext(env), bin, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = io.MultiWriter(&buf, newCommandLogWriter(env, bin, args))
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("%s %v failed: %v\n%s", bin, args, err, buf.String())
	}
	return buf.String(), nil
}

func run(env Env, bin string, args ...string) (string, error) {
	return env.Runner.Run(env, "", bin, args...)
}

func runInput(env Env, stdin, bin string, args ...string) (string, error) {
	return env.Runner.Run(env, stdin, bin, args...)
}
