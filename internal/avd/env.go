// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"

	"github.com/google/uuid"
)

// Defaults used when neither the config file nor env vars say otherwise.
const (
	DefaultAPILevel = "31"
	DefaultABI      = "x86_64"
	DefaultTag      = "google_apis"
)

// Tools this program shells out to.
const (
	ToolSdkManager = "sdkmanager"
	ToolAvdManager = "avdmanager"
	ToolEmulator   = "emulator"
	ToolADB        = "adb"
)

type Env struct {
	SDKRoot  string // ANDROID_SDK_ROOT (falls back to ANDROID_HOME)
	AVDHome  string // ANDROID_AVD_HOME (default ~/.android/avd)
	APILevel string // Android API level for system images
	ABI      string // system image ABI
	Tag      string // system image tag (google_apis, google_apis_playstore, default)

	// Resolved tool paths. Empty when the tool could not be found;
	// operations that need a missing tool fail at call time.
	SdkManager string
	AvdMgr     string
	Emulator   string
	ADB        string

	// Runner executes one-shot subprocess invocations. Tests swap in a fake.
	Runner Runner
	// In/Out carry interactive prompts (device picker, menu).
	In  io.Reader
	Out io.Writer
	// CorrelationID ties logs and spans to a specific session/workflow.
	CorrelationID string
	// Context is used to parent OpenTelemetry spans.
	Context context.Context
}

func Detect() Env {
	usr, _ := user.Current()
	home := ""
	if usr != nil {
		home = usr.HomeDir
	} else if h := os.Getenv("HOME"); h != "" {
		home = h
	}

	sdk := os.Getenv("ANDROID_SDK_ROOT")
	if sdk == "" {
		sdk = os.Getenv("ANDROID_HOME")
	}

	cfg := loadConfig(home)

	correlationID := getenv("AVDFORGE_CORRELATION_ID", "")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return Env{
		SDKRoot:       sdk,
		AVDHome:       getenv("ANDROID_AVD_HOME", filepath.Join(home, ".android", "avd")),
		APILevel:      getenv("AVDFORGE_API_LEVEL", cfg.APILevel),
		ABI:           getenv("AVDFORGE_ABI", cfg.ABI),
		Tag:           getenv("AVDFORGE_TAG", cfg.Tag),
		SdkManager:    LookupTool(sdk, ToolSdkManager),
		AvdMgr:        LookupTool(sdk, ToolAvdManager),
		Emulator:      LookupTool(sdk, ToolEmulator),
		ADB:           LookupTool(sdk, ToolADB),
		Runner:        execRunner{},
		In:            os.Stdin,
		Out:           os.Stdout,
		CorrelationID: correlationID,
		Context:       context.Background(),
	}
}

// LookupTool resolves an SDK tool: PATH first, then the well-known
// directories under the SDK root. Returns "" when the tool is nowhere.
func LookupTool(sdkRoot, name string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	if sdkRoot == "" {
		return ""
	}
	candidates := []string{
		filepath.Join(sdkRoot, "tools", "bin", name),
		filepath.Join(sdkRoot, "cmdline-tools", "latest", "bin", name),
		filepath.Join(sdkRoot, "cmdline-tools", "bin", name),
		filepath.Join(sdkRoot, "platform-tools", name),
		filepath.Join(sdkRoot, "emulator", name),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// MissingTools reports which SDK tools Detect could not resolve.
func (e Env) MissingTools() []string {
	var missing []string
	for _, t := range []struct{ name, path string }{
		{ToolSdkManager, e.SdkManager},
		{ToolAvdManager, e.AvdMgr},
		{ToolEmulator, e.Emulator},
		{ToolADB, e.ADB},
	} {
		if t.path == "" {
			missing = append(missing, t.name)
		}
	}
	return missing
}

// SystemImagePackage returns the sdkmanager package ID for the configured
// API level, tag and ABI, e.g. "system-images;android-31;google_apis;x86_64".
func (e Env) SystemImagePackage() string {
	return "system-images;android-" + e.APILevel + ";" + e.Tag + ";" + e.ABI
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
