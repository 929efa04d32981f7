// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// ShizukuDocsURL points at the upstream setup documentation.
const ShizukuDocsURL = "https://shizuku.rikka.app/"

// InstallAPK installs (or reinstalls) an APK via adb. An empty serial lets
// adb pick the only connected device.
func InstallAPK(env Env, serial, apkPath string) error {
	if _, err := os.Stat(apkPath); err != nil {
		return fmt.Errorf("APK path does not exist: %w", err)
	}
	args := []string{}
	if serial != "" {
		args = append(args, "-s", serial)
	}
	args = append(args, "install", "-r", apkPath)
	logEvent(env, "apk install", "serial", serial, "apk", apkPath)
	if _, err := run(env, env.ADB, args...); err != nil {
		return fmt.Errorf("install APK: %w", err)
	}
	return nil
}

// PrintShizukuGuide writes the static Shizuku setup guidance. No part of
// the Shizuku protocol is implemented here; the user performs the actual
// steps on the device.
func PrintShizukuGuide(w io.Writer) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintln(w, bold("Shizuku setup"))
	fmt.Fprintln(w, "On a rooted device, start the Shizuku server with something like:")
	fmt.Fprintln(w, "  adb shell su -c 'sh /data/local/tmp/shizuku_start.sh'")
	fmt.Fprintln(w, "On an emulator you can run the server binary directly and grant")
	fmt.Fprintln(w, "permissions through the app UI.")
	fmt.Fprintln(w, "Non-rooted devices can use ADB mode:")
	fmt.Fprintln(w, "  adb shell sh /data/local/tmp/start.sh")
	fmt.Fprintln(w, "which requires manual steps after every reboot.")
	fmt.Fprintf(w, "Full instructions: %s\n", cyan(ShizukuDocsURL))
}
