// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Default names for the two provisioning presets.
const (
	SamsungAVDName = "Samsung_Device_AVD"
	PixelAVDName   = "Pixel_Device_AVD"
)

type Info struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Userdata  string `json:"userdata"`
	SizeBytes int64  `json:"size_bytes"`
}

// DeviceProfile is one entry of `avdmanager list device`.
type DeviceProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func List(env Env) ([]Info, error) {
	_, span := startSpan(env, "avd.List")
	defer span.End()
	entries, err := os.ReadDir(env.AVDHome)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".avd") {
			continue
		}
		out = append(out, infoOf(env, strings.TrimSuffix(e.Name(), ".avd")))
	}
	return out, nil
}

func infoOf(env Env, name string) Info {
	dir := filepath.Join(env.AVDHome, name+".avd")
	ud := filepath.Join(dir, "userdata-qemu.img")
	if _, err := os.Stat(ud); err != nil {
		ud = filepath.Join(dir, "userdata.img")
	}
	var sz int64
	if st, err := os.Stat(ud); err == nil {
		sz = st.Size()
	}
	return Info{Name: name, Path: dir, Userdata: ud, SizeBytes: sz}
}

func Delete(env Env, name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	_ = os.RemoveAll(filepath.Join(env.AVDHome, name+".avd"))
	_ = os.Remove(filepath.Join(env.AVDHome, name+".ini"))
	return nil
}

// ListDeviceProfiles parses `avdmanager list device` into id/name pairs.
func ListDeviceProfiles(env Env) ([]DeviceProfile, error) {
	out, err := run(env, env.AvdMgr, "list", "device")
	if err != nil {
		return nil, err
	}
	return parseDeviceProfiles(out), nil
}

// parseDeviceProfiles scans for "id: <n> or \"<id>\"" and "Name: <name>"
// line pairs. Lines it does not recognize are skipped.
func parseDeviceProfiles(out string) []DeviceProfile {
	var profiles []DeviceProfile
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToLower(line), "id:"):
			val := strings.TrimSpace(line[len("id:"):])
			// "17 or \"pixel_6\"" -> prefer the quoted id
			if i := strings.Index(val, `"`); i != -1 {
				if j := strings.LastIndex(val, `"`); j > i {
					val = val[i+1 : j]
				}
			}
			profiles = append(profiles, DeviceProfile{ID: val})
		case strings.HasPrefix(strings.ToLower(line), "name:") && len(profiles) > 0:
			profiles[len(profiles)-1].Name = strings.TrimSpace(line[len("name:"):])
		}
	}
	return profiles
}

// PickSamsungProfile prefers a Samsung-like or large-screen profile.
// avdmanager ships no official Samsung profiles, so galaxy/samsung matches
// are opportunistic and the Pixel/Nexus fallbacks usually win.
func PickSamsungProfile(profiles []DeviceProfile) string {
	for _, p := range profiles {
		name := strings.ToLower(p.Name)
		if strings.Contains(name, "galaxy") || strings.Contains(name, "samsung") ||
			strings.Contains(name, "xlarge") || strings.Contains(name, "large") {
			return p.ID
		}
	}
	for _, fallback := range []string{"pixel_6", "pixel_5", "nexus 6", "nexus 5x"} {
		for _, p := range profiles {
			if strings.Contains(strings.ToLower(p.Name), fallback) ||
				strings.Contains(strings.ToLower(p.ID), fallback) {
				return p.ID
			}
		}
	}
	return ""
}

// PickPixelProfile prefers any Pixel profile.
func PickPixelProfile(profiles []DeviceProfile) string {
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Name), "pixel") ||
			strings.Contains(strings.ToLower(p.ID), "pixel") {
			return p.ID
		}
	}
	return ""
}

// EnsureSystemImage installs the system image package if it is not already
// present under the SDK root. License acceptance is best effort.
func EnsureSystemImage(env Env, pkg string) error {
	_, span := startSpan(env, "avd.EnsureSystemImage", attribute.String("package", pkg))
	defer span.End()
	if env.SDKRoot != "" {
		parts := strings.Split(pkg, ";")
		if len(parts) == 4 {
			p := filepath.Join(env.SDKRoot, "system-images", strings.TrimPrefix(parts[1], "android-"), parts[2], parts[3])
			if _, err := os.Stat(p); err == nil {
				return nil
			}
			p = filepath.Join(env.SDKRoot, "system-images", parts[1], parts[2], parts[3])
			if _, err := os.Stat(p); err == nil {
				return nil
			}
		}
	}
	_, _ = runInput(env, "y\n", env.SdkManager, "--licenses")
	if _, err := run(env, env.SdkManager, pkg); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// CreateAVD ensures the system image and runs `avdmanager create avd`.
// An empty profile omits the --device flag.
func CreateAVD(env Env, name, profile string) (Info, error) {
	_, span := startSpan(
		env,
		"avd.CreateAVD",
		attribute.String("name", name),
		attribute.String("device_profile", profile),
	)
	defer span.End()
	if name == "" {
		err := errors.New("empty AVD name")
		recordSpanError(span, err)
		return Info{}, err
	}
	if err := os.MkdirAll(env.AVDHome, 0o755); err != nil {
		recordSpanError(span, err)
		return Info{}, err
	}

	pkg := env.SystemImagePackage()
	if err := EnsureSystemImage(env, pkg); err != nil {
		recordSpanError(span, err)
		return Info{}, fmt.Errorf("ensure system image: %w", err)
	}

	args := []string{"create", "avd", "--name", name, "--package", pkg, "--force"}
	if profile != "" {
		args = append(args, "--device", profile)
	}
	logEvent(env, "avd create", "name", name, "package", pkg, "device_profile", profile)
	// avdmanager asks about a custom hardware profile; answer no.
	if _, err := runInput(env, "no\n", env.AvdMgr, args...); err != nil {
		recordSpanError(span, err)
		return Info{}, fmt.Errorf("avdmanager create: %w", err)
	}
	return infoOf(env, name), nil
}

// CreateSamsungAVD provisions a Samsung-like AVD using the best matching
// device profile. Profile listing failures are not fatal; the AVD is then
// created with avdmanager's default hardware profile.
func CreateSamsungAVD(env Env, name string) (Info, error) {
	if name == "" {
		name = SamsungAVDName
	}
	profiles, err := ListDeviceProfiles(env)
	if err != nil {
		logEvent(env, "device profile listing failed", "error", err.Error())
	}
	return CreateAVD(env, name, PickSamsungProfile(profiles))
}

// CreatePixelAVD provisions a Pixel-like AVD.
func CreatePixelAVD(env Env, name string) (Info, error) {
	if name == "" {
		name = PixelAVDName
	}
	profiles, err := ListDeviceProfiles(env)
	if err != nil {
		logEvent(env, "device profile listing failed", "error", err.Error())
	}
	return CreateAVD(env, name, PickPixelProfile(profiles))
}

// ensureADB starts the adb server (idempotent).
func ensureADB(env Env) { _, _ = run(env, env.ADB, "start-server") }

// StartEmulator picks a free even console port and starts the emulator
// detached. Returns the serial (emulator-<port>) and the log file path.
func StartEmulator(env Env, name string, headless bool) (string, string, error) {
	ensureADB(env)
	port, err := FindFreeEvenPort(5554, 5800)
	if err != nil {
		return "", "", err
	}
	_, serial, logPath, err := StartEmulatorOnPort(env, name, port, headless)
	if err != nil {
		return "", logPath, err
	}
	if err := waitForEmulatorSerial(env, serial, 60*time.Second); err != nil {
		return "", logPath, fmt.Errorf("%w\nemulator log: %s", err, logPath)
	}
	return serial, logPath, nil
}

// StartEmulatorOnPort starts the emulator with a fixed console port and
// returns (*exec.Cmd, serial, logPath). The process is left running; the
// user owns its lifecycle from here (stop via StopBySerial).
func StartEmulatorOnPort(env Env, name string, port int, headless bool) (*exec.Cmd, string, string, error) {
	_, span := startSpan(
		env,
		"avd.StartEmulatorOnPort",
		attribute.String("name", name),
		attribute.Int("port", port),
	)
	defer span.End()
	if env.Emulator == "" {
		err := errors.New("emulator binary not found")
		recordSpanError(span, err)
		return nil, "", "", err
	}
	// emulator uses a port pair: <port> and <port+1>; must be even
	if port%2 != 0 {
		err := fmt.Errorf("port %d is odd; emulator requires even port numbers (uses port and port+1)", port)
		recordSpanError(span, err)
		return nil, "", "", err
	}
	if port < 5554 || port > 5800 {
		err := fmt.Errorf("port %d out of valid range (5554-5800)", port)
		recordSpanError(span, err)
		return nil, "", "", err
	}
	if !isPortFree(port) || !isPortFree(port+1) {
		err := fmt.Errorf("port %d or %d already in use", port, port+1)
		recordSpanError(span, err)
		return nil, "", "", err
	}

	logPath := filepath.Join(os.TempDir(), fmt.Sprintf("emulator-%s-%d.log", name, port))
	logFile, err := os.Create(logPath)
	if err != nil {
		recordSpanError(span, err)
		return nil, "", "", fmt.Errorf("open log: %w", err)
	}
	logWriter := newLineLogWriter(env, "emulator output", "name", name, "port", port)

	args := []string{"-avd", name, "-port", fmt.Sprint(port)}
	if headless {
		args = append(args,
			"-no-window",
			"-no-boot-anim",
			"-no-snapshot",
			"-no-metrics",
			"-no-audio",
			"-gpu", "swiftshader_indirect",
		)
	}
	cmd := exec.Command(env.Emulator, args...)
	cmd.Stdout = io.MultiWriter(logFile, logWriter)
	cmd.Stderr = io.MultiWriter(logFile, logWriter)
	cmd.Env = append(os.Environ(), "QEMU_FILE_LOCKING=off")

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		recordSpanError(span, err)
		logEvent(env, "emulator start failed", "name", name, "port", port, "error", err.Error())
		return nil, "", "", fmt.Errorf("emulator start: %w", err)
	}
	serial := fmt.Sprintf("emulator-%d", port)
	span.SetAttributes(
		attribute.String("serial", serial),
		attribute.Int("pid", cmd.Process.Pid),
	)
	logEvent(env, "emulator started",
		"name", name, "port", port, "serial", serial, "pid", cmd.Process.Pid, "log_path", logPath)
	return cmd, serial, logPath, nil
}

// waitForEmulatorSerial polls adb devices for a specific serial.
func waitForEmulatorSerial(env Env, serial string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		out, _ := run(env, env.ADB, "devices")
		for _, line := range strings.Split(out, "\n") {
			f := strings.Fields(line)
			if len(f) >= 2 && f[0] == serial {
				return nil // status may still be 'offline'; WaitForBoot handles readiness
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("device %s not seen within %s", serial, timeout)
}

// WaitForBoot polls sys.boot_completed until the device reports 1.
func WaitForBoot(env Env, serial string, timeout time.Duration) error {
	_, span := startSpan(
		env,
		"avd.WaitForBoot",
		attribute.String("serial", serial),
		attribute.String("timeout", timeout.String()),
	)
	defer span.End()
	deadline := time.Now().Add(timeout)
	_, _ = run(env, env.ADB, "wait-for-device")

	for time.Now().Before(deadline) {
		out, _ := run(env, env.ADB, "-s", serial, "shell", "getprop", "sys.boot_completed")
		if strings.TrimSpace(out) == "1" {
			span.SetAttributes(attribute.Bool("boot_completed", true))
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	err := fmt.Errorf("boot timeout after %s (adb could not confirm boot completion)", timeout)
	recordSpanError(span, err)
	return err
}

// StopBySerial stops a running emulator cleanly via the console, falling
// back to signalling the process when adb cannot reach it.
func StopBySerial(env Env, serial string) error {
	if !strings.HasPrefix(serial, "emulator-") {
		return fmt.Errorf("invalid serial format: %s (expected emulator-XXXX)", serial)
	}
	port := portFromSerial(serial)
	_, span := startSpan(
		env,
		"avd.StopBySerial",
		attribute.String("serial", serial),
		attribute.Int("port", port),
	)
	defer span.End()
	logEvent(env, "emulator stop requested", "serial", serial, "port", port)

	_, adbErr := run(env, env.ADB, "-s", serial, "emu", "kill")
	time.Sleep(1 * time.Second)

	pid := findEmulatorPID(port)
	if pid == 0 {
		logEvent(env, "emulator stopped", "serial", serial, "port", port)
		return nil
	}

	if proc, err := os.FindProcess(int(pid)); err == nil {
		if killErr := proc.Signal(os.Interrupt); killErr == nil {
			time.Sleep(2 * time.Second)
			if findEmulatorPID(port) > 0 {
				_ = proc.Kill()
			}
			logEvent(env, "emulator stopped", "serial", serial, "port", port, "pid", pid)
			return nil
		}
	}

	if adbErr != nil {
		recordSpanError(span, adbErr)
		return fmt.Errorf("failed to stop %s: %w\nalso failed to signal PID %d", serial, adbErr, pid)
	}
	return nil
}

// FindFreeEvenPort returns the first free even port in [start, end)
// (the emulator claims port and port+1).
func FindFreeEvenPort(start, end int) (int, error) {
	if start%2 != 0 {
		start++
	}
	for p := start; p < end; p += 2 {
		if isPortFree(p) && isPortFree(p+1) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free even port found in %d..%d", start, end)
}

func isPortFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}
