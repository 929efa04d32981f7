// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel/attribute"
)

// Device is one row of `adb devices`.
type Device struct {
	Serial string `json:"serial"`
	State  string `json:"state"`
}

// DumpMethod selects how the system image is taken off the device.
type DumpMethod string

const (
	// DumpBlock reads the system partition with dd. Requires root on the
	// device; emulators are usually rootable, real devices usually not.
	DumpBlock DumpMethod = "block"
	// DumpPull recursively pulls /system. Works without root but modern
	// devices restrict large parts of the tree.
	DumpPull DumpMethod = "pull"
)

// remoteImagePath is where the dd output lands on the device before pull.
const remoteImagePath = "/sdcard/system.img"

type DumpOptions struct {
	Serial   string
	Method   DumpMethod
	OutDir   string // defaults to the current directory
	Compress bool   // zstd-compress the pulled image (block method only)
}

type DumpResult struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// ListDevices parses `adb devices` into serial/state pairs.
func ListDevices(env Env) ([]Device, error) {
	out, err := run(env, env.ADB, "devices")
	if err != nil {
		return nil, err
	}
	return parseADBDevices(out), nil
}

func parseADBDevices(out string) []Device {
	var devices []Device
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i, line := range lines {
		if i == 0 && strings.HasPrefix(line, "List of devices") {
			continue
		}
		f := strings.Fields(line)
		if len(f) >= 2 {
			devices = append(devices, Device{Serial: f[0], State: f[1]})
		}
	}
	return devices
}

// ChooseDevice picks a connected device: error when none, auto-pick when
// exactly one, otherwise an interactive numeric prompt (default 1).
func ChooseDevice(env Env, devices []Device) (string, error) {
	if len(devices) == 0 {
		return "", errors.New("no devices/emulators attached")
	}
	if len(devices) == 1 {
		return devices[0].Serial, nil
	}
	fmt.Fprintln(env.Out, "Connected devices/emulators:")
	for i, d := range devices {
		fmt.Fprintf(env.Out, "%d) %s (%s)\n", i+1, d.Serial, d.State)
	}
	fmt.Fprint(env.Out, "Pick device number (default 1): ")
	line, _ := bufio.NewReader(env.In).ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return devices[0].Serial, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(devices) {
		return "", fmt.Errorf("invalid choice %q", line)
	}
	return devices[n-1].Serial, nil
}

// ddShellCommand builds the on-device dd invocation. Two partition paths
// are tried because the by-name layout varies between devices.
func ddShellCommand() string {
	return fmt.Sprintf(
		"su -c 'dd if=/dev/block/by-name/system of=%s bs=4096 || dd if=/dev/block/platform/*/by-name/system of=%s bs=4096'",
		remoteImagePath, remoteImagePath,
	)
}

// DumpSystemImage copies a system image off the device with the chosen
// method. Permission failures surface as the tool's own output; whether
// the dump works depends entirely on device rooting, which this program
// cannot influence.
func DumpSystemImage(env Env, opts DumpOptions) (DumpResult, error) {
	_, span := startSpan(
		env,
		"avd.DumpSystemImage",
		attribute.String("serial", opts.Serial),
		attribute.String("method", string(opts.Method)),
	)
	defer span.End()
	if opts.Serial == "" {
		err := errors.New("empty device serial")
		recordSpanError(span, err)
		return DumpResult{}, err
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}

	var res DumpResult
	var err error
	switch opts.Method {
	case DumpPull:
		res, err = dumpPullSystem(env, opts.Serial, outDir)
	case DumpBlock, "":
		res, err = dumpBlockImage(env, opts.Serial, outDir, opts.Compress)
	default:
		err = fmt.Errorf("unknown dump method %q", opts.Method)
	}
	if err != nil {
		recordSpanError(span, err)
		return DumpResult{}, err
	}
	span.SetAttributes(attribute.Int64("size_bytes", res.SizeBytes))
	logEvent(env, "system dump finished",
		"serial", opts.Serial, "method", string(opts.Method), "path", res.Path, "size_bytes", res.SizeBytes)
	return res, nil
}

func dumpBlockImage(env Env, serial, outDir string, compress bool) (DumpResult, error) {
	if _, err := run(env, env.ADB, "-s", serial, "shell", ddShellCommand()); err != nil {
		return DumpResult{}, fmt.Errorf("block dump (device rooted?): %w", err)
	}
	local := filepath.Join(outDir, serial+"_system.img")
	if _, err := run(env, env.ADB, "-s", serial, "pull", remoteImagePath, local); err != nil {
		return DumpResult{}, fmt.Errorf("pull image: %w", err)
	}
	// remote cleanup is best effort
	_, _ = run(env, env.ADB, "-s", serial, "shell", "rm", remoteImagePath)

	if compress {
		return compressZstd(local)
	}
	st, err := os.Stat(local)
	if err != nil {
		return DumpResult{}, err
	}
	return DumpResult{Path: local, SizeBytes: st.Size()}, nil
}

func dumpPullSystem(env Env, serial, outDir string) (DumpResult, error) {
	local := filepath.Join(outDir, serial+"_system")
	if _, err := run(env, env.ADB, "-s", serial, "pull", "/system", local); err != nil {
		return DumpResult{}, fmt.Errorf("recursive pull of /system (try the block method on a rooted device or emulator): %w", err)
	}
	return DumpResult{Path: local, SizeBytes: dirSize(local)}, nil
}

// compressZstd replaces src with src.zst.
func compressZstd(src string) (DumpResult, error) {
	dst := src + ".zst"
	in, err := os.Open(src)
	if err != nil {
		return DumpResult{}, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return DumpResult{}, err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return DumpResult{}, err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return DumpResult{}, fmt.Errorf("compress %s: %w", src, err)
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return DumpResult{}, err
	}
	if err := out.Close(); err != nil {
		return DumpResult{}, err
	}
	_ = os.Remove(src)
	st, err := os.Stat(dst)
	if err != nil {
		return DumpResult{}, err
	}
	return DumpResult{Path: dst, SizeBytes: st.Size()}, nil
}

func dirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
