// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcInfo describes one running emulator instance.
type ProcInfo struct {
	Serial string `json:"serial"`
	Name   string `json:"name"`
	Port   int    `json:"port"`
	PID    int32  `json:"pid"`
	Booted bool   `json:"booted"`
}

// ListRunning merges `adb devices` output with a process scan, so
// emulators that have not registered with adb yet are still reported.
func ListRunning(env Env) ([]ProcInfo, error) {
	_, span := startSpan(env, "avd.ListRunning")
	defer span.End()
	ensureADB(env)

	var procs []ProcInfo
	seen := make(map[int]bool)

	out, _ := run(env, env.ADB, "devices")
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 2 || !strings.HasPrefix(f[0], "emulator-") {
			continue
		}
		serial := f[0]
		port := portFromSerial(serial)
		if port == 0 {
			continue
		}
		seen[port] = true
		procs = append(procs, probeEmulator(env, serial, port))
	}

	// Catch emulators adb has not picked up yet.
	for _, ep := range scanEmulatorProcesses() {
		if seen[ep.port] {
			continue
		}
		serial := fmt.Sprintf("emulator-%d", ep.port)
		info := probeEmulator(env, serial, ep.port)
		if info.Name == "" {
			info.Name = ep.avdName
		}
		procs = append(procs, info)
	}

	return procs, nil
}

func probeEmulator(env Env, serial string, port int) ProcInfo {
	name, _ := avdNameFromSerial(env, serial)
	pid := findEmulatorPID(port)
	if name == "" && pid > 0 {
		name = emulatorNameFromPID(pid)
	}

	booted := false
	if out, err := run(env, env.ADB, "-s", serial, "shell", "getprop", "sys.boot_completed"); err == nil &&
		strings.TrimSpace(out) == "1" {
		booted = true
	}
	return ProcInfo{Serial: serial, Name: name, Port: port, PID: pid, Booted: booted}
}

// avdNameFromSerial asks the emulator console for the AVD name.
func avdNameFromSerial(env Env, serial string) (string, error) {
	out, err := run(env, env.ADB, "-s", serial, "emu", "avd", "name")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 {
		return "", nil
	}
	// console replies with the name followed by "OK"
	if strings.TrimSpace(lines[len(lines)-1]) == "OK" && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(lines[0]), nil
}

func portFromSerial(serial string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(serial, "emulator-"))
	if err != nil {
		return 0
	}
	return n
}

type emulatorProc struct {
	pid     int32
	port    int
	avdName string
}

// scanEmulatorProcesses finds qemu/emulator processes by their cmdline
// arguments (-port, -avd).
func scanEmulatorProcesses() []emulatorProc {
	all, err := process.Processes()
	if err != nil {
		return nil
	}
	var found []emulatorProc
	for _, p := range all {
		args, err := p.CmdlineSlice()
		if err != nil || len(args) == 0 {
			continue
		}
		if !strings.Contains(args[0], "emulator") && !strings.Contains(args[0], "qemu-system") {
			continue
		}
		ep := emulatorProc{pid: p.Pid}
		for i, arg := range args {
			if i+1 >= len(args) {
				break
			}
			switch arg {
			case "-port":
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					ep.port = n
				}
			case "-avd":
				ep.avdName = args[i+1]
			}
		}
		if ep.port == 0 {
			// default console port when -port was not given
			ep.port = 5554
		}
		found = append(found, ep)
	}
	return found
}

func findEmulatorPID(port int) int32 {
	for _, ep := range scanEmulatorProcesses() {
		if ep.port == port {
			return ep.pid
		}
	}
	return 0
}

func emulatorNameFromPID(pid int32) string {
	for _, ep := range scanEmulatorProcesses() {
		if ep.pid == pid {
			return ep.avdName
		}
	}
	return ""
}
