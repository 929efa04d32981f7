// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package avd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortFromSerial(t *testing.T) {
	assert.Equal(t, 5554, portFromSerial("emulator-5554"))
	assert.Equal(t, 5682, portFromSerial("emulator-5682"))
	assert.Equal(t, 0, portFromSerial("emulator-abc"))
	assert.Equal(t, 0, portFromSerial("R5CT102ABCD"))
}

func TestAvdNameFromSerial(t *testing.T) {
	fake := &fakeRunner{respond: func(inv invocation) (string, error) {
		return "Pixel_Device_AVD\nOK\n", nil
	}}
	env := newFakeEnv(t, fake)

	name, err := avdNameFromSerial(env, "emulator-5554")
	require.NoError(t, err)
	assert.Equal(t, "Pixel_Device_AVD", name)
	require.Len(t, fake.calls, 1)
	assert.Equal(t, "adb -s emulator-5554 emu avd name", joinArgs(fake.calls[0]))
}

func TestAvdNameFromSerialWithoutOKLine(t *testing.T) {
	fake := &fakeRunner{respond: func(inv invocation) (string, error) {
		return "Samsung_Device_AVD\n", nil
	}}
	env := newFakeEnv(t, fake)

	name, err := avdNameFromSerial(env, "emulator-5556")
	require.NoError(t, err)
	assert.Equal(t, "Samsung_Device_AVD", name)
}

func TestListRunningMergesADBDevices(t *testing.T) {
	fake := &fakeRunner{respond: func(inv invocation) (string, error) {
		args := joinArgs(inv)
		switch {
		case args == "adb devices":
			return "List of devices attached\nemulator-5554\tdevice\nR5CT102ABCD\tdevice\n", nil
		case strings.Contains(args, "emu avd name"):
			return "Pixel_Device_AVD\nOK\n", nil
		case strings.Contains(args, "getprop sys.boot_completed"):
			return "1\n", nil
		}
		return "", nil
	}}
	env := newFakeEnv(t, fake)

	procs, err := ListRunning(env)
	require.NoError(t, err)

	// Physical devices are not emulators and must be skipped. The host
	// process scan may add entries on a machine running real emulators,
	// so only the adb-derived entry is asserted.
	var got *ProcInfo
	for i := range procs {
		if procs[i].Serial == "emulator-5554" {
			got = &procs[i]
		}
		assert.NotEqual(t, "R5CT102ABCD", procs[i].Serial)
	}
	require.NotNil(t, got, "emulator-5554 should be reported")
	assert.Equal(t, "Pixel_Device_AVD", got.Name)
	assert.Equal(t, 5554, got.Port)
	assert.True(t, got.Booted)
}

func TestListRunningUnbootedEmulator(t *testing.T) {
	fake := &fakeRunner{respond: func(inv invocation) (string, error) {
		args := joinArgs(inv)
		switch {
		case args == "adb devices":
			return "List of devices attached\nemulator-5586\toffline\n", nil
		case strings.Contains(args, "emu avd name"):
			return "", assertableError("device offline")
		case strings.Contains(args, "getprop"):
			return "", assertableError("device offline")
		}
		return "", nil
	}}
	env := newFakeEnv(t, fake)

	procs, err := ListRunning(env)
	require.NoError(t, err)

	var got *ProcInfo
	for i := range procs {
		if procs[i].Serial == "emulator-5586" {
			got = &procs[i]
		}
	}
	require.NotNil(t, got)
	assert.False(t, got.Booted)
	assert.Equal(t, 5586, got.Port)
}
