// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

/*
Package devicelab provides a Go library for provisioning Android Virtual
Devices (AVDs) and taking system image dumps through the Android SDK
command-line tools.

# Overview

Everything here is thin orchestration over sdkmanager, avdmanager, emulator
and adb: the library assembles argument lists, runs the tools as
subprocesses and relays their output and exit codes. It implements none of
the tools' protocols itself.

# Quick Start

	import "github.com/avdforge/avdforge/pkg/devicelab"

	func main() {
		mgr := devicelab.New()

		// Provision a Pixel-like AVD (installs the system image if missing)
		mgr.CreatePixel("Pixel_Device_AVD")

		// Start it headless
		serial, _, _ := mgr.Run(devicelab.RunOptions{
			Name:     "Pixel_Device_AVD",
			Headless: true,
		})
		mgr.WaitForBoot(serial, 3*time.Minute)

		// Dump its system image
		mgr.Dump(devicelab.DumpOptions{Serial: serial, Method: "block"})
	}

# Dumps and rooting

The block dump method runs dd against the system partition on the device
and needs root; emulators are usually rootable, real devices usually not.
The pull method copies /system recursively and works without root within
the device's permission limits. Failures surface the tools' own output and
are not retried or classified.

# Environment Configuration

By default the manager resolves tools via PATH and the well-known
directories under ANDROID_SDK_ROOT / ANDROID_HOME, and reads image
defaults from ~/.config/avdforge/config.yaml plus AVDFORGE_* env vars.
Use NewWithEnv to override any of it.

# Thread Safety

Manager instances are not thread-safe. Create separate instances for
concurrent use, or synchronize access with a mutex.

# Requirements

  - Android SDK command-line tools (sdkmanager, avdmanager)
  - emulator and platform-tools (adb)
  - Java (some SDK tools need it)
  - for dumps from a real device: root, or a device that allows the
    attempted operations
*/
package devicelab
