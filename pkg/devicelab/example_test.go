// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package devicelab_test

import (
	"fmt"
	"log"
	"time"

	"github.com/avdforge/avdforge/pkg/devicelab"
)

func Example_basicUsage() {
	// Create a new manager with auto-detected environment
	mgr := devicelab.New()

	// Provision a Samsung-like AVD (Galaxy device profile when available)
	samsung, err := mgr.CreateSamsung("")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Created AVD: %s\n", samsung.Name)

	// Start it headless and wait for Android to boot
	serial, logPath, err := mgr.Run(devicelab.RunOptions{
		Name:     samsung.Name,
		Headless: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Started on serial: %s (log: %s)\n", serial, logPath)

	if err := mgr.WaitForBoot(serial, 5*time.Minute); err != nil {
		log.Fatal(err)
	}

	// List running instances
	running, err := mgr.ListRunning()
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range running {
		fmt.Printf("Running: %s on %s (port %d, booted: %v)\n",
			p.Name, p.Serial, p.Port, p.Booted)
	}

	// Stop
	if err := mgr.StopByName(samsung.Name); err != nil {
		log.Fatal(err)
	}
}

func Example_systemDump() {
	mgr := devicelab.New()

	// Block-level dump via dd as root, zstd-compressed
	result, err := mgr.Dump(devicelab.DumpOptions{
		Serial:   "emulator-5554",
		Method:   "block",
		OutDir:   "/tmp/dumps",
		Compress: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Dump written to %s (%d bytes)\n", result.Path, result.SizeBytes)

	// Fallback for targets where dd as root is not available
	result, err = mgr.Dump(devicelab.DumpOptions{
		Serial: "emulator-5554",
		Method: "pull",
		OutDir: "/tmp/dumps",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Pulled /system to %s\n", result.Path)
}

func Example_customEnvironment() {
	// Create manager with custom paths and system image settings
	mgr := devicelab.NewWithEnv(devicelab.Environment{
		SDKRoot:  "/opt/android-sdk",
		AVDHome:  "/custom/avd/home",
		APILevel: "35",
		Tag:      "google_apis_playstore",
	})

	// Use as normal
	avds, err := mgr.List()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Found %d AVDs\n", len(avds))
}

func Example_parallelInstances() {
	mgr := devicelab.New()

	// Start multiple instances on specific ports
	for i := 0; i < 3; i++ {
		port := 5580 + (i * 2)
		serial, logPath, err := mgr.Run(devicelab.RunOptions{
			Name:     fmt.Sprintf("lab%d", i+1),
			Port:     port,
			Headless: true,
		})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Started on %s (log: %s)\n", serial, logPath)
	}

	// Monitor
	running, _ := mgr.ListRunning()
	fmt.Printf("Running %d instances\n", len(running))
}
