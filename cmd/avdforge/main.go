// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	core "github.com/avdforge/avdforge/internal/avd"
	"github.com/avdforge/avdforge/internal/menu"
)

func main() {
	ctx := context.Background()
	shutdown, err := setupTelemetry(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "telemetry setup:", err)
	}
	defer func() {
		if shutdown != nil {
			_ = shutdown(ctx)
		}
	}()

	env := core.Detect()
	env.Context = ctx

	var apiLevel, abi, tag string
	root := &cobra.Command{
		Use:          "avdforge",
		Short:        "Android AVD provisioning and system image dump helper",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiLevel != "" {
				env.APILevel = apiLevel
			}
			if abi != "" {
				env.ABI = abi
			}
			if tag != "" {
				env.Tag = tag
			}
		},
		// Without a subcommand the interactive menu is the surface.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(env)
		},
	}
	root.PersistentFlags().StringVar(&apiLevel, "api", "", "Android API level (default from config, 31)")
	root.PersistentFlags().StringVar(&abi, "abi", "", "system image ABI (default x86_64)")
	root.PersistentFlags().StringVar(&tag, "tag", "", "system image tag (default google_apis)")

	root.AddCommand(&cobra.Command{
		Use:   "menu",
		Short: "Run the interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMenu(env)
		},
	})

	// create-samsung
	var samsungName string
	samsungCmd := &cobra.Command{
		Use:   "create-samsung",
		Short: "Create a Samsung-like AVD (installs the system image if missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			inf, err := core.CreateSamsungAVD(env, samsungName)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s at %s\n", inf.Name, inf.Path)
			return nil
		},
	}
	samsungCmd.Flags().StringVar(&samsungName, "name", core.SamsungAVDName, "AVD name")
	root.AddCommand(samsungCmd)

	// create-pixel
	var pixelName string
	pixelCmd := &cobra.Command{
		Use:   "create-pixel",
		Short: "Create a Pixel-like AVD (installs the system image if missing)",
		RunE: func(cmd *cobra.Command, args []string) error {
			inf, err := core.CreatePixelAVD(env, pixelName)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s at %s\n", inf.Name, inf.Path)
			return nil
		},
	}
	pixelCmd.Flags().StringVar(&pixelName, "name", core.PixelAVDName, "AVD name")
	root.AddCommand(pixelCmd)

	// dump
	var dumpSerial, dumpMethod, dumpOut string
	var dumpCompress bool
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump a system image from a connected device or emulator",
		Long: `Dump a system image from a connected device or emulator.

The block method reads the system partition with dd and needs root on the
target; emulators are usually rootable. The pull method recursively copies
/system and works without root, within permission limits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serial := dumpSerial
			if serial == "" {
				devices, err := core.ListDevices(env)
				if err != nil {
					return err
				}
				serial, err = core.ChooseDevice(env, devices)
				if err != nil {
					return err
				}
			}
			res, err := core.DumpSystemImage(env, core.DumpOptions{
				Serial:   serial,
				Method:   core.DumpMethod(dumpMethod),
				OutDir:   dumpOut,
				Compress: dumpCompress,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Dump written: %s (%s)\n", res.Path, units.HumanSize(float64(res.SizeBytes)))
			return nil
		},
	}
	dumpCmd.Flags().StringVar(&dumpSerial, "serial", "", "device serial (interactive pick if omitted)")
	dumpCmd.Flags().StringVar(&dumpMethod, "method", string(core.DumpBlock), "dump method: block or pull")
	dumpCmd.Flags().StringVar(&dumpOut, "out", "", "output directory (default: current directory)")
	dumpCmd.Flags().BoolVar(&dumpCompress, "compress", false, "zstd-compress the pulled image (block method)")
	root.AddCommand(dumpCmd)

	// shizuku
	var shizukuAPK, shizukuSerial string
	shizukuCmd := &cobra.Command{
		Use:   "shizuku",
		Short: "Install the Shizuku APK (optional) and print setup guidance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if shizukuAPK != "" {
				if err := core.InstallAPK(env, shizukuSerial, shizukuAPK); err != nil {
					return err
				}
				fmt.Println("APK installed (or reinstalled).")
			}
			core.PrintShizukuGuide(os.Stdout)
			return nil
		},
	}
	shizukuCmd.Flags().StringVar(&shizukuAPK, "apk", "", "path to the Shizuku APK (skip install if omitted)")
	shizukuCmd.Flags().StringVar(&shizukuSerial, "serial", "", "device serial (adb default if omitted)")
	root.AddCommand(shizukuCmd)

	// list
	var listJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List AVDs under ANDROID_AVD_HOME",
		RunE: func(cmd *cobra.Command, args []string) error {
			ls, err := core.List(env)
			if err != nil {
				return err
			}
			if listJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ls)
			}
			printAVDs(os.Stdout, ls)
			return nil
		},
	}
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	root.AddCommand(listCmd)

	// devices
	var devicesJSON bool
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices and emulators adb can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := core.ListDevices(env)
			if err != nil {
				return err
			}
			if devicesJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}
			if len(devices) == 0 {
				fmt.Println("(no devices)")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%-22s %s\n", d.Serial, d.State)
			}
			return nil
		},
	}
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "output JSON")
	root.AddCommand(devicesCmd)

	// run
	var runName string
	var runPort int
	var runHeadless bool
	var runWait time.Duration
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start an emulator for an AVD",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runName == "" {
				return errors.New("--name is required")
			}
			var serial, logPath string
			var err error
			if runPort > 0 {
				_, serial, logPath, err = core.StartEmulatorOnPort(env, runName, runPort, runHeadless)
			} else {
				serial, logPath, err = core.StartEmulator(env, runName, runHeadless)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Started %s on %s (log: %s)\n", runName, serial, logPath)
			if runWait > 0 {
				if err := core.WaitForBoot(env, serial, runWait); err != nil {
					return err
				}
				fmt.Println("Boot completed.")
			}
			return nil
		},
	}
	runCmd.Flags().StringVar(&runName, "name", "", "AVD name to run")
	runCmd.Flags().IntVar(&runPort, "port", 0, "even console port (auto if omitted)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run without a window")
	runCmd.Flags().DurationVar(&runWait, "wait-boot", 0, "wait up to this long for Android to boot")
	root.AddCommand(runCmd)

	// stop
	var stopName, stopSerial string
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running emulator by --name or --serial",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stopSerial == "" && stopName == "" {
				return errors.New("use --name or --serial")
			}
			serial := stopSerial
			if serial == "" {
				procs, err := core.ListRunning(env)
				if err != nil {
					return err
				}
				for _, p := range procs {
					if p.Name == stopName {
						serial = p.Serial
						break
					}
				}
				if serial == "" {
					return fmt.Errorf("no running emulator named %s", stopName)
				}
			}
			if err := core.StopBySerial(env, serial); err != nil {
				return err
			}
			fmt.Printf("Stopped %s\n", serial)
			return nil
		},
	}
	stopCmd.Flags().StringVar(&stopName, "name", "", "AVD name")
	stopCmd.Flags().StringVar(&stopSerial, "serial", "", "emulator serial (e.g., emulator-5554)")
	root.AddCommand(stopCmd)

	// ps
	var psJSON bool
	psCmd := &cobra.Command{
		Use:   "ps",
		Short: "List running emulators with AVD name, serial, port, PID",
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := core.ListRunning(env)
			if err != nil {
				return err
			}
			if psJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(procs)
			}
			if len(procs) == 0 {
				fmt.Println("(no emulators)")
				return nil
			}
			for _, p := range procs {
				state := "booting"
				if p.Booted {
					state = "ready"
				}
				fmt.Printf("%-18s %-14s port=%-5d pid=%-7d %s\n", p.Name, p.Serial, p.Port, p.PID, state)
			}
			return nil
		},
	}
	psCmd.Flags().BoolVar(&psJSON, "json", false, "output JSON")
	root.AddCommand(psCmd)

	// delete
	root.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an AVD (+ .ini)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return core.Delete(env, args[0])
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMenu(env core.Env) error {
	if missing := env.MissingTools(); len(missing) > 0 {
		color.New(color.FgYellow).Fprintf(os.Stderr,
			"Warning: some Android SDK tools were not found: %s\n", strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Make sure ANDROID_SDK_ROOT or ANDROID_HOME is set and the cmdline tools are installed.")
	}

	in := bufio.NewReader(os.Stdin)
	env.In = in
	env.Out = os.Stdout

	m := menu.New("avdforge: Android AVD + dump helper", in, os.Stdout)
	m.Add("1", "Create Samsung device", func() error {
		inf, err := core.CreateSamsungAVD(env, "")
		if err != nil {
			return err
		}
		fmt.Printf("Created %s at %s\n", inf.Name, inf.Path)
		fmt.Println("Start it with option 5, headless or with a window.")
		return nil
	})
	m.Add("2", "Create a Pixel device", func() error {
		inf, err := core.CreatePixelAVD(env, "")
		if err != nil {
			return err
		}
		fmt.Printf("Created %s at %s\n", inf.Name, inf.Path)
		return nil
	})
	m.Add("3", "Create system image dump", func() error { return menuDump(env, in) })
	m.Add("4", "Set up Shizuku", func() error { return menuShizuku(env, in) })
	m.Add("5", "Start an emulator", func() error { return menuStart(env, in) })
	m.Add("6", "List AVDs", func() error {
		ls, err := core.List(env)
		if err != nil {
			return err
		}
		printAVDs(os.Stdout, ls)
		return nil
	})
	return m.Loop()
}

func menuDump(env core.Env, in *bufio.Reader) error {
	devices, err := core.ListDevices(env)
	if err != nil {
		return err
	}
	serial, err := core.ChooseDevice(env, devices)
	if err != nil {
		return err
	}
	fmt.Println("NOTE: a full system image dump typically requires root, or an emulator.")
	fmt.Println("1) Block-level dd (requires root)")
	fmt.Println("2) Recursive pull of /system (may be limited by permissions)")
	choice := promptLine(in, "Choose method (1 or 2) [1]: ")
	method := core.DumpBlock
	if choice == "2" {
		method = core.DumpPull
	}
	res, err := core.DumpSystemImage(env, core.DumpOptions{Serial: serial, Method: method})
	if err != nil {
		return err
	}
	fmt.Printf("Dump written: %s (%s)\n", res.Path, units.HumanSize(float64(res.SizeBytes)))
	return nil
}

func menuShizuku(env core.Env, in *bufio.Reader) error {
	apk := promptLine(in, "Path to Shizuku APK to install (leave empty to skip install): ")
	if apk != "" {
		if err := core.InstallAPK(env, "", apk); err != nil {
			return err
		}
		fmt.Println("APK installed (or reinstalled).")
	}
	core.PrintShizukuGuide(os.Stdout)
	return nil
}

func menuStart(env core.Env, in *bufio.Reader) error {
	name := promptLine(in, "AVD name to start: ")
	if name == "" {
		return errors.New("empty AVD name")
	}
	headless := promptLine(in, "Run headless? (y/N): ")
	serial, logPath, err := core.StartEmulator(env, name, strings.EqualFold(headless, "y"))
	if err != nil {
		return err
	}
	fmt.Printf("Started %s on %s (log: %s)\n", name, serial, logPath)
	return nil
}

func promptLine(in *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func printAVDs(w *os.File, ls []core.Info) {
	if len(ls) == 0 {
		fmt.Fprintln(w, "(no AVDs)")
		return
	}
	for _, i := range ls {
		fmt.Fprintf(w, "%-22s %s\n  userdata: %s (%s)\n",
			i.Name, i.Path, i.Userdata, units.HumanSize(float64(i.SizeBytes)))
	}
}
