// Copyright (C) 2026 The avdforge authors
// License: AGPL-3.0-only

// Package devicelab provides a Go library for provisioning Android Virtual
// Devices and taking system image dumps through the Android SDK tools.
package devicelab

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avdforge/avdforge/internal/avd"
)

var tracer = otel.Tracer("devicelab")

// Manager provides high-level AVD and dump operations.
type Manager struct {
	env avd.Env
}

// New creates a Manager with auto-detected environment.
func New() *Manager {
	return &Manager{env: avd.Detect()}
}

// NewWithCorrelationID creates a Manager tagging logs and spans with the ID.
func NewWithCorrelationID(correlationID string) *Manager {
	return NewWithContextAndCorrelationID(context.Background(), correlationID)
}

// NewWithContext creates a Manager parenting spans on ctx.
func NewWithContext(ctx context.Context) *Manager {
	return NewWithContextAndCorrelationID(ctx, "")
}

// NewWithContextAndCorrelationID creates a Manager with both.
func NewWithContextAndCorrelationID(ctx context.Context, correlationID string) *Manager {
	env := avd.Detect()
	if ctx == nil {
		ctx = context.Background()
	}
	env.Context = ctx
	if correlationID != "" {
		env.CorrelationID = correlationID
	}
	return &Manager{env: env}
}

// Environment overrides pieces of the auto-detected configuration.
// Zero-valued fields keep their detected values.
type Environment struct {
	SDKRoot       string          // ANDROID_SDK_ROOT
	AVDHome       string          // ANDROID_AVD_HOME
	APILevel      string          // system image API level (default "31")
	ABI           string          // system image ABI (default "x86_64")
	Tag           string          // system image tag (default "google_apis")
	SdkManagerBin string          // path to sdkmanager
	AvdManagerBin string          // path to avdmanager
	EmulatorBin   string          // path to emulator
	ADBBin        string          // path to adb
	CorrelationID string          // correlation ID for log/span enrichment
	Context       context.Context // context for tracing
}

// NewWithEnv creates a Manager with custom environment configuration.
func NewWithEnv(override Environment) *Manager {
	env := avd.Detect()
	if override.SDKRoot != "" {
		env.SDKRoot = override.SDKRoot
	}
	if override.AVDHome != "" {
		env.AVDHome = override.AVDHome
	}
	if override.APILevel != "" {
		env.APILevel = override.APILevel
	}
	if override.ABI != "" {
		env.ABI = override.ABI
	}
	if override.Tag != "" {
		env.Tag = override.Tag
	}
	if override.SdkManagerBin != "" {
		env.SdkManager = override.SdkManagerBin
	}
	if override.AvdManagerBin != "" {
		env.AvdMgr = override.AvdManagerBin
	}
	if override.EmulatorBin != "" {
		env.Emulator = override.EmulatorBin
	}
	if override.ADBBin != "" {
		env.ADB = override.ADBBin
	}
	if override.CorrelationID != "" {
		env.CorrelationID = override.CorrelationID
	}
	if override.Context != nil {
		env.Context = override.Context
	}
	return &Manager{env: env}
}

// AVDInfo describes an AVD on disk.
type AVDInfo struct {
	Name      string // AVD name
	Path      string // path to the .avd directory
	Userdata  string // path to the userdata image
	SizeBytes int64  // size of the userdata image
}

// DeviceInfo is one device or emulator adb can see.
type DeviceInfo struct {
	Serial string
	State  string
}

// ProcessInfo describes a running emulator.
type ProcessInfo struct {
	Serial string // emulator serial (e.g., emulator-5554)
	Name   string // AVD name
	Port   int    // console port
	PID    int32  // process ID
	Booted bool   // whether Android has fully booted
}

// CreateOptions control AVD creation.
type CreateOptions struct {
	Name          string // AVD name (required)
	DeviceProfile string // avdmanager device profile (optional)
}

// RunOptions control emulator startup.
type RunOptions struct {
	Name     string // AVD name (required)
	Port     int    // console port (0 = auto-pick)
	Headless bool   // run without a window
}

// DumpOptions control a system image dump.
type DumpOptions struct {
	Serial   string // device serial (required)
	Method   string // "block" (default) or "pull"
	OutDir   string // output directory (default: current directory)
	Compress bool   // zstd-compress the pulled image (block method)
}

// DumpResult reports where the dump landed.
type DumpResult struct {
	Path      string
	SizeBytes int64
}

func (m *Manager) startSpan(name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m.env.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", m.env.CorrelationID))
	}
	ctx := m.env.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// CreateSamsung provisions a Samsung-like AVD. Empty name uses the default.
func (m *Manager) CreateSamsung(name string) (AVDInfo, error) {
	info, err := avd.CreateSamsungAVD(m.env, name)
	return fromInfo(info), err
}

// CreatePixel provisions a Pixel-like AVD. Empty name uses the default.
func (m *Manager) CreatePixel(name string) (AVDInfo, error) {
	info, err := avd.CreatePixelAVD(m.env, name)
	return fromInfo(info), err
}

// Create provisions an AVD with an explicit device profile.
func (m *Manager) Create(opts CreateOptions) (AVDInfo, error) {
	info, err := avd.CreateAVD(m.env, opts.Name, opts.DeviceProfile)
	return fromInfo(info), err
}

// List returns all AVDs under ANDROID_AVD_HOME.
func (m *Manager) List() ([]AVDInfo, error) {
	infos, err := avd.List(m.env)
	if err != nil {
		return nil, err
	}
	result := make([]AVDInfo, len(infos))
	for i, info := range infos {
		result[i] = fromInfo(info)
	}
	return result, nil
}

// Delete removes an AVD (both .avd directory and .ini file).
func (m *Manager) Delete(name string) error {
	return avd.Delete(m.env, name)
}

// Devices lists devices and emulators adb can see.
func (m *Manager) Devices() ([]DeviceInfo, error) {
	devices, err := avd.ListDevices(m.env)
	if err != nil {
		return nil, err
	}
	result := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		result[i] = DeviceInfo{Serial: d.Serial, State: d.State}
	}
	return result, nil
}

// Dump copies a system image off a device. Success depends on the target's
// rooting/permissions; failures carry the tool's own output.
func (m *Manager) Dump(opts DumpOptions) (DumpResult, error) {
	res, err := avd.DumpSystemImage(m.env, avd.DumpOptions{
		Serial:   opts.Serial,
		Method:   avd.DumpMethod(opts.Method),
		OutDir:   opts.OutDir,
		Compress: opts.Compress,
	})
	return DumpResult{Path: res.Path, SizeBytes: res.SizeBytes}, err
}

// InstallAPK installs an APK via adb (Shizuku setup, baked test apps, ...).
func (m *Manager) InstallAPK(serial, apkPath string) error {
	return avd.InstallAPK(m.env, serial, apkPath)
}

// Run starts an emulator and returns its serial.
func (m *Manager) Run(opts RunOptions) (serial string, logPath string, err error) {
	if opts.Port > 0 {
		_, serial, logPath, err = avd.StartEmulatorOnPort(m.env, opts.Name, opts.Port, opts.Headless)
		return serial, logPath, err
	}
	return avd.StartEmulator(m.env, opts.Name, opts.Headless)
}

// ListRunning returns the running emulator instances.
func (m *Manager) ListRunning() ([]ProcessInfo, error) {
	procs, err := avd.ListRunning(m.env)
	if err != nil {
		return nil, err
	}
	result := make([]ProcessInfo, len(procs))
	for i, p := range procs {
		result[i] = ProcessInfo{Serial: p.Serial, Name: p.Name, Port: p.Port, PID: p.PID, Booted: p.Booted}
	}
	return result, nil
}

// Stop stops a running emulator by serial (e.g., "emulator-5554").
func (m *Manager) Stop(serial string) error {
	return avd.StopBySerial(m.env, serial)
}

// StopByName stops a running emulator by AVD name. Not running is not an error.
func (m *Manager) StopByName(name string) error {
	procs, err := avd.ListRunning(m.env)
	if err != nil {
		return err
	}
	for _, p := range procs {
		if p.Name == name {
			return avd.StopBySerial(m.env, p.Serial)
		}
	}
	return nil
}

// WaitForBoot waits for an emulator to fully boot Android.
func (m *Manager) WaitForBoot(serial string, timeout time.Duration) error {
	return avd.WaitForBoot(m.env, serial, timeout)
}

// FindFreePort finds a free even console port pair for the emulator.
func (m *Manager) FindFreePort(start, end int) (int, error) {
	return avd.FindFreeEvenPort(start, end)
}

func fromInfo(info avd.Info) AVDInfo {
	return AVDInfo{
		Name:      info.Name,
		Path:      info.Path,
		Userdata:  info.Userdata,
		SizeBytes: info.SizeBytes,
	}
}
