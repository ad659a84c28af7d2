package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temporary directory and returns the
// taskstack config directory inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "taskstack")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("Failed to chmod test config: %v", err)
	}
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9300
  shutdown_timeout: 3s
loop:
  rate_hz: 250
solver:
  damping: 0.001
  max_joint_velocity: 1.5
avoidance:
  safety_margin: 0.1
  timeout: 50ms
stack:
  path: /etc/taskstack/stack.toml
  watch: true
robot:
  root: world
  initial: [0.1, 0.2, 0.3, 0.0]
obstacles:
  - name: table
    kind: box
    center: [0.5, 0, 0.2]
    size: [0.4, 0.8, 0.05]
logging:
  level: debug
  format: console
  sampling:
    tick: 2s
telemetry:
  metrics:
    export_interval: 30s
`, 0600)

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 3*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Loop.RateHz != 250 {
		t.Errorf("Loop.RateHz = %v, want 250", cfg.Loop.RateHz)
	}
	if cfg.Solver.Damping != 0.001 || cfg.Solver.MaxJointVelocity != 1.5 {
		t.Errorf("Solver = %+v", cfg.Solver)
	}
	if cfg.Solver.MaxIterations != 16 {
		t.Errorf("Solver.MaxIterations = %d, want default 16", cfg.Solver.MaxIterations)
	}
	if cfg.Avoidance.Timeout.Duration() != 50*time.Millisecond {
		t.Errorf("Avoidance.Timeout = %v, want 50ms", cfg.Avoidance.Timeout.Duration())
	}
	if !cfg.Stack.Watch || cfg.Stack.Path != "/etc/taskstack/stack.toml" {
		t.Errorf("Stack = %+v", cfg.Stack)
	}
	if len(cfg.Robot.Initial) != 4 || cfg.Robot.Initial[2] != 0.3 {
		t.Errorf("Robot.Initial = %v", cfg.Robot.Initial)
	}
	if len(cfg.Obstacles) != 1 || cfg.Obstacles[0].Kind != "box" || cfg.Obstacles[0].Size[1] != 0.8 {
		t.Errorf("Obstacles = %+v", cfg.Obstacles)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Logging.Sampling.Tick != 2*time.Second {
		t.Errorf("Logging.Sampling.Tick = %v, want 2s", cfg.Logging.Sampling.Tick)
	}
	if !cfg.Logging.Output.Stdout {
		t.Error("Logging.Output.Stdout lost its default")
	}
	if cfg.Telemetry.Metrics.ExportInterval != 30*time.Second {
		t.Errorf("Telemetry.Metrics.ExportInterval = %v, want 30s", cfg.Telemetry.Metrics.ExportInterval)
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9300\nloop:\n  rate_hz: 50\n", 0600)

	t.Setenv("TASKSTACK_SERVER_HTTP_PORT", "9400")
	t.Setenv("TASKSTACK_LOOP_RATE_HZ", "500")
	t.Setenv("TASKSTACK_NATS_ENABLED", "true")
	t.Setenv("TASKSTACK_NATS_SERVE_SDF", "true")
	t.Setenv("TASKSTACK_NATS_TOKEN", "hunter2")
	t.Setenv("TASKSTACK_AVOIDANCE_TIMEOUT", "5ms")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Server.Port != 9400 {
		t.Errorf("Server.Port = %d, want 9400 from env", cfg.Server.Port)
	}
	if cfg.Loop.RateHz != 500 {
		t.Errorf("Loop.RateHz = %v, want 500 from env", cfg.Loop.RateHz)
	}
	if !cfg.NATS.Enabled || !cfg.NATS.ServeSDF {
		t.Errorf("NATS = %+v", cfg.NATS)
	}
	if cfg.NATS.Token.Value() != "hunter2" {
		t.Error("NATS.Token not loaded from env")
	}
	if cfg.Avoidance.Timeout.Duration() != 5*time.Millisecond {
		t.Errorf("Avoidance.Timeout = %v, want 5ms", cfg.Avoidance.Timeout.Duration())
	}
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestLoadWithFile_DefaultPath(t *testing.T) {
	dir := setupTestHome(t)
	writeConfig(t, dir, "loop:\n  rate_hz: 20\n", 0600)

	cfg, err := LoadWithFile("")
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Loop.RateHz != 20 {
		t.Errorf("Loop.RateHz = %v, want 20", cfg.Loop.RateHz)
	}
}

func TestLoadWithFile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		wantErr string
	}{
		{"world readable", "loop:\n  rate_hz: 20\n", 0644, "insecure config file permissions"},
		{"invalid yaml", "loop: [\n", 0600, "failed to load config file"},
		{"invalid values", "loop:\n  rate_hz: -1\n", 0600, "config validation failed"},
		{"too large", "# " + strings.Repeat("x", maxConfigFileSize) + "\n", 0600, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.perm == 0644 && runtime.GOOS == "windows" {
				t.Skip("permission model differs on windows")
			}
			dir := setupTestHome(t)
			path := writeConfig(t, dir, tt.content, tt.perm)

			_, err := LoadWithFile(path)
			if err == nil {
				t.Fatal("LoadWithFile() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	dir := setupTestHome(t)

	allowed := []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "robots", "arm.yaml"),
		"/etc/taskstack/config.yaml",
	}
	for _, p := range allowed {
		if err := validateConfigPath(p); err != nil {
			t.Errorf("validateConfigPath(%q) = %v, want nil", p, err)
		}
	}

	rejected := []string{
		"/etc/taskstack../etc/passwd",
		filepath.Join(dir, "..", "..", "..", "etc", "passwd"),
		"/tmp/config.yaml",
		"/etc/taskstack",
	}
	for _, p := range rejected {
		if err := validateConfigPath(p); err == nil {
			t.Errorf("validateConfigPath(%q) = nil, want error", p)
		}
	}
}

func TestValidateConfigPath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "evil.yaml")
	if err := os.WriteFile(outside, []byte("loop:\n  rate_hz: 1\n"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "config.yaml")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatal(err)
	}
	if err := validateConfigPath(link); err == nil {
		t.Error("symlink out of the config directory was accepted")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"TASKSTACK_SERVER_HTTP_PORT":          "server.http_port",
		"TASKSTACK_SOLVER_MAX_JOINT_VELOCITY": "solver.max_joint_velocity",
		"TASKSTACK_STACK":                     "stack",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := EnsureConfigDir(); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(home, ".config", "taskstack"))
	if err != nil {
		t.Fatalf("config dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("config path is not a directory")
	}
}
