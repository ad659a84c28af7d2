package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "taskstack")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}

	stackPath := filepath.Join(dir, "stack.toml")
	stack := `
[[primitive]]
name = "tip"
kind = "point"
frame = "tool"
params = [0.0, 0.0, 0.0]

[[task]]
name = "avoid"
priority = 0
active = true
definition = ["TDefAvoidCollisionsSDF", "tip"]
dynamics = ["TDynFirstOrder", "1.0"]

[[task]]
name = "home"
priority = 1
active = true
monitored = true
definition = ["TDefFullPose"]
dynamics = ["TDynFirstOrder", "1.0"]
`
	if err := os.WriteFile(stackPath, []byte(stack), 0600); err != nil {
		t.Fatal(err)
	}

	port := freePort(t)
	cfg := fmt.Sprintf(`server:
  http_port: %d
  shutdown_timeout: 2s
loop:
  rate_hz: 50
avoidance:
  source: nats
  timeout: 200ms
nats:
  enabled: true
  embedded: true
  embedded_port: -1
  serve_sdf: true
stack:
  path: %s
obstacles:
  - name: ball
    kind: sphere
    center: [2.0, 0.0, 0.0]
    radius: 0.1
logging:
  level: warn
`, port, stackPath)
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, configPath)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var health struct {
		Status int `json:"status"`
		Counts struct {
			Tasks      int `json:"tasks"`
			Primitives int `json:"primitives"`
		} `json:"counts"`
		Loop struct {
			Cycles   uint64 `json:"cycles"`
			Failures uint64 `json:"failures"`
		} `json:"loop"`
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			decodeErr := json.NewDecoder(resp.Body).Decode(&health)
			resp.Body.Close()
			if decodeErr == nil && resp.StatusCode == http.StatusOK && health.Loop.Cycles > 5 {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("controller not healthy: err=%v health=%+v", err, health)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if health.Counts.Tasks != 2 || health.Counts.Primitives != 1 {
		t.Errorf("counts = %+v, want 2 tasks and 1 primitive", health.Counts)
	}
	if health.Loop.Failures != 0 {
		t.Errorf("loop failures = %d, want 0", health.Loop.Failures)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not shut down in time")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TASKSTACK_LOOP_RATE_HZ", "-5")

	if err := run(context.Background(), ""); err == nil {
		t.Fatal("run() error = nil, want configuration error")
	}
}
