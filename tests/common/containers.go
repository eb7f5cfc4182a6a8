//go:build docker

// Package common holds the container plumbing for the integration
// suite: it builds the loom-ingest service image once per test run and
// starts throwaway containers for tests to talk to over HTTP.
package common

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// LoomImage is the tag the suite builds and runs.
const LoomImage = "loom-test:latest"

var (
	buildOnce sync.Once
	buildErr  error
)

// projectRoot walks up from this file to the directory holding go.mod.
func projectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// BuildImage builds the loom-ingest service image. Safe to call from
// every test; only the first call builds.
func BuildImage(t *testing.T) error {
	t.Helper()

	buildOnce.Do(func() {
		root := projectRoot()
		t.Logf("building %s from %s", LoomImage, root)
		cmd := exec.Command("docker", "build",
			"-t", LoomImage,
			"-f", filepath.Join(root, "tests", "docker", "Dockerfile.loom"),
			root)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			buildErr = fmt.Errorf("build %s: %w", LoomImage, err)
		}
	})
	return buildErr
}

// RequireDocker skips the calling test when no docker daemon answers.
func RequireDocker(t *testing.T) {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
}

// ServiceEnv is one running loom-ingest container.
type ServiceEnv struct {
	t         *testing.T
	ctx       context.Context
	container testcontainers.Container
	baseURL   string
}

// StartService builds the image if needed and starts one loom-ingest
// container, waiting until /health answers.
func StartService(t *testing.T) *ServiceEnv {
	t.Helper()
	RequireDocker(t)
	if err := BuildImage(t); err != nil {
		t.Fatalf("build image: %v", err)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        LoomImage,
			ExposedPorts: []string{"8080/tcp"},
			WaitingFor: wait.ForHTTP("/health").
				WithPort("8080/tcp").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "8080/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	env := &ServiceEnv{
		t:         t,
		ctx:       ctx,
		container: container,
		baseURL:   fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	t.Cleanup(env.terminate)
	return env
}

// URL returns the service base URL, e.g. http://localhost:49154.
func (e *ServiceEnv) URL() string { return e.baseURL }

// Logs returns the container's combined output so far.
func (e *ServiceEnv) Logs() string {
	reader, err := e.container.Logs(e.ctx)
	if err != nil {
		return ""
	}
	defer reader.Close()
	buf := make([]byte, 64*1024)
	n, _ := reader.Read(buf)
	return string(buf[:n])
}

func (e *ServiceEnv) terminate() {
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}
