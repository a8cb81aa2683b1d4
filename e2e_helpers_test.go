//go:build !ci

package widgetlab

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/config"
	"github.com/livetemplate/widgetlab/internal/server"
)

const (
	dockerImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-widgetlab-"
	e2eTimeout            = 60 * time.Second
	waitTimeout           = 5 * time.Second
)

// chromeTarget is a running browser: a local binary found by the rod
// launcher, or the headless-shell container when none is installed.
type chromeTarget struct {
	WSURL  string
	docker bool
}

// startChrome launches a browser for the test and stops it on cleanup.
// The test is skipped when neither a local Chrome nor Docker is available.
func startChrome(t *testing.T) *chromeTarget {
	t.Helper()

	if bin, ok := launcher.LookPath(); ok {
		l := launcher.New().Bin(bin).Headless(true).NoSandbox(true).Set("disable-gpu")
		wsURL, err := l.Launch()
		require.NoError(t, err, "launch local Chrome")
		t.Cleanup(func() {
			l.Kill()
			l.Cleanup()
		})
		return &chromeTarget{WSURL: wsURL}
	}

	port, err := getFreePort()
	require.NoError(t, err, "allocate Chrome port")
	require.NoError(t, startDockerChrome(t, port))
	t.Cleanup(func() { stopDockerChrome(t, port) })

	wsURL, err := launcher.ResolveURL(fmt.Sprintf("localhost:%d", port))
	require.NoError(t, err, "resolve DevTools URL")
	return &chromeTarget{WSURL: wsURL, docker: true}
}

// PageURL returns the address the browser should use for a test server URL.
func (c *chromeTarget) PageURL(serverURL, path string) string {
	if c.docker {
		serverURL = ConvertURLForDockerChrome(serverURL)
	}
	return serverURL + path
}

// setupChromedp returns a chromedp context on a fresh browser.
func setupChromedp(t *testing.T) (context.Context, *chromeTarget) {
	t.Helper()
	target := startChrome(t)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), target.WSURL)
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, e2eTimeout)

	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
	})
	return ctx, target
}

// startLabServer serves the widgets on a local port for the browser.
func startLabServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv, err := server.New(config.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	WaitForServer(t, ts.URL+"/healthz", 5*time.Second)
	return ts
}

// waitConnected waits until the client's WebSocket is open.
func waitConnected() chromedp.Action {
	return chromedp.WaitVisible(`body[data-ws-state="open"]`, chromedp.ByQuery)
}

// waitText polls until the element's trimmed text equals want.
func waitText(selector, want string) chromedp.Action {
	var ok bool
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return !!el && el.textContent.trim() === %q; })()`, selector, want)
	return chromedp.Poll(expr, &ok, chromedp.WithPollingTimeout(waitTimeout))
}

// waitContains polls until the element's text contains want.
func waitContains(selector, want string) chromedp.Action {
	var ok bool
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return !!el && el.textContent.includes(%q); })()`, selector, want)
	return chromedp.Poll(expr, &ok, chromedp.WithPollingTimeout(waitTimeout))
}

// waitValue polls until the input's value equals want.
func waitValue(selector, want string) chromedp.Action {
	var ok bool
	expr := fmt.Sprintf(`(() => { const el = document.querySelector(%q); return !!el && el.value === %q; })()`, selector, want)
	return chromedp.Poll(expr, &ok, chromedp.WithPollingTimeout(waitTimeout))
}

// waitCount polls until exactly n elements match selector.
func waitCount(selector string, n int) chromedp.Action {
	var ok bool
	expr := fmt.Sprintf(`document.querySelectorAll(%q).length === %d`, selector, n)
	return chromedp.Poll(expr, &ok, chromedp.WithPollingTimeout(waitTimeout))
}

// waitGone polls until nothing matches selector.
func waitGone(selector string) chromedp.Action {
	var ok bool
	expr := fmt.Sprintf(`document.querySelector(%q) === null`, selector)
	return chromedp.Poll(expr, &ok, chromedp.WithPollingTimeout(waitTimeout))
}

// getFreePort asks the kernel for a free open port that is ready to use.
func getFreePort() (port int, err error) {
	var a *net.TCPAddr
	if a, err = net.ResolveTCPAddr("tcp", "localhost:0"); err == nil {
		var l *net.TCPListener
		if l, err = net.ListenTCP("tcp", a); err == nil {
			defer l.Close()
			return l.Addr().(*net.TCPAddr).Port, nil
		}
	}
	return
}

// startDockerChrome starts the chromedp headless-shell Docker container.
func startDockerChrome(t *testing.T, debugPort int) error {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("no local Chrome and Docker not available, skipping E2E test")
	}

	containerName := fmt.Sprintf("%s%d", chromeContainerPrefix, debugPort)
	_, _ = exec.Command("docker", "rm", "-f", containerName).CombinedOutput()

	if _, err := exec.Command("docker", "image", "inspect", dockerImage).CombinedOutput(); err != nil {
		t.Log("Pulling chromedp/headless-shell Docker image...")
		pullCtx, pullCancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer pullCancel()
		if output, err := exec.CommandContext(pullCtx, "docker", "pull", dockerImage).CombinedOutput(); err != nil {
			return fmt.Errorf("pull %s: %w\n%s", dockerImage, err, output)
		}
	}

	// Linux shares the host network; elsewhere Docker runs in a VM, so map the
	// port to the container's default 9222.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", containerName}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", dockerImage, fmt.Sprintf("--remote-debugging-port=%d", debugPort))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", debugPort), dockerImage)
	}
	if _, err := exec.Command("docker", args...).Output(); err != nil {
		return fmt.Errorf("failed to start Chrome Docker container: %w", err)
	}

	versionURL := fmt.Sprintf("http://localhost:%d/json/version", debugPort)
	httpClient := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for i := 0; i < 120; i++ {
		resp, err := httpClient.Get(versionURL)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}

	if output, err := exec.Command("docker", "logs", "--tail", "50", containerName).CombinedOutput(); err == nil {
		t.Logf("Chrome container logs:\n%s", output)
	}
	_, _ = exec.Command("docker", "rm", "-f", containerName).CombinedOutput()
	return fmt.Errorf("Chrome failed to start within 60 seconds: %w", lastErr)
}

// stopDockerChrome stops and removes the Chrome Docker container.
func stopDockerChrome(t *testing.T, debugPort int) {
	t.Helper()
	containerName := fmt.Sprintf("%s%d", chromeContainerPrefix, debugPort)
	if output, err := exec.Command("docker", "rm", "-f", containerName).CombinedOutput(); err != nil {
		if !strings.Contains(string(output), "No such container") {
			t.Logf("Warning: failed to remove Docker container: %v (output: %s)", err, output)
		}
	}
}

// WaitForServer polls an HTTP server until it responds or timeout is reached.
func WaitForServer(t *testing.T, serverURL string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(serverURL)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server at %s failed to become ready within %v", serverURL, timeout)
}

// ConvertURLForDockerChrome converts an httptest URL for Docker Chrome access.
// On Linux (--network host) localhost works; elsewhere the container reaches
// the host through host.docker.internal.
func ConvertURLForDockerChrome(httptestURL string) string {
	host := "host.docker.internal"
	if runtime.GOOS == "linux" {
		host = "localhost"
	}
	url := strings.Replace(httptestURL, "127.0.0.1", host, 1)
	return strings.Replace(url, "[::1]", host, 1)
}
