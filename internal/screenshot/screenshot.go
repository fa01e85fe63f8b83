// Package screenshot implements screen capture as a pluggable backend
// (spec §4.7, C7). Desktop capture is itself an out-of-scope external
// collaborator per spec.md §1 ("a pluggable backend producing a
// bytes+format tuple"); this package is that backend, grounded on
// original_source's screenshot.py backend chain (import → xwd+convert →
// ffmpeg → scrot → gnome-screenshot, each run as the active graphical
// session's user via runuser).
package screenshot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"time"
)

// Backend captures one screenshot at the given JPEG/PNG quality for the
// given monitor mode (spec §3 Settings's monitor_mode ∈ {all, primary}).
type Backend interface {
	Capture(ctx context.Context, quality int, monitorMode string) (data []byte, mime string, err error)
}

// ActiveSession identifies the user/display pair a backend should render
// into, mirroring original_source's get_active_graphical_session. A
// caller without session discovery wired in (e.g. tests) can construct
// one directly.
type ActiveSession struct {
	User    string
	Display string
}

// SessionLocator discovers the active graphical session to capture from.
type SessionLocator func() (ActiveSession, error)

// ExecBackend is the default Backend: a chain of external capture tools,
// each attempted in order until one succeeds (spec §4.7's "pluggable
// backend"; original_source tries import, xwd+convert, ffmpeg, scrot,
// gnome-screenshot in that order).
type ExecBackend struct {
	Locate SessionLocator
}

// NewExecBackend builds an ExecBackend using locate to find the session
// to capture from.
func NewExecBackend(locate SessionLocator) *ExecBackend {
	return &ExecBackend{Locate: locate}
}

// Capture runs the backend chain and returns the first successful
// result.
func (b *ExecBackend) Capture(ctx context.Context, quality int, monitorMode string) ([]byte, string, error) {
	sess, err := b.Locate()
	if err != nil {
		return nil, "", fmt.Errorf("locate active graphical session: %w", err)
	}

	attempts := []func(context.Context, ActiveSession, int) ([]byte, string, error){
		captureViaImport,
		captureViaXWD,
		captureViaFfmpeg,
		captureViaScrot,
		captureViaGnomeScreenshot,
	}
	var lastErr error
	for _, attempt := range attempts {
		data, mime, err := attempt(ctx, sess, quality)
		if err == nil && len(data) > 0 {
			return data, mime, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no screenshot backend produced output")
	}
	return nil, "", fmt.Errorf("all screenshot capture methods failed: %w", lastErr)
}

func runAsUser(ctx context.Context, sess ActiveSession, timeout time.Duration, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	full := append([]string{"-u", sess.User, "--"}, args...)
	cmd := exec.CommandContext(cctx, "runuser", full...)
	cmd.Env = append(cmd.Env, "DISPLAY="+sess.Display)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func convertQuality(ctx context.Context, sess ActiveSession, src []byte, srcFormat string, quality int) ([]byte, error) {
	if quality >= 100 {
		return src, nil
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "runuser", "-u", sess.User, "--", "convert",
		srcFormat+":-", "-quality", strconv.Itoa(quality), "jpg:-")
	cmd.Env = append(cmd.Env, "DISPLAY="+sess.Display)
	cmd.Stdin = bytes.NewReader(src)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil || out.Len() == 0 {
		return src, nil // fall back to the unconverted image rather than failing the capture
	}
	return out.Bytes(), nil
}

func captureViaImport(ctx context.Context, sess ActiveSession, quality int) ([]byte, string, error) {
	raw, err := runAsUser(ctx, sess, 15*time.Second, "import", "-window", "root", "png:-")
	if err != nil {
		return nil, "", err
	}
	data, err := convertQuality(ctx, sess, raw, "png", quality)
	return data, "image/jpeg", err
}

func captureViaXWD(ctx context.Context, sess ActiveSession, quality int) ([]byte, string, error) {
	raw, err := runAsUser(ctx, sess, 15*time.Second, "xwd", "-root", "-silent")
	if err != nil {
		return nil, "", err
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "runuser", "-u", sess.User, "--", "convert", "xwd:-", "png:-")
	cmd.Env = append(cmd.Env, "DISPLAY="+sess.Display)
	cmd.Stdin = bytes.NewReader(raw)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, "", err
	}
	return out.Bytes(), "image/png", nil
}

func captureViaFfmpeg(ctx context.Context, sess ActiveSession, quality int) ([]byte, string, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, "", err
	}
	qScale := strconv.Itoa(maxInt(1, 31-quality/3))
	raw, err := runAsUser(ctx, sess, 15*time.Second, "ffmpeg", "-f", "x11grab", "-video_size", "1920x1080",
		"-i", sess.Display, "-vframes", "1", "-q:v", qScale, "-f", "image2pipe", "-c:v", "mjpeg", "-")
	return raw, "image/jpeg", err
}

func captureViaScrot(ctx context.Context, sess ActiveSession, quality int) ([]byte, string, error) {
	if _, err := exec.LookPath("scrot"); err != nil {
		return nil, "", err
	}
	raw, err := runAsUser(ctx, sess, 10*time.Second, "scrot", "-o", "-")
	if err != nil {
		return nil, "", err
	}
	data, err := convertQuality(ctx, sess, raw, "png", quality)
	return data, "image/jpeg", err
}

func captureViaGnomeScreenshot(ctx context.Context, sess ActiveSession, quality int) ([]byte, string, error) {
	raw, err := runAsUser(ctx, sess, 10*time.Second, "gnome-screenshot", "-f", "-", "--include-pointer")
	if err != nil {
		return nil, "", err
	}
	data, err := convertQuality(ctx, sess, raw, "png", quality)
	return data, "image/jpeg", err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// LookupCurrentUser is a minimal SessionLocator for a headless/no-X setup:
// it reports the process's own user with $DISPLAY (or ":0" as a default),
// good enough for environments where the agent itself runs in the
// graphical session rather than as a system service watching for one.
func LookupCurrentUser() (ActiveSession, error) {
	u, err := user.Current()
	if err != nil {
		return ActiveSession{}, fmt.Errorf("lookup current user: %w", err)
	}
	display := os.Getenv("DISPLAY")
	if display == "" {
		display = ":0"
	}
	return ActiveSession{User: u.Username, Display: display}, nil
}
