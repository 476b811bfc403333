package player

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lessontrack/lessontrack/constant"
	"github.com/lessontrack/lessontrack/log"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// observed lists the mpv properties the element translates into native events.
var observed = []string{"time-pos", "duration", "pause", "eof-reached"}

// MPV is a MediaElement backed by an mpv process driven over JSON-IPC.
type MPV struct {
	path  string
	title string

	socketPath string

	// mu serializes IPC commands
	mu sync.Mutex

	// stateMu guards everything below
	stateMu   sync.Mutex
	cmd       *exec.Cmd
	exited    chan struct{}
	conn      net.Conn
	listening chan struct{}
	handlers  map[int]func(NativeEvent)
	nextID    int
	closed    bool
	observer  mpvObserver
}

// NewMPV creates an element running the mpv binary at path. Nothing starts until Load.
func NewMPV(path, title string) *MPV {
	if path == "" {
		path = "mpv"
	}
	return &MPV{
		path:       path,
		title:      sanitizeTitle(title),
		socketPath: filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s.sock", constant.App, rand.Text()[:8])),
		handlers:   make(map[int]func(NativeEvent)),
	}
}

// Subscribe registers handler for native events.
func (m *MPV) Subscribe(handler func(NativeEvent)) func() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	id := m.nextID
	m.nextID++
	m.handlers[id] = handler

	return func() {
		m.stateMu.Lock()
		defer m.stateMu.Unlock()
		delete(m.handlers, id)
	}
}

// Load plays rawURL. The first call starts mpv, later calls replace the file in
// the running instance. It returns ErrClosed once Close was called.
func (m *MPV) Load(ctx context.Context, rawURL string) error {
	safeURL, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		return ErrClosed
	}
	running := m.runningLocked()
	if running {
		m.observer = mpvObserver{}
	}
	m.stateMu.Unlock()

	if running {
		_, err := m.sendCommand(ctx, "loadfile", safeURL, "replace")
		return err
	}

	return m.start(ctx, safeURL)
}

// start launches mpv. The process, its exit channel and the listener connection
// are only published under stateMu, and a Close that won the race gets them
// torn down here instead.
func (m *MPV) start(ctx context.Context, safeURL string) error {
	// only socket, title and URL: the user's mpv.conf decides the rest
	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		"--force-window=yes",
		"--idle=yes",
	}
	if m.title != "" {
		args = append(args, fmt.Sprintf("--force-media-title=%s", m.title))
	}
	args = append(args, "--", safeURL)

	cmd := exec.Command(m.path, args...)
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		_ = killProcess(cmd)
		return ErrClosed
	}
	m.cmd = cmd
	m.exited = exited
	m.stateMu.Unlock()

	if err := m.waitForSocket(ctx, exited); err != nil {
		select {
		case <-exited:
		default:
			log.Warnf("killing mpv: socket never became ready")
			_ = killProcess(cmd)
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	return m.listen(cmd)
}

func (m *MPV) waitForSocket(ctx context.Context, exited <-chan struct{}) error {
	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return errors.New("mpv exited before socket was ready")
		case <-time.After(socketWaitDelay):
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// listen opens the persistent connection. mpv only delivers property changes on
// the connection that registered the observers, so they are sent here too.
func (m *MPV) listen(cmd *exec.Cmd) error {
	conn, err := net.Dial("unix", m.socketPath)
	if err != nil {
		return fmt.Errorf("event listener connect: %w", err)
	}

	for i, name := range observed {
		payload, err := json.Marshal(ipcCommand{Command: []any{"observe_property", i + 1, name}})
		if err != nil {
			conn.Close()
			return err
		}
		if _, err := conn.Write(append(payload, '\n')); err != nil {
			conn.Close()
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	listening := make(chan struct{})

	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		conn.Close()
		_ = killProcess(cmd)
		return ErrClosed
	}
	m.conn = conn
	m.listening = listening
	m.stateMu.Unlock()

	go m.readLoop(conn, listening)

	log.Infof("mpv event listener started on %s (observing: %s)", m.socketPath, strings.Join(observed, ", "))
	return nil
}

// readLoop runs until the connection closes, either through Close or because mpv exited.
func (m *MPV) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg ipcMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil || msg.Event == "" {
			continue
		}

		m.stateMu.Lock()
		events := m.observer.translate(msg)
		m.stateMu.Unlock()

		for _, ev := range events {
			m.dispatch(ev)
		}
	}

	m.stateMu.Lock()
	closed := m.closed
	m.stateMu.Unlock()

	// a player window closed by the user looks like a pause to the tracker
	if !closed {
		log.Infof("mpv connection closed, treating as paused")
		m.dispatch(NativeEvent{Type: NativePause})
	}
}

func (m *MPV) dispatch(ev NativeEvent) {
	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		return
	}
	handlers := make([]func(NativeEvent), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.stateMu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// IsRunning reports whether the mpv process is alive.
func (m *MPV) IsRunning() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.runningLocked()
}

func (m *MPV) runningLocked() bool {
	if m.exited == nil {
		return false
	}
	select {
	case <-m.exited:
		return false
	default:
		return true
	}
}

// Close shuts down the mpv process and cleans up its socket. Loads after Close
// fail with ErrClosed.
func (m *MPV) Close() error {
	m.stateMu.Lock()
	if m.closed {
		m.stateMu.Unlock()
		return nil
	}
	m.closed = true
	cmd, exited, conn, listening := m.cmd, m.exited, m.conn, m.listening
	m.stateMu.Unlock()

	if exited != nil {
		select {
		case <-exited:
		default:
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, _ = m.sendCommand(ctx, "quit")
			cancel()

			select {
			case <-exited:
			case <-time.After(3 * time.Second):
				_ = killProcess(cmd)
			}
		}
	}

	if conn != nil {
		conn.Close()
		<-listening
	}

	_ = os.Remove(m.socketPath)
	return nil
}

// mpvObserver folds mpv notifications into native events.
type mpvObserver struct {
	duration float64
	ended    bool
}

func (o *mpvObserver) translate(msg ipcMessage) []NativeEvent {
	switch msg.Event {
	case "property-change":
		switch msg.Name {
		case "time-pos":
			pos, ok := msg.Data.(float64)
			if !ok {
				return nil
			}
			return []NativeEvent{{Type: NativeTimeUpdate, CurrentTime: pos, Duration: o.duration}}
		case "duration":
			d, ok := msg.Data.(float64)
			if !ok || d <= 0 {
				return nil
			}
			o.duration = d
			return []NativeEvent{{Type: NativeLoadedMetadata, Duration: d}}
		case "pause":
			paused, ok := msg.Data.(bool)
			if !ok {
				return nil
			}
			if paused {
				return []NativeEvent{{Type: NativePause}}
			}
			return []NativeEvent{{Type: NativePlay}}
		case "eof-reached":
			if eof, _ := msg.Data.(bool); eof {
				return o.end()
			}
		}
	case "end-file":
		switch msg.Reason {
		case "error":
			reason := msg.FileError
			if reason == "" {
				reason = "mpv could not play the file"
			}
			return []NativeEvent{{Type: NativeError, Err: reason}}
		case "eof":
			return o.end()
		}
	}
	return nil
}

func (o *mpvObserver) end() []NativeEvent {
	if o.ended {
		return nil
	}
	o.ended = true
	return []NativeEvent{{Type: NativeEnded}}
}

// sanitizeMediaTarget validates that a URL is safe to pass to mpv.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", errors.New("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", errors.New("invalid control characters in URL")
	}

	if strings.HasPrefix(l, "-") {
		return "", errors.New("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}

func sanitizeTitle(title string) string {
	t := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ", "\x00", "").Replace(title)
	return strings.TrimSpace(t)
}
