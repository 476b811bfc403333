// Package bridge hosts the browser side of an embedded widget.
//
// The widget can only be reached with window.postMessage, so a small shim page
// embeds it and relays messages over a websocket in both directions. Server
// implements player.MessageChannel on top of that socket and also serves the
// Prometheus metrics.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lessontrack/lessontrack/log"
	"github.com/lessontrack/lessontrack/metrics"
	"github.com/lessontrack/lessontrack/player"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

// ErrNoWidget is returned by Post while no shim page is connected.
var ErrNoWidget = errors.New("bridge: no widget connected")

// frame is what travels over the websocket. Origin is only set on frames from the page.
type frame struct {
	Origin string          `json:"origin,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	// Embed tells attached pages to switch the widget to another lesson.
	Embed string `json:"embed,omitempty"`
}

// Server relays widget messages between the shim page and the tracker.
type Server struct {
	upgrader websocket.Upgrader
	page     *template.Template
	server   *http.Server
	listener net.Listener

	// targetOrigin is the only origin commands are posted to
	targetOrigin string

	mu       sync.Mutex
	embedURL string
	conns    map[*conn]struct{}
	handlers map[int]func(player.Message)
	nextID   int
	closed   bool
}

type conn struct {
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	once    sync.Once
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

// New creates a server whose shim page embeds embedURL and posts commands to
// targetOrigin only. An empty targetOrigin falls back to the origin of the
// embedded URL.
func New(embedURL, targetOrigin string) *Server {
	s := &Server{
		targetOrigin: targetOrigin,
		embedURL:     embedURL,
		page:     template.Must(template.New("shim").Parse(shimPage)),
		conns:    make(map[*conn]struct{}),
		handlers: make(map[int]func(player.Message)),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sameHost,
	}
	return s
}

// sameHost accepts the shim page served by this server and non-browser clients.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// Handler routes the shim page, the widget socket and the metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.serveShim)
	mux.HandleFunc("GET /widget", s.serveWidget)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start listens on address and serves in the background.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("widget bridge stopped: %v", err)
		}
	}()

	log.Infof("widget bridge listening on %s", listener.Addr())
	return nil
}

// URL is the address of the shim page.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String() + "/"
}

// SetEmbed switches the widget shown by the shim page. Attached pages follow
// without a reload.
func (s *Server) SetEmbed(embedURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedURL == embedURL {
		return
	}
	s.embedURL = embedURL

	payload, err := json.Marshal(frame{Embed: embedURL})
	if err != nil {
		return
	}
	for c := range s.conns {
		select {
		case c.send <- payload:
		default:
			log.Warnf("widget bridge: send buffer full, page keeps the previous widget")
		}
	}
}

// Connected returns the number of attached shim pages.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Post sends a command to every attached widget.
func (s *Server) Post(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(frame{Data: data})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.conns) == 0 {
		return ErrNoWidget
	}

	for c := range s.conns {
		select {
		case c.send <- payload:
			metrics.WidgetMessages.WithLabelValues("out").Inc()
		default:
			log.Warnf("widget bridge: send buffer full, dropping command")
		}
	}
	return nil
}

// Subscribe registers handler for messages relayed from the page.
func (s *Server) Subscribe(handler func(player.Message)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Close stops serving and disconnects every page.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) serveShim(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	embedURL := s.embedURL
	s.mu.Unlock()

	target := s.targetOrigin
	if target == "" {
		target = originOf(embedURL)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, struct{ EmbedURL, TargetOrigin string }{embedURL, target}); err != nil {
		log.Errorf("rendering shim page: %v", err)
	}
}

// originOf returns scheme://host of raw, or "" when raw is not an absolute URL.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (s *Server) serveWidget(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("widget bridge upgrade failed: %v", err)
		return
	}

	c := &conn{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	log.Infof("widget attached from %s", r.RemoteAddr)

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	if _, ok := s.conns[c]; ok {
		delete(s.conns, c)
		c.close()
	}
	s.mu.Unlock()
}

func (s *Server) readPump(c *conn) {
	defer func() {
		s.unregister(c)
		_ = c.ws.Close()
		log.Infof("widget detached")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("widget bridge read: %v", err)
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.WidgetMessages.WithLabelValues("dropped").Inc()
			continue
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil || len(f.Data) == 0 {
			metrics.WidgetMessages.WithLabelValues("dropped").Inc()
			continue
		}

		metrics.WidgetMessages.WithLabelValues("in").Inc()
		s.dispatch(player.Message{Origin: f.Origin, Data: f.Data})
	}
}

func (s *Server) dispatch(msg player.Message) {
	s.mu.Lock()
	handlers := make([]func(player.Message), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (s *Server) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

const shimPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>lessontrack</title>
<style>html,body{margin:0;height:100%;background:#000}iframe{border:0;width:100%;height:100%}</style>
</head>
<body>
<iframe id="widget" src="{{.EmbedURL}}" allow="autoplay; encrypted-media; fullscreen" allowfullscreen></iframe>
<script>
const widget = document.getElementById("widget");
let target = {{.TargetOrigin}};
const socket = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/widget");
window.addEventListener("message", (event) => {
  if (socket.readyState !== WebSocket.OPEN) return;
  socket.send(JSON.stringify({origin: event.origin, data: event.data}));
});
socket.onmessage = (event) => {
  const frame = JSON.parse(event.data);
  if (frame.embed) {
    widget.src = frame.embed;
    if (!target) target = new URL(frame.embed).origin;
    return;
  }
  if (!target) return;
  widget.contentWindow.postMessage(JSON.stringify(frame.data), target);
};
</script>
</body>
</html>
`
