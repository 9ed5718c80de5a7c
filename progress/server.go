package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 10 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512

	shutdownGracePeriod = 5 * time.Second
)

// Server serves the progress page, the latest snapshot and a websocket
// stream of snapshots. Any number of clients may connect.
type Server struct {
	Hub    *Hub
	Logger *log.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	s := &Server{Hub: hub, Logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/", s.serveIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/snapshot", s.serveSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.serveWebsocket).Methods(http.MethodGet)
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled. Websocket
// clients are disconnected on cancellation too.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:     s.router,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.Logger.Printf("Serving progress on http://%s", listener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (s *Server) serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) serveSnapshot(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.Hub.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.Logger.Printf("snapshot: %v", err)
	}
}

// serveWebsocket streams snapshots to one client until it disconnects or
// the server shuts down.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	// Subscribe before upgrading so nothing published after the handshake is missed.
	updates, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Printf("upgrade: %v", err)
		return
	}
	c := &client{conn: conn}
	if err := c.sync(r.Context(), updates); err != nil {
		s.Logger.Printf("websocket client %s: %v", conn.RemoteAddr(), err)
	}
}

// client serialises writes to one websocket; reads happen on a single goroutine.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// sync runs the read, ping and publish loops until one of them ends, then
// closes the connection. A client closing normally is not an error.
func (c *client) sync(ctx context.Context, updates <-chan Snapshot) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.readMessages()
	})
	group.Go(func() error {
		return c.pingPong(groupCtx)
	})
	group.Go(func() error {
		return c.publish(groupCtx, updates)
	})
	group.Go(func() error {
		// ReadMessage ignores contexts; closing the connection unblocks it.
		<-groupCtx.Done()
		c.close()
		return nil
	})

	err := group.Wait()
	if isClosure(err) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// readMessages discards client messages; it exists to process control
// frames and to notice the client going away.
func (c *client) readMessages() error {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *client) pingPong(ctx context.Context) error {
	for range channerics.NewTicker(ctx.Done(), pingPeriod) {
		err := c.write(func(conn *websocket.Conn) error {
			return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
	}
	return nil
}

func (c *client) publish(ctx context.Context, updates <-chan Snapshot) error {
	for snapshot := range channerics.OrDone(ctx.Done(), updates) {
		err := c.write(func(conn *websocket.Conn) error {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			return conn.WriteJSON(snapshot)
		})
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
	}
	return nil
}

func (c *client) write(fn func(*websocket.Conn) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn(c.conn)
}

func (c *client) close() {
	_ = c.write(func(conn *websocket.Conn) error {
		return conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
	})
	_ = c.conn.Close()
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>neat-racing</title></head>
<body>
<h1>neat-racing</h1>
<pre id="log"></pre>
<script>
const log = document.getElementById("log");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (e) => {
	const s = JSON.parse(e.data);
	log.textContent = "generation " + s.generation +
		"  best " + s.best_fitness.toFixed(2) +
		"  mean " + s.mean_fitness.toFixed(2) +
		"  species " + s.species +
		(s.solved ? "  solved" : "") + "\n" + log.textContent;
};
</script>
</body>
</html>
`
