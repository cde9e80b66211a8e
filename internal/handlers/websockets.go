package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/models"
	"grid_adequacy/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	geojson "github.com/paulmach/go.geojson"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB, client frames are small commands
	outBuffer  = 64
)

// Server -> client message types.
const (
	msgHello        = "hello"
	msgState        = "state"
	msgError        = "error"
	msgMapCreate    = "map.create"
	msgMapSourceAdd = "map.source.add"
	msgMapLayerAdd  = "map.layer.add"
	msgMapSetData   = "map.source.set_data"
	msgMapRemove    = "map.remove"
)

// Client -> server message types.
const (
	cmdToggle   = "toggle"
	cmdScrub    = "scrub"
	cmdRetry    = "retry"
	cmdMapReady = "map.ready"
)

var (
	errSocketClosed   = errors.New("websocket closed")
	errUnknownCommand = errors.New("unknown command")
	errMissingIndex   = errors.New("scrub requires an index")
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type wsCommand struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`
}

type sourcePayload struct {
	Name string                     `json:"name"`
	Data *geojson.FeatureCollection `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict to the configured dashboard origin
}

// wsRenderer drives the browser-side map through the socket. Frames are
// queued for the connection's single writer.
type wsRenderer struct {
	out    chan wsEnvelope
	state  chan models.Snapshot
	closed chan struct{}
	once   sync.Once
}

func newWSRenderer() *wsRenderer {
	return &wsRenderer{
		out:    make(chan wsEnvelope, outBuffer),
		state:  make(chan models.Snapshot, 1),
		closed: make(chan struct{}),
	}
}

var _ mapsurface.Renderer = (*wsRenderer)(nil)

func (r *wsRenderer) Create(opts mapsurface.MapOptions) error {
	return r.send(wsEnvelope{Type: msgMapCreate, Data: opts})
}

func (r *wsRenderer) AddSource(name string, data *geojson.FeatureCollection) error {
	return r.send(wsEnvelope{Type: msgMapSourceAdd, Data: sourcePayload{Name: name, Data: data}})
}

func (r *wsRenderer) AddLayer(layer mapsurface.Layer) error {
	return r.send(wsEnvelope{Type: msgMapLayerAdd, Data: layer})
}

func (r *wsRenderer) SetSourceData(name string, data *geojson.FeatureCollection) error {
	return r.send(wsEnvelope{Type: msgMapSetData, Data: sourcePayload{Name: name, Data: data}})
}

// Remove is a no-op once the socket is gone: the browser map went with it.
func (r *wsRenderer) Remove() error {
	if err := r.send(wsEnvelope{Type: msgMapRemove}); err != nil && !errors.Is(err, errSocketClosed) {
		return err
	}
	return nil
}

func (r *wsRenderer) send(env wsEnvelope) error {
	select {
	case <-r.closed:
		return errSocketClosed
	default:
	}
	select {
	case r.out <- env:
		return nil
	case <-r.closed:
		return errSocketClosed
	}
}

// publish keeps only the newest snapshot pending. It is called from the
// session goroutine only.
func (r *wsRenderer) publish(s models.Snapshot) {
	select {
	case r.state <- s:
		return
	default:
	}
	select {
	case <-r.state:
	default:
	}
	select {
	case r.state <- s:
	default:
	}
}

func (r *wsRenderer) close() {
	r.once.Do(func() { close(r.closed) })
}

func (h *Handler) wsConnect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	r := newWSRenderer()
	defer r.close()

	sess, err := h.services.Sessions.Open(ctx, r, r.publish)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_session_open_failed", "err", err)
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(wsEnvelope{Type: msgError, Error: "could not start session"})
		return
	}
	defer func() {
		sess.Close()
		r.close()
		<-sess.Done()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(wsEnvelope{Type: msgHello, Data: gin.H{"session_id": sess.ID()}}); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	done := make(chan struct{})
	go h.startReader(ctx, conn, sess, r, done)
	h.writeLoop(conn, sess, r, done)
}

// writeLoop is the only writer on conn.
func (h *Handler) writeLoop(conn *websocket.Conn, sess service.Session, r *wsRenderer, readerDone <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(env wsEnvelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(env); err != nil {
			if h.log != nil {
				h.log.Infow("ws_write_failed", "type", env.Type, "err", err)
			}
			return false
		}
		return true
	}

	for {
		select {
		case <-readerDone:
			return
		case <-sess.Done():
			// deliver the teardown frames queued by the session
			for {
				select {
				case env := <-r.out:
					if !write(env) {
						return
					}
				default:
					return
				}
			}
		case env := <-r.out:
			if !write(env) {
				return
			}
		case s := <-r.state:
			if !write(wsEnvelope{Type: msgState, Data: s}) {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		}
	}
}

// startReader turns client frames into session intents until the socket closes.
func (h *Handler) startReader(ctx context.Context, conn *websocket.Conn, sess service.Session, r *wsRenderer, done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "session", sess.ID(), "err", err)
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			_ = r.send(wsEnvelope{Type: msgError, Error: "malformed command"})
			continue
		}
		if err := h.dispatch(ctx, sess, cmd); err != nil {
			if errors.Is(err, service.ErrEngineClosed) {
				return
			}
			_ = r.send(wsEnvelope{Type: msgError, Data: gin.H{"command": cmd.Type}, Error: err.Error()})
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, sess service.Session, cmd wsCommand) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd.Type {
	case cmdToggle:
		return sess.TogglePlay(ctx)
	case cmdScrub:
		if cmd.Index == nil {
			return errMissingIndex
		}
		return sess.Scrub(ctx, *cmd.Index)
	case cmdRetry:
		return sess.Retry(ctx)
	case cmdMapReady:
		return sess.SurfaceReady(ctx)
	default:
		return errUnknownCommand
	}
}
