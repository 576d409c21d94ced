// internal/httpserver/ws.go
//
// WebSocket stream for one session.
//
// Server → client messages:
//   {"type":"snapshot","game":{...}}                      on connect and on request
//   {"type":"phase","from","to","gameNumber","game":{...}} on every phase change
//   {"type":"countdown","remaining":n}                    once per second while revealing
//   {"type":"marks","marks":[...]}                        after a toggle
//   {"type":"error","error":"..."}                        when a command is rejected
//
// Client → server commands:
//   {"type":"toggle","index":n} | {"type":"submit"} | {"type":"start"} |
//   {"type":"reveal"} | {"type":"snapshot"}
//
// One goroutine reads commands, one writes; only the writer touches the
// connection for output. Pongs count as session activity, and the socket is
// closed with 1001 (going away) once the session is deleted or evicted.

package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/robalobadob/colormemory/internal/game"
	"github.com/robalobadob/colormemory/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Default ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

type snapshotMsg struct {
	Type string        `json:"type"`
	Game game.Snapshot `json:"game"`
}

type phaseMsg struct {
	Type       string        `json:"type"`
	From       game.Phase    `json:"from"`
	To         game.Phase    `json:"to"`
	GameNumber int           `json:"gameNumber"`
	Game       game.Snapshot `json:"game"`
}

type countdownMsg struct {
	Type      string `json:"type"`
	Remaining int    `json:"remaining"`
}

type marksMsg struct {
	Type  string `json:"type"`
	Marks []int  `json:"marks"`
}

type errorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// wsCommand is one client request.
type wsCommand struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// handleWS upgrades the connection and streams the session until either
// side closes it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session", sess.ID).Msg("websocket upgrade")
		return
	}

	c := &wsClient{
		conn:      conn,
		countdown: s.countdownEvery,
		ping:      s.pingEvery,
		sess:      sess,
		send:      make(chan any, 32),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		log:       s.log.With().Str("session", sess.ID).Logger(),
	}
	c.run()
}

// checkOrigin accepts same-origin tools, the configured client and, outside
// production, anything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.cfg.ClientOrigin || !s.cfg.Production
}

// wsClient is one live connection bound to a session.
type wsClient struct {
	conn      *websocket.Conn
	sess      *store.Session
	send      chan any
	countdown time.Duration
	ping      time.Duration
	log       zerolog.Logger

	done    chan struct{} // closed when the read loop ends
	stopped chan struct{} // closed when the write loop ends
}

func (c *wsClient) run() {
	eng := c.sess.Engine
	unsubscribe := eng.OnPhaseChange(func(ch game.PhaseChange) {
		c.push(phaseMsg{
			Type:       "phase",
			From:       ch.From,
			To:         ch.To,
			GameNumber: ch.GameNumber,
			Game:       present(ch.Game),
		})
	})
	defer unsubscribe()

	go c.writeLoop()
	c.log.Debug().Msg("websocket connected")

	c.push(snapshotMsg{Type: "snapshot", Game: present(eng.Snapshot())})
	c.readLoop()

	close(c.done)
	<-c.stopped
	c.log.Debug().Msg("websocket closed")
}

// push queues msg for the writer, giving up once the writer has exited.
func (c *wsClient) push(msg any) {
	select {
	case c.send <- msg:
	case <-c.stopped:
	}
}

func (c *wsClient) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.sess.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("abnormal websocket close")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.push(errorMsg{Type: "error", Error: "malformed command"})
			continue
		}
		c.sess.Touch()
		if err := c.execute(cmd); err != nil {
			c.push(errorMsg{Type: "error", Error: err.Error()})
		}
	}
}

// execute applies one command. Phase changes it causes are reported by the
// phase listener, so only toggles and snapshots reply directly.
func (c *wsClient) execute(cmd wsCommand) error {
	eng := c.sess.Engine
	switch cmd.Type {
	case "toggle":
		if err := eng.Toggle(cmd.Index); err != nil {
			return err
		}
		c.push(marksMsg{Type: "marks", Marks: eng.Marks()})
	case "submit":
		_, err := eng.Submit()
		return err
	case "start":
		_, err := eng.Start()
		return err
	case "reveal":
		return eng.Reveal()
	case "snapshot":
		c.push(snapshotMsg{Type: "snapshot", Game: present(eng.Snapshot())})
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return nil
}

func (c *wsClient) writeLoop() {
	ping := time.NewTicker(c.ping)
	countdown := time.NewTicker(c.countdown)
	defer func() {
		ping.Stop()
		countdown.Stop()
		close(c.stopped)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write")
				return
			}
		case <-countdown.C:
			if c.sess.Engine.Phase() != game.PhaseRevealing {
				continue
			}
			msg := countdownMsg{Type: "countdown", Remaining: c.sess.Engine.RemainingRevealSeconds()}
			if err := c.write(msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.sess.Engine.Done():
			c.log.Debug().Msg("session closed under websocket")
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			return
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsClient) write(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
