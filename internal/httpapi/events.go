package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"vigil/internal/engine"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// local tool, editors connect from arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub fans events out to websocket clients. broadcast runs on the analysis
// goroutines and never blocks: a client whose buffer is full loses the event.
type hub struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	clients map[uuid.UUID]chan Event
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{log: log, clients: make(map[uuid.UUID]chan Event)}
}

func (h *hub) join() (uuid.UUID, <-chan Event) {
	id := uuid.New()
	ch := make(chan Event, clientBuffer)
	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *hub) leave(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		delete(h.clients, id)
		close(ch)
	}
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.log.WithField("client", id).Warn("http: events client is slow, dropping event")
		}
	}
}

// handleEvents streams diagnostics and analysis progress to a websocket
// client until either side goes away.
func (s *Server) handleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("http: websocket upgrade failed")
		return
	}
	defer ws.Close()

	id, events := s.hub.join()
	defer s.hub.leave(id)
	log := s.log.WithField("client", id)
	log.Debug("http: events client connected")

	// reader only notices the close frame
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			log.Debug("http: events client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("http: events write failed")
				return
			}
		}
	}
}

func diagnosticsEvent(msg engine.DiagnosticMessage) Event {
	ev := Event{Type: "diagnostics", Project: msg.ProjectName}
	for _, f := range msg.Files {
		ef := EventFile{File: f.Path, Diagnostics: make([]QuickFix, 0, len(f.Diagnostics))}
		for _, d := range f.Diagnostics {
			ef.Diagnostics = append(ef.Diagnostics, quickFix(msg.ProjectName, d))
		}
		ev.Files = append(ev.Files, ef)
	}
	return ev
}

func progressEvent(ev engine.ProgressEvent) Event {
	return Event{
		Type:        "progress",
		Project:     ev.Name,
		Status:      string(ev.Status),
		Diagnostics: ev.Diagnostics,
		ElapsedMs:   ev.Elapsed.Milliseconds(),
	}
}
