package game

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"katrain/internal/domain/game"
	"katrain/internal/httpresponse"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamPoll picks up moves made through other connections.
const streamPoll = time.Second

// HandleAnalysisStream pushes the game state whenever the analysis of the
// current node changes or the game moves on. Clients may send moves as
// {"color": "B", "coordinates": "D4"}; a rejected move is answered with an
// error message and the stream goes on.
func (h *GameHandler) HandleAnalysisStream(w http.ResponseWriter, r *http.Request) {
	id, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("websocket upgrade failed", "game", id, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	incoming := make(chan game.MoveDTO)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var dto game.MoveDTO
			if err := conn.ReadJSON(&dto); err != nil {
				h.log.Debugw("websocket closed", "game", id, "error", err)
				return
			}
			select {
			case incoming <- dto:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPoll)
	defer ticker.Stop()

	lastNode, lastVisits := -1, -1
	for {
		node := g.Current()
		updated := node.Updated()
		if visits := node.Visits(); int(node.ID()) != lastNode || visits != lastVisits {
			if err := conn.WriteJSON(stateOf(id, g, "")); err != nil {
				h.log.Debugw("websocket write failed", "game", id, "error", err)
				return
			}
			lastNode, lastVisits = int(node.ID()), visits
		}

		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case <-updated:
		case <-ticker.C:
		case dto := <-incoming:
			if err := h.play(ctx, id, g, dto); err != nil {
				msg := httpresponse.ErrorResponse{ErrorDescription: err.Error()}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}
}
