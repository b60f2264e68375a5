package game

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"katrain/internal/bootstrap"
	"katrain/internal/domain"
	"katrain/internal/domain/game"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

var script = []string{"D4", "E5", "C3", "F6", "G3", "C7"}

// instantEngine answers every query before SendQuery returns.
type instantEngine struct{}

func (instantEngine) SendQuery(req domain.AnalysisRequest, onResult domain.ResultCallback, _ domain.ErrorCallback, _ bool) string {
	move := script[len(req.Moves)%len(script)]
	onResult(&domain.AnalysisResponse{
		ID:        req.ID,
		RootInfo:  &domain.RootInfo{ScoreLead: 0.5, Winrate: 0.52, Visits: 10},
		MoveInfos: []domain.MoveInfo{{Move: move, Order: 0, Visits: 10, ScoreLead: 0.5}},
	}, false)
	return "instant"
}

func (instantEngine) OnNewGame()            {}
func (instantEngine) IsIdle() bool          { return true }
func (instantEngine) Dead() <-chan struct{} { return nil }
func (instantEngine) Err() error            { return nil }

type envelope struct {
	Status int             `json:"Status"`
	Body   json.RawMessage `json:"Body"`
}

func newTestRouter(t *testing.T, log *zap.SugaredLogger) http.Handler {
	t.Helper()
	engines := map[game.Color]gameUseCase.AnalysisEngine{game.Black: instantEngine{}, game.White: instantEngine{}}
	settings := gameUseCase.Settings{MaxVisits: 10, BoardSize: 19, Komi: 6.5, Rules: "japanese"}
	manager := gameUseCase.NewManager(engines, nil, settings, log)

	r := chi.NewRouter()
	NewGameHandler(bootstrap.Config{MaxTime: 1}, log, manager, ai.DefaultConfig()).Router(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad envelope %q: %v", method, path, rec.Body.String(), err)
	}
	if env.Status != rec.Code {
		t.Fatalf("envelope status %d differs from http status %d", env.Status, rec.Code)
	}
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(env.Body, out); err != nil {
			t.Fatalf("%s %s: bad body %s: %v", method, path, env.Body, err)
		}
	}
	return rec.Code
}

func createGame(t *testing.T, h http.Handler) string {
	t.Helper()
	var created game.GameCreateResponse
	if code := do(t, h, http.MethodPost, "/games", `{"board_size": 9}`, &created); code != http.StatusOK {
		t.Fatalf("create: status %d", code)
	}
	if created.GameID == "" {
		t.Fatalf("no game id")
	}
	return created.GameID
}

func TestPlayAndUndo(t *testing.T) {
	h := newTestRouter(t, zaptest.NewLogger(t).Sugar())
	id := createGame(t, h)

	var state game.GameStateResponse
	if code := do(t, h, http.MethodPost, "/games/"+id+"/play", `{"color":"B","coordinates":"D4"}`, &state); code != http.StatusOK {
		t.Fatalf("play: status %d", code)
	}
	if state.MoveNumber != 1 || state.NextPlayer != "W" || state.LastMove == nil || state.LastMove.Coordinates != "D4" {
		t.Fatalf("unexpected state %+v", state)
	}
	if !state.Analyzed || state.Score == nil || len(state.Stones) != 1 {
		t.Fatalf("analysis missing from state %+v", state)
	}

	if code := do(t, h, http.MethodPost, "/games/"+id+"/play", `{"coordinates":"D4"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("occupied point: status %d", code)
	}
	if code := do(t, h, http.MethodPost, "/games/"+id+"/play", `{"color":"B","coordinates":"E5"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("wrong color: status %d", code)
	}
	if code := do(t, h, http.MethodPost, "/games/"+id+"/play", `{"coordinates":"Z99"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("bad coordinate: status %d", code)
	}

	if code := do(t, h, http.MethodPost, "/games/"+id+"/undo", ``, &state); code != http.StatusOK || state.MoveNumber != 0 {
		t.Fatalf("undo: status %d, move %d", code, state.MoveNumber)
	}
	if code := do(t, h, http.MethodPost, "/games/"+id+"/redo", `{"times": 3}`, &state); code != http.StatusOK || state.MoveNumber != 1 {
		t.Fatalf("redo: status %d, move %d", code, state.MoveNumber)
	}
}

func TestGenMove(t *testing.T) {
	h := newTestRouter(t, zaptest.NewLogger(t).Sugar())
	id := createGame(t, h)

	var state game.GameStateResponse
	if code := do(t, h, http.MethodPost, "/games/"+id+"/genmove", `{"strategy":"ai:jigo"}`, &state); code != http.StatusOK {
		t.Fatalf("genmove: status %d", code)
	}
	if state.MoveNumber != 1 || state.LastMove.Coordinates != "D4" || state.Thoughts == "" {
		t.Fatalf("unexpected state %+v", state)
	}
	if code := do(t, h, http.MethodPost, "/games/"+id+"/genmove", `{"strategy":"no-such-mode"}`, &state); code != http.StatusOK {
		t.Fatalf("unknown strategy should fall back, status %d", code)
	}
	if state.MoveNumber != 2 || state.LastMove.Coordinates != "E5" {
		t.Fatalf("unexpected second move %+v", state.LastMove)
	}
}

func TestSGFAndArchive(t *testing.T) {
	h := newTestRouter(t, zaptest.NewLogger(t).Sugar())
	id := createGame(t, h)
	do(t, h, http.MethodPost, "/games/"+id+"/play", `{"coordinates":"C3"}`, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games/"+id+"/sgf", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), ";B[cg]") {
		t.Fatalf("sgf: %d %s", rec.Code, rec.Body.String())
	}

	var record game.GameRecord
	if code := do(t, h, http.MethodPost, "/games/"+id+"/archive", ``, &record); code != http.StatusOK {
		t.Fatalf("archive: status %d", code)
	}
	if record.ID != id || record.MoveNumber != 1 || record.BoardSize != 9 {
		t.Fatalf("unexpected record %+v", record)
	}
	if code := do(t, h, http.MethodGet, "/games/"+id, ``, nil); code != http.StatusNotFound {
		t.Fatalf("archived game without a store should be gone, status %d", code)
	}
}

func TestUnknownGame(t *testing.T) {
	h := newTestRouter(t, zaptest.NewLogger(t).Sugar())
	if code := do(t, h, http.MethodGet, "/games/missing", ``, nil); code != http.StatusNotFound {
		t.Fatalf("status %d", code)
	}
	if code := do(t, h, http.MethodPost, "/games", `{"board_size": 40}`, nil); code != http.StatusBadRequest {
		t.Fatalf("oversized board: status %d", code)
	}
	if code := do(t, h, http.MethodPost, "/games", `{"unknown": 1}`, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", code)
	}
}

func TestAnalysisStream(t *testing.T) {
	// the handler outlives the test by a moment after the client hangs up
	srv := httptest.NewServer(newTestRouter(t, zap.NewNop().Sugar()))
	defer srv.Close()
	id := createGame(t, srv.Config.Handler)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/games/%s/ws", id)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var state game.GameStateResponse
	if err := conn.ReadJSON(&state); err != nil {
		t.Fatalf("first state: %v", err)
	}
	if state.GameID != id || state.MoveNumber != 0 {
		t.Fatalf("unexpected first state %+v", state)
	}

	if err := conn.WriteJSON(game.MoveDTO{Color: "B", Coordinates: "E5"}); err != nil {
		t.Fatal(err)
	}
	for state.MoveNumber != 1 {
		state = game.GameStateResponse{}
		if err := conn.ReadJSON(&state); err != nil {
			t.Fatalf("waiting for move: %v", err)
		}
	}
	if state.LastMove == nil || state.LastMove.Coordinates != "E5" {
		t.Fatalf("unexpected state %+v", state)
	}
}
