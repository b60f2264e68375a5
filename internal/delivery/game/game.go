package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"katrain/internal/bootstrap"
	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/httpresponse"
	"katrain/internal/movetree"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
	"katrain/internal/utils"
)

type GameHandler struct {
	cfg        bootstrap.Config
	log        *zap.SugaredLogger
	manager    *gameUseCase.Manager
	aiConfig   ai.Config
	genTimeout time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewGameHandler(cfg bootstrap.Config, log *zap.SugaredLogger, manager *gameUseCase.Manager, aiConfig ai.Config) *GameHandler {
	return &GameHandler{
		cfg:        cfg,
		log:        log,
		manager:    manager,
		aiConfig:   aiConfig,
		genTimeout: 2*time.Duration(cfg.MaxTime*float64(time.Second)) + 10*time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *GameHandler) Router(r chi.Router) {
	r.Post("/games", h.HandleNewGame)
	r.Get("/games/{id}", h.HandleGetGame)
	r.Post("/games/{id}/play", h.HandlePlay)
	r.Post("/games/{id}/undo", h.HandleUndo)
	r.Post("/games/{id}/redo", h.HandleRedo)
	r.Post("/games/{id}/genmove", h.HandleGenMove)
	r.Get("/games/{id}/sgf", h.HandleGetSGF)
	r.Post("/games/{id}/archive", h.HandleArchive)
	r.Get("/games/{id}/ws", h.HandleAnalysisStream)
}

func (h *GameHandler) HandleNewGame(w http.ResponseWriter, r *http.Request) {
	var req game.CreateGameRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Warnw("bad new game request", "error", err)
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err)
		return
	}
	if req.BoardSize < 0 || req.BoardSize > 25 {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, fmt.Errorf("board size %d is not supported", req.BoardSize))
		return
	}

	id, _ := h.manager.Create(r.Context(), req)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, game.GameCreateResponse{GameID: id})
}

func (h *GameHandler) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	id, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stateOf(id, g, ""))
}

func (h *GameHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	id, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var dto game.MoveDTO
	if err := utils.DecodeJSONRequest(r, &dto); err != nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err)
		return
	}
	if err := h.play(r.Context(), id, g, dto); err != nil {
		h.writeError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stateOf(id, g, ""))
}

// play applies a client move; the color defaults to the player to move.
func (h *GameHandler) play(ctx context.Context, id string, g *gameUseCase.Game, dto game.MoveDTO) error {
	player := g.NextPlayer()
	if dto.Color != "" {
		c, err := game.ParseColor(dto.Color)
		if err != nil {
			return fmt.Errorf("%w: %v", ownErrors.ErrInvalidCoordinate, err)
		}
		if c != player {
			return fmt.Errorf("%w: %s to move", ownErrors.ErrNotYourTurn, player)
		}
	}
	move, err := game.FromGTP(dto.Coordinates, player)
	if err != nil {
		return err
	}
	if _, err := g.Play(move, false); err != nil {
		return err
	}
	h.manager.Snapshot(ctx, id)
	return nil
}

func (h *GameHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	h.handleStep(w, r, (*gameUseCase.Game).Undo)
}

func (h *GameHandler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	h.handleStep(w, r, (*gameUseCase.Game).Redo)
}

func (h *GameHandler) handleStep(w http.ResponseWriter, r *http.Request, step func(*gameUseCase.Game, int) *movetree.Node) {
	id, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req := game.UndoRequest{Times: 1}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err)
		return
	}
	step(g, req.Times)
	h.manager.Snapshot(r.Context(), id)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stateOf(id, g, ""))
}

func (h *GameHandler) HandleGenMove(w http.ResponseWriter, r *http.Request) {
	id, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	req := game.GenMoveRequest{Strategy: ai.ModeDefault}
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteErrorWithStatus(w, http.StatusBadRequest, err)
		return
	}
	strategy := ai.FromConfig(req.Strategy, h.aiConfig, h.log)

	ctx, cancel := context.WithTimeout(r.Context(), h.genTimeout)
	defer cancel()
	_, thoughts, err := ai.GenerateMove(ctx, g, strategy, h.newRand(), h.log.With("game", id))
	if err != nil {
		h.log.Errorw("failed to generate move", "game", id, "mode", strategy.Mode(), "error", err)
		h.writeError(w, err)
		return
	}
	h.manager.Snapshot(r.Context(), id)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stateOf(id, g, thoughts))
}

func (h *GameHandler) HandleGetSGF(w http.ResponseWriter, r *http.Request) {
	_, g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpresponse.WriteText(w, http.StatusOK, "application/x-go-sgf", gameUseCase.SerializeSGF(g.Tree()))
}

func (h *GameHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.manager.Archive(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, record)
}

func (h *GameHandler) lookup(w http.ResponseWriter, r *http.Request) (string, *gameUseCase.Game, bool) {
	id := chi.URLParam(r, "id")
	g, err := h.manager.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return id, nil, false
	}
	return id, g, true
}

// newRand gives each generated move its own source; rand.Rand is not safe for concurrent use.
func (h *GameHandler) newRand() *rand.Rand {
	h.rngMu.Lock()
	defer h.rngMu.Unlock()
	return rand.New(rand.NewSource(h.rng.Int63()))
}

func (h *GameHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ownErrors.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ownErrors.ErrIllegalMove),
		errors.Is(err, ownErrors.ErrInvalidCoordinate),
		errors.Is(err, ownErrors.ErrNotYourTurn):
		status = http.StatusBadRequest
	case errors.Is(err, ownErrors.ErrEngineDied):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		h.log.Error(err)
	}
	httpresponse.WriteErrorWithStatus(w, status, err)
}
