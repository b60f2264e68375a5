package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrSpaceOccupied = fmt.Errorf("%w: space occupied", ErrIllegalMove)
	ErrKo            = fmt.Errorf("%w: ko", ErrIllegalMove)
	ErrSuicide       = fmt.Errorf("%w: suicide", ErrIllegalMove)
	ErrOutOfBounds   = fmt.Errorf("%w: outside of board coordinates", ErrIllegalMove)

	ErrEngineDied        = errors.New("katago engine has stopped")
	ErrEngineNotStarted  = fmt.Errorf("%w: engine not started", ErrEngineDied)
	ErrMalformedResponse = errors.New("malformed engine response")
	ErrOrphanedAnalysis  = errors.New("analysis for a node that is no longer tracked")
	ErrAnalysisFailed    = errors.New("engine reported an analysis error")
	ErrUnknownStrategy   = errors.New("unknown ai strategy")

	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrGameNotFound      = errors.New("game not found")
	ErrNotYourTurn       = errors.New("not this player's turn")
)
