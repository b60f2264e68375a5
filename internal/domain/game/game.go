package game

import "time"

// @name Move
type MoveDTO struct {
	Color       string `json:"color"`
	Coordinates string `json:"coordinates"`
}

// @name CreateGameRequest
type CreateGameRequest struct {
	BoardSize int     `json:"board_size"`
	Komi      float64 `json:"komi"`
	Rules     string  `json:"rules"`
}

// @name GameCreateResponse
type GameCreateResponse struct {
	GameID string `json:"game_id"`
}

// @name UndoRequest
type UndoRequest struct {
	Times int `json:"times"`
}

// @name GenMoveRequest
type GenMoveRequest struct {
	Strategy string `json:"strategy"`
}

// @name Candidate
type Candidate struct {
	Move       string   `json:"move"`
	ScoreLead  float64  `json:"score_lead"`
	Winrate    float64  `json:"winrate"`
	Visits     int      `json:"visits"`
	PointsLost float64  `json:"points_lost"`
	PV         []string `json:"pv,omitempty"`
}

// @name GameStateResponse
type GameStateResponse struct {
	GameID     string         `json:"game_id"`
	MoveNumber int            `json:"move_number"`
	NextPlayer string         `json:"next_player"`
	LastMove   *MoveDTO       `json:"last_move,omitempty"`
	Stones     []MoveDTO      `json:"stones"`
	Prisoners  map[string]int `json:"prisoners"`
	Score      *float64       `json:"score,omitempty"`
	Winrate    *float64       `json:"winrate,omitempty"`
	PointsLost *float64       `json:"points_lost,omitempty"`
	Candidates []Candidate    `json:"candidates,omitempty"`
	Thoughts   string         `json:"thoughts,omitempty"`
	Analyzed   bool           `json:"analysis_completed"`
}

// @name GameRecord
type GameRecord struct {
	ID         string    `json:"game_id" bson:"_id"`
	SGF        string    `json:"sgf" bson:"sgf"`
	BoardSize  int       `json:"board_size" bson:"board_size"`
	Komi       float64   `json:"komi" bson:"komi"`
	Rules      string    `json:"rules" bson:"rules"`
	MoveNumber int       `json:"move_number" bson:"move_number"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	ArchivedAt time.Time `json:"archived_at" bson:"archived_at"`
}
