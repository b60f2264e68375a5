package domain

import "encoding/json"

// AnalysisRequest is one line sent to `katago analysis`.
type AnalysisRequest struct {
	ID                      string         `json:"id"`
	Rules                   string         `json:"rules"`
	Priority                int            `json:"priority"`
	AnalyzeTurns            []int          `json:"analyzeTurns"`
	MaxVisits               int            `json:"maxVisits,omitempty"`
	Komi                    float64        `json:"komi"`
	BoardXSize              int            `json:"boardXSize"`
	BoardYSize              int            `json:"boardYSize"`
	IncludeOwnership        bool           `json:"includeOwnership"`
	IncludeMovesOwnership   bool           `json:"includeMovesOwnership,omitempty"`
	IncludePolicy           bool           `json:"includePolicy"`
	InitialStones           [][2]string    `json:"initialStones,omitempty"`
	InitialPlayer           string         `json:"initialPlayer,omitempty"`
	Moves                   [][2]string    `json:"moves"` // [["B","D4"], ["W","Q16"], ...]
	ReportDuringSearchEvery float64        `json:"reportDuringSearchEvery,omitempty"`
	AvoidMoves              []AvoidMoves   `json:"avoidMoves,omitempty"`
	OverrideSettings        map[string]any `json:"overrideSettings,omitempty"`
}

type AvoidMoves struct {
	Moves      []string `json:"moves"`
	Player     string   `json:"player"`
	UntilDepth int      `json:"untilDepth"`
}

// TerminateRequest asks the engine to stop a query early.
type TerminateRequest struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	TerminateID string `json:"terminateId"`
}

// AnalysisResponse is one line received from the engine.
// Exactly one of Error, Warning or the analysis payload is normally set.
type AnalysisResponse struct {
	ID             string     `json:"id"`
	TurnNumber     int        `json:"turnNumber"`
	IsDuringSearch bool       `json:"isDuringSearch"`
	NoResults      bool       `json:"noResults"`
	Error          string     `json:"error,omitempty"`
	Field          string     `json:"field,omitempty"`
	Warning        string     `json:"warning,omitempty"`
	Action         string     `json:"action,omitempty"`
	TerminateID    string     `json:"terminateId,omitempty"`
	RootInfo       *RootInfo  `json:"rootInfo,omitempty"`
	MoveInfos      []MoveInfo `json:"moveInfos,omitempty"`
	Ownership      []float64  `json:"ownership,omitempty"`
	Policy         []float64  `json:"policy,omitempty"`
}

type (
	ResultCallback func(resp *AnalysisResponse, partial bool)
	ErrorCallback  func(resp *AnalysisResponse)
)

type fieldSet uint32

// RootInfo is the engine's evaluation of the analysed position itself.
type RootInfo struct {
	CurrentPlayer string  `json:"currentPlayer"`
	Winrate       float64 `json:"winrate"`
	ScoreLead     float64 `json:"scoreLead"`
	ScoreSelfplay float64 `json:"scoreSelfplay"`
	ScoreStdev    float64 `json:"scoreStdev"`
	Utility       float64 `json:"utility"`
	Visits        int     `json:"visits"`

	present fieldSet
}

const (
	rootCurrentPlayer fieldSet = 1 << iota
	rootWinrate
	rootScoreLead
	rootScoreSelfplay
	rootScoreStdev
	rootUtility
	rootVisits

	allRootFields = rootVisits<<1 - 1
)

var rootKeys = map[string]fieldSet{
	"currentPlayer": rootCurrentPlayer,
	"winrate":       rootWinrate,
	"scoreLead":     rootScoreLead,
	"scoreSelfplay": rootScoreSelfplay,
	"scoreStdev":    rootScoreStdev,
	"utility":       rootUtility,
	"visits":        rootVisits,
}

func (r *RootInfo) UnmarshalJSON(data []byte) error {
	type plain RootInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	present, err := presentKeys(data, rootKeys)
	if err != nil {
		return err
	}
	*r = RootInfo(p)
	r.present = present
	return nil
}

// fields treats a value built in code (no decode record) as fully specified.
func (r *RootInfo) fields() fieldSet {
	if r.present == 0 {
		return allRootFields
	}
	return r.present
}

// Merge applies an update: replace when it has at least as many visits, else fill only absent keys.
func (r *RootInfo) Merge(update *RootInfo) {
	mask := update.fields()
	if update.Visits < r.Visits {
		mask &^= r.fields()
	}
	src := *update
	if mask&rootCurrentPlayer != 0 {
		r.CurrentPlayer = src.CurrentPlayer
	}
	if mask&rootWinrate != 0 {
		r.Winrate = src.Winrate
	}
	if mask&rootScoreLead != 0 {
		r.ScoreLead = src.ScoreLead
	}
	if mask&rootScoreSelfplay != 0 {
		r.ScoreSelfplay = src.ScoreSelfplay
	}
	if mask&rootScoreStdev != 0 {
		r.ScoreStdev = src.ScoreStdev
	}
	if mask&rootUtility != 0 {
		r.Utility = src.Utility
	}
	if mask&rootVisits != 0 {
		r.Visits = src.Visits
	}
	r.present = r.fields() | mask
}

// MoveInfo is the engine's evaluation of one candidate move.
type MoveInfo struct {
	Move       string   `json:"move"`
	Order      int      `json:"order"`
	Visits     int      `json:"visits"`
	Winrate    float64  `json:"winrate"`
	ScoreLead  float64  `json:"scoreLead"`
	ScoreMean  float64  `json:"scoreMean"`
	ScoreStdev float64  `json:"scoreStdev"`
	Prior      float64  `json:"prior"`
	Utility    float64  `json:"utility"`
	LCB        float64  `json:"lcb"`
	PV         []string `json:"pv"`

	present fieldSet
}

const (
	moveMove fieldSet = 1 << iota
	moveOrder
	moveVisits
	moveWinrate
	moveScoreLead
	moveScoreMean
	moveScoreStdev
	movePrior
	moveUtility
	moveLCB
	movePV

	allMoveFields = movePV<<1 - 1
)

var moveKeys = map[string]fieldSet{
	"move":       moveMove,
	"order":      moveOrder,
	"visits":     moveVisits,
	"winrate":    moveWinrate,
	"scoreLead":  moveScoreLead,
	"scoreMean":  moveScoreMean,
	"scoreStdev": moveScoreStdev,
	"prior":      movePrior,
	"utility":    moveUtility,
	"lcb":        moveLCB,
	"pv":         movePV,
}

func (m *MoveInfo) UnmarshalJSON(data []byte) error {
	type plain MoveInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	present, err := presentKeys(data, moveKeys)
	if err != nil {
		return err
	}
	*m = MoveInfo(p)
	m.present = present
	return nil
}

func (m *MoveInfo) fields() fieldSet {
	if m.present == 0 {
		return allMoveFields
	}
	return m.present
}

// HasOrder reports whether the engine ranked this move itself.
func (m *MoveInfo) HasOrder() bool {
	return m.fields()&moveOrder != 0
}

// Merge applies an update with the same monotonic rule as RootInfo.Merge.
func (m *MoveInfo) Merge(update *MoveInfo) {
	mask := update.fields()
	if update.Visits < m.Visits {
		mask &^= m.fields()
	}
	src := *update
	if mask&moveMove != 0 {
		m.Move = src.Move
	}
	if mask&moveOrder != 0 {
		m.Order = src.Order
	}
	if mask&moveVisits != 0 {
		m.Visits = src.Visits
	}
	if mask&moveWinrate != 0 {
		m.Winrate = src.Winrate
	}
	if mask&moveScoreLead != 0 {
		m.ScoreLead = src.ScoreLead
	}
	if mask&moveScoreMean != 0 {
		m.ScoreMean = src.ScoreMean
	}
	if mask&moveScoreStdev != 0 {
		m.ScoreStdev = src.ScoreStdev
	}
	if mask&movePrior != 0 {
		m.Prior = src.Prior
	}
	if mask&moveUtility != 0 {
		m.Utility = src.Utility
	}
	if mask&moveLCB != 0 {
		m.LCB = src.LCB
	}
	if mask&movePV != 0 {
		m.PV = append([]string(nil), src.PV...)
	}
	m.present = m.fields() | mask
}

// MoveInfoFromRoot turns a root evaluation of the position after move into
// that move's candidate entry; order is left unset.
func MoveInfoFromRoot(move string, root *RootInfo, pv []string) MoveInfo {
	info := MoveInfo{
		Move:       move,
		Visits:     root.Visits,
		Winrate:    root.Winrate,
		ScoreLead:  root.ScoreLead,
		ScoreStdev: root.ScoreStdev,
		Utility:    root.Utility,
		PV:         pv,
	}
	info.present = moveMove | movePV
	rf := root.fields()
	if rf&rootVisits != 0 {
		info.present |= moveVisits
	}
	if rf&rootWinrate != 0 {
		info.present |= moveWinrate
	}
	if rf&rootScoreLead != 0 {
		info.present |= moveScoreLead
	}
	if rf&rootScoreStdev != 0 {
		info.present |= moveScoreStdev
	}
	if rf&rootUtility != 0 {
		info.present |= moveUtility
	}
	return info
}

func presentKeys(data []byte, keys map[string]fieldSet) (fieldSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, err
	}
	var present fieldSet
	for k := range raw {
		present |= keys[k]
	}
	return present, nil
}
