package ai

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	ownErrors "katrain/internal/errors"
)

const (
	ModeDefault   = "ai:default"
	ModeJigo      = "ai:jigo"
	ModeScoreLoss = "ai:scoreloss"
	ModePolicy    = "ai:policy"
	ModeWeighted  = "ai:p:weighted"
	ModePick      = "ai:p:pick"
	ModeLocal     = "ai:p:local"
	ModeTenuki    = "ai:p:tenuki"
	ModeInfluence = "ai:p:influence"
	ModeTerritory = "ai:p:territory"
	ModeRank      = "ai:p:rank"
)

// Strategy is one of the settings structs below; the set is closed.
type Strategy interface {
	Mode() string
	strategy()
}

// Default plays the engine's top candidate.
type Default struct{}

// Jigo aims for a final margin of TargetScore.
type Jigo struct {
	TargetScore float64 `yaml:"target_score"`
}

// ScoreLoss samples candidates with weight exp(-Strength*pointsLost).
type ScoreLoss struct {
	Strength float64 `yaml:"strength"`
}

// Policy plays the top policy move once the opening is over.
type Policy struct {
	OpeningMoves int `yaml:"opening_moves"`
}

type Weighted struct {
	PickOverride float64 `yaml:"pick_override"`
	WeakenFac    float64 `yaml:"weaken_fac"`
	LowerBound   float64 `yaml:"lower_bound"`
}

type Pick struct {
	PickOverride float64 `yaml:"pick_override"`
	PickN        int     `yaml:"pick_n"`
	PickFrac     float64 `yaml:"pick_frac"`
}

type Local struct {
	PickOverride float64 `yaml:"pick_override"`
	Stddev       float64 `yaml:"stddev"`
	PickN        int     `yaml:"pick_n"`
	PickFrac     float64 `yaml:"pick_frac"`
	Endgame      float64 `yaml:"endgame"`
}

type Tenuki struct {
	PickOverride float64 `yaml:"pick_override"`
	Stddev       float64 `yaml:"stddev"`
	PickN        int     `yaml:"pick_n"`
	PickFrac     float64 `yaml:"pick_frac"`
	Endgame      float64 `yaml:"endgame"`
}

type Influence struct {
	PickOverride float64 `yaml:"pick_override"`
	PickN        int     `yaml:"pick_n"`
	PickFrac     float64 `yaml:"pick_frac"`
	LineWeight   float64 `yaml:"line_weight"`
	Threshold    float64 `yaml:"threshold"`
	Endgame      float64 `yaml:"endgame"`
}

type Territory struct {
	PickOverride float64 `yaml:"pick_override"`
	PickN        int     `yaml:"pick_n"`
	PickFrac     float64 `yaml:"pick_frac"`
	LineWeight   float64 `yaml:"line_weight"`
	Threshold    float64 `yaml:"threshold"`
	Endgame      float64 `yaml:"endgame"`
}

// Rank imitates a player of the given kyu rank by calibrated random picks.
type Rank struct {
	KyuRank float64 `yaml:"kyu_rank"`
}

func (Default) Mode() string   { return ModeDefault }
func (Jigo) Mode() string      { return ModeJigo }
func (ScoreLoss) Mode() string { return ModeScoreLoss }
func (Policy) Mode() string    { return ModePolicy }
func (Weighted) Mode() string  { return ModeWeighted }
func (Pick) Mode() string      { return ModePick }
func (Local) Mode() string     { return ModeLocal }
func (Tenuki) Mode() string    { return ModeTenuki }
func (Influence) Mode() string { return ModeInfluence }
func (Territory) Mode() string { return ModeTerritory }
func (Rank) Mode() string      { return ModeRank }

func (Default) strategy()   {}
func (Jigo) strategy()      {}
func (ScoreLoss) strategy() {}
func (Policy) strategy()    {}
func (Weighted) strategy()  {}
func (Pick) strategy()      {}
func (Local) strategy()     {}
func (Tenuki) strategy()    {}
func (Influence) strategy() {}
func (Territory) strategy() {}
func (Rank) strategy()      {}

// Config holds the settings of every strategy, keyed in YAML by the short mode name.
type Config struct {
	Default   Default   `yaml:"default"`
	Jigo      Jigo      `yaml:"jigo"`
	ScoreLoss ScoreLoss `yaml:"scoreloss"`
	Policy    Policy    `yaml:"policy"`
	Weighted  Weighted  `yaml:"weighted"`
	Pick      Pick      `yaml:"pick"`
	Local     Local     `yaml:"local"`
	Tenuki    Tenuki    `yaml:"tenuki"`
	Influence Influence `yaml:"influence"`
	Territory Territory `yaml:"territory"`
	Rank      Rank      `yaml:"rank"`
}

func DefaultConfig() Config {
	return Config{
		Jigo:      Jigo{TargetScore: 0.5},
		ScoreLoss: ScoreLoss{Strength: 0.2},
		Policy:    Policy{OpeningMoves: 22},
		Weighted:  Weighted{PickOverride: 1.0, WeakenFac: 1.25, LowerBound: 0.001},
		Pick:      Pick{PickOverride: 0.95, PickN: 5, PickFrac: 0.35},
		Local:     Local{PickOverride: 0.95, Stddev: 1.5, PickN: 15, PickFrac: 0, Endgame: 0.5},
		Tenuki:    Tenuki{PickOverride: 0.85, Stddev: 7.5, PickN: 5, PickFrac: 0.4, Endgame: 0.45},
		Influence: Influence{PickOverride: 0.95, PickN: 5, PickFrac: 0.3, LineWeight: 10, Threshold: 3.5, Endgame: 0.4},
		Territory: Territory{PickOverride: 0.95, PickN: 5, PickFrac: 0.3, LineWeight: 2, Threshold: 3.5, Endgame: 0.4},
		Rank:      Rank{KyuRank: 4},
	}
}

// LoadConfig overlays the YAML file at path on the defaults. An empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read ai config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse ai config %s: %w", path, err)
	}
	return cfg, nil
}

// NormalizeMode accepts "ai:p:pick", "ai:pick" or "pick".
func NormalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	name := strings.TrimPrefix(strings.TrimPrefix(mode, "ai:"), "p:")
	switch name {
	case "default", "jigo", "scoreloss", "policy":
		return "ai:" + name
	case "weighted", "pick", "local", "tenuki", "influence", "territory", "rank":
		return "ai:p:" + name
	}
	return mode
}

// FromConfig picks the strategy for mode. An unknown mode is not an error:
// it is logged and the default strategy is used.
func FromConfig(mode string, cfg Config, log *zap.SugaredLogger) Strategy {
	switch NormalizeMode(mode) {
	case ModeDefault:
		return cfg.Default
	case ModeJigo:
		return cfg.Jigo
	case ModeScoreLoss:
		return cfg.ScoreLoss
	case ModePolicy:
		return cfg.Policy
	case ModeWeighted:
		return cfg.Weighted
	case ModePick:
		return cfg.Pick
	case ModeLocal:
		return cfg.Local
	case ModeTenuki:
		return cfg.Tenuki
	case ModeInfluence:
		return cfg.Influence
	case ModeTerritory:
		return cfg.Territory
	case ModeRank:
		return cfg.Rank
	}
	log.Warnw("falling back to default strategy", "mode", mode, "error", ownErrors.ErrUnknownStrategy)
	return Default{}
}

// Modes lists every known mode.
func Modes() []string {
	return []string{
		ModeDefault, ModeJigo, ModeScoreLoss, ModePolicy, ModeWeighted, ModePick,
		ModeLocal, ModeTenuki, ModeInfluence, ModeTerritory, ModeRank,
	}
}
