package ai

import (
	"math"
	"math/rand"
	"testing"

	"katrain/internal/domain/game"
)

func TestWeightedSelectionNeverFabricates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	items := []Item{{Value: 0.3, Weight: 1, Move: game.NewMove(game.Black, 3, 3)}}

	got := WeightedSelectionWithoutReplacement(items, 5, rng)
	if len(got) != 1 || got[0].Move != items[0].Move {
		t.Fatalf("expected the single item back, got %v", got)
	}
	if got := WeightedSelectionWithoutReplacement(nil, 5, rng); len(got) != 0 {
		t.Fatalf("expected nothing from nothing, got %v", got)
	}
	if got := WeightedSelectionWithoutReplacement(items, 0, rng); len(got) != 0 {
		t.Fatalf("k=0 should select nothing, got %v", got)
	}
}

func TestWeightedSelectionSkipsNonPositiveWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	items := []Item{
		{Weight: 0, Move: game.NewMove(game.Black, 0, 0)},
		{Weight: -1, Move: game.NewMove(game.Black, 1, 0)},
		{Weight: math.NaN(), Move: game.NewMove(game.Black, 2, 0)},
		{Weight: 2, Move: game.NewMove(game.Black, 3, 0)},
	}
	for i := 0; i < 100; i++ {
		got := WeightedSelectionWithoutReplacement(items, 4, rng)
		if len(got) != 1 || got[0].Move.Coords.X != 3 {
			t.Fatalf("only the positive weight may be drawn, got %v", got)
		}
	}
}

func TestWeightedSelectionIsWithoutReplacement(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var items []Item
	for x := 0; x < 10; x++ {
		items = append(items, Item{Weight: float64(x + 1), Move: game.NewMove(game.White, x, 0)})
	}
	got := WeightedSelectionWithoutReplacement(items, 6, rng)
	if len(got) != 6 {
		t.Fatalf("expected 6 items, got %d", len(got))
	}
	seen := make(map[int]bool)
	for _, it := range got {
		if seen[it.Move.Coords.X] {
			t.Fatalf("item %d drawn twice", it.Move.Coords.X)
		}
		seen[it.Move.Coords.X] = true
	}
}

func TestWeightedSelectionFrequencies(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	weights := []float64{1, 2, 7}
	items := make([]Item, len(weights))
	for i, w := range weights {
		items[i] = Item{Weight: w, Move: game.NewMove(game.Black, i, 0)}
	}

	const trials = 20000
	counts := make([]int, len(weights))
	for i := 0; i < trials; i++ {
		got := WeightedSelectionWithoutReplacement(items, 1, rng)
		counts[got[0].Move.Coords.X]++
	}
	for i, w := range weights {
		share := float64(counts[i]) / trials
		if want := w / 10; math.Abs(share-want) > 0.02 {
			t.Errorf("item %d drawn %.3f of the time, want about %.3f", i, share, want)
		}
	}
}
