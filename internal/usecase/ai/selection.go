package ai

import (
	"container/heap"
	"math"
	"math/rand"

	"katrain/internal/domain/game"
)

// Item is one weighted choice. Value rides along for the caller, usually the
// raw policy or the points lost of the move.
type Item struct {
	Value  float64
	Weight float64
	Move   game.Move
}

type keyedItem struct {
	key  float64
	item Item
}

type keyHeap []keyedItem

func (h keyHeap) Len() int           { return len(h) }
func (h keyHeap) Less(i, j int) bool { return h[i].key < h[j].key }
func (h keyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *keyHeap) Push(x any) {
	*h = append(*h, x.(keyedItem))
}

func (h *keyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// WeightedSelectionWithoutReplacement draws up to k distinct items, each draw
// proportional to weight. Every item gets the key ln(U)/weight and the k
// largest keys win. Items with a non-positive weight are never drawn, so the
// result may be shorter than k. The first item is the strongest draw.
func WeightedSelectionWithoutReplacement(items []Item, k int, rng *rand.Rand) []Item {
	if k <= 0 {
		return nil
	}
	h := make(keyHeap, 0, k)
	for _, it := range items {
		if !(it.Weight > 0) {
			continue
		}
		key := math.Log(uniform(rng)) / it.Weight
		if h.Len() < k {
			heap.Push(&h, keyedItem{key: key, item: it})
			continue
		}
		if key > h[0].key {
			h[0] = keyedItem{key: key, item: it}
			heap.Fix(&h, 0)
		}
	}
	out := make([]Item, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(keyedItem).item
	}
	return out
}

// uniform draws from (0, 1] so the log stays finite.
func uniform(rng *rand.Rand) float64 {
	return 1 - rng.Float64()
}
