package sgf

import (
	"reflect"
	"testing"
)

func TestPropertiesKeepInsertionOrder(t *testing.T) {
	var p Properties
	p.Set("SZ", "19")
	p.Set("KM", "6.5")
	p.Add("AB", "dd")
	p.Add("AB", "pp")
	p.Set("SZ", "9")

	if got, want := p.Keys(), []string{"SZ", "KM", "AB"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if got := p.Get("AB"); !reflect.DeepEqual(got, []string{"dd", "pp"}) {
		t.Fatalf("AB = %v", got)
	}
	if v, _ := p.First("SZ"); v != "9" {
		t.Fatalf("SZ = %s", v)
	}

	p.Delete("KM")
	if p.Has("KM") || p.Len() != 2 {
		t.Fatalf("delete failed: %v", p.Keys())
	}

	c := p.Clone()
	c.Add("AB", "qq")
	if len(p.Get("AB")) != 2 {
		t.Fatalf("clone shares storage with the original")
	}
}
