package annotation

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
)

func TestNewAnnotationTranslatesBox(t *testing.T) {
	region := geometry.MustRegion(100, 200, 300, 50)
	tok := Token{Surface: "日本", Box: geometry.Rect{X: 0, Y: 0, Width: 20, Height: 10}}

	a := NewAnnotation(tok, region, 0.9)

	want := geometry.Rect{X: 100, Y: 200, Width: 20, Height: 10}
	if a.Box != want {
		t.Errorf("box = %v, want %v", a.Box, want)
	}
	if tok.Box.X != 0 {
		t.Error("source token must not be modified")
	}
}

func TestFormatGloss(t *testing.T) {
	e := DictionaryEntry{Senses: []string{"Japan", "Japanese"}}
	if got := e.FormatGloss(); got != "Japan; Japanese" {
		t.Errorf("FormatGloss = %q", got)
	}
}

func TestSetJSONShape(t *testing.T) {
	gloss := "Japan"
	set := &Set{
		CycleID:   4,
		SessionID: "s",
		Region:    geometry.MustRegion(0, 0, 10, 10),
		Annotations: []Annotation{{
			Token: Token{Surface: "日本", Reading: "にほん", Gloss: &gloss},
		}},
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["cycleId"] != float64(4) {
		t.Errorf("cycleId = %v", raw["cycleId"])
	}
	anns := raw["annotations"].([]interface{})
	first := anns[0].(map[string]interface{})
	if first["surface"] != "日本" || first["gloss"] != "Japan" {
		t.Errorf("embedded token fields not flattened: %v", first)
	}
}

func TestSlotPublishIfNewer(t *testing.T) {
	slot := NewSlot(Empty("s"))

	if !slot.PublishIfNewer(&Set{CycleID: 2}) {
		t.Fatal("cycle 2 should replace the empty set")
	}
	if slot.PublishIfNewer(&Set{CycleID: 1}) {
		t.Error("older cycle must be discarded")
	}
	if slot.PublishIfNewer(&Set{CycleID: 2}) {
		t.Error("equal cycle must be discarded")
	}
	if slot.Load().CycleID != 2 {
		t.Errorf("current = %d", slot.Load().CycleID)
	}

	slot.Reset(Empty("s"))
	if slot.Load().CycleID != 0 {
		t.Error("Reset should install the empty set")
	}
}

func TestSlotConcurrentPublishKeepsMaximum(t *testing.T) {
	slot := NewSlot(Empty("s"))
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			slot.PublishIfNewer(&Set{CycleID: id})
		}(uint64(i))
	}
	wg.Wait()
	if slot.Load().CycleID != 50 {
		t.Errorf("current = %d, want 50", slot.Load().CycleID)
	}
}

func TestSetSame(t *testing.T) {
	a := &Set{CycleID: 3, SessionID: "x"}
	if !a.Same(&Set{CycleID: 3, SessionID: "x"}) {
		t.Error("same cycle and session should match")
	}
	if a.Same(&Set{CycleID: 3, SessionID: "y"}) {
		t.Error("different session should not match")
	}
	var nilSet *Set
	if nilSet.Len() != 0 {
		t.Error("nil set has no annotations")
	}
}
