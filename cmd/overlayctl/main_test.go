package main

import (
	"encoding/json"
	"testing"

	"github.com/adverant/nexus/furigana-worker/internal/queue"
)

func TestBuildTask(t *testing.T) {
	tests := []struct {
		args     []string
		wantType string
		wantErr  bool
	}{
		{[]string{"start"}, queue.TypeStart, false},
		{[]string{"trigger"}, queue.TypeForceTrigger, false},
		{[]string{"region", "1", "2", "30", "40"}, queue.TypeRegion, false},
		{[]string{"interval", "2000"}, queue.TypeInterval, false},
		{[]string{"region", "1", "2"}, "", true},
		{[]string{"interval", "0"}, "", true},
		{[]string{"interval", "x"}, "", true},
		{[]string{"reboot"}, "", true},
		{nil, "", true},
	}
	for _, tc := range tests {
		task, err := buildTask(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Errorf("buildTask(%v) accepted", tc.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("buildTask(%v): %v", tc.args, err)
			continue
		}
		if task.Type() != tc.wantType {
			t.Errorf("buildTask(%v) type = %s", tc.args, task.Type())
		}
	}
}

func TestBuildRegionPayload(t *testing.T) {
	task, err := buildTask([]string{"region", "1", "2", "30", "40"})
	if err != nil {
		t.Fatal(err)
	}
	var p queue.RegionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatal(err)
	}
	if p != (queue.RegionPayload{X: 1, Y: 2, Width: 30, Height: 40}) {
		t.Errorf("payload = %+v", p)
	}
}
