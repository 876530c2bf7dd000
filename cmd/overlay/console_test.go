package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/overlay"
	"github.com/adverant/nexus/furigana-worker/internal/pipeline"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
)

type fakeController struct {
	calls    []string
	region   geometry.Region
	interval time.Duration
	engine   string
	trigger  bool
}

func (f *fakeController) Start() error { f.calls = append(f.calls, "start"); return nil }
func (f *fakeController) Stop() error  { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeController) ForceTrigger() (bool, error) {
	f.calls = append(f.calls, "trigger")
	return f.trigger, nil
}
func (f *fakeController) SelectRegion(r geometry.Region) error {
	f.calls = append(f.calls, "region")
	f.region = r
	return nil
}
func (f *fakeController) SetInterval(d time.Duration) error {
	f.calls = append(f.calls, "interval")
	f.interval = d
	return nil
}
func (f *fakeController) SetRecognizer(src recognition.Source) error {
	f.calls = append(f.calls, "engine")
	f.engine = src.Name()
	return nil
}
func (f *fakeController) Current() *annotation.Set { return annotation.Empty("s") }
func (f *fakeController) State() pipeline.State    { return pipeline.Running }
func (f *fakeController) Quit() error              { f.calls = append(f.calls, "quit"); return nil }

type namedSource string

func (n namedSource) Recognize(ctx context.Context, img image.Image) ([]recognition.RawSpan, error) {
	return nil, nil
}
func (n namedSource) Name() string { return string(n) }

func newTestConsole(t *testing.T) (*console, *fakeController, *bytes.Buffer) {
	t.Helper()
	snap, err := overlay.NewSnapshotter("", 0)
	if err != nil {
		t.Fatal(err)
	}
	ctl := &fakeController{}
	out := &bytes.Buffer{}
	return &console{
		ctl:   ctl,
		layer: overlay.NewLayer("s", 1),
		snap:  snap,
		engines: func(name string) (recognition.Source, error) {
			if name != "paddle" {
				return nil, errors.New("unknown engine")
			}
			return namedSource(name), nil
		},
		out: out,
	}, ctl, out
}

func TestConsoleCommands(t *testing.T) {
	c, ctl, out := newTestConsole(t)

	for _, line := range []string{"start", "region 10 20 300 80", "interval 750", "engine paddle", "  ", "trigger", "stop"} {
		if err := c.exec(line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}

	if got := strings.Join(ctl.calls, ","); got != "start,region,interval,engine,trigger,stop" {
		t.Errorf("calls = %s", got)
	}
	if ctl.region.Rect() != (geometry.Rect{X: 10, Y: 20, Width: 300, Height: 80}) {
		t.Errorf("region = %v", ctl.region)
	}
	if ctl.interval != 750*time.Millisecond || ctl.engine != "paddle" {
		t.Errorf("interval = %v, engine = %q", ctl.interval, ctl.engine)
	}
	if !strings.Contains(out.String(), "trigger ignored") {
		t.Errorf("dropped trigger not reported: %q", out.String())
	}
}

func TestConsoleRejectsBadInput(t *testing.T) {
	c, ctl, _ := newTestConsole(t)

	for _, line := range []string{"region 1 2 3", "region 0 0 0 5", "interval soon", "engine easyocr", "dance"} {
		if err := c.exec(line); err == nil {
			t.Errorf("%q accepted", line)
		}
	}
	if len(ctl.calls) != 0 {
		t.Errorf("controller called: %v", ctl.calls)
	}
}

func TestConsoleSnapshotAndHover(t *testing.T) {
	c, _, out := newTestConsole(t)
	c.layer.Render(&annotation.Set{CycleID: 1, SessionID: "s", Annotations: []annotation.Annotation{
		{Token: annotation.Token{Surface: "日本語", Reading: "にほんご", Box: geometry.Rect{X: 0, Y: 0, Width: 30, Height: 10}}},
	}})

	path := filepath.Join(t.TempDir(), "snap.png")
	if err := c.exec("snapshot " + path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot missing: %v", err)
	}

	if err := c.exec("hover 5 5"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "日本語 (にほんご)") {
		t.Errorf("hover output = %q", out.String())
	}
}

func TestConsoleRunStopsOnQuit(t *testing.T) {
	c, ctl, out := newTestConsole(t)

	in := strings.NewReader("status\nbogus\nquit\nstart\n")
	if err := c.run(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(ctl.calls, ","); got != "quit" {
		t.Errorf("calls = %s, commands after quit must not run", got)
	}
	if !strings.Contains(out.String(), "state=running") || !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output = %q", out.String())
	}
}

func TestConsoleRunEndsWithContext(t *testing.T) {
	c, _, _ := newTestConsole(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.run(ctx, strings.NewReader("")) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
