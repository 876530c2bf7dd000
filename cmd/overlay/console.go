package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/overlay"
	"github.com/adverant/nexus/furigana-worker/internal/pipeline"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
)

// controller is the pipeline as seen by the console
type controller interface {
	Start() error
	Stop() error
	ForceTrigger() (bool, error)
	SelectRegion(region geometry.Region) error
	SetInterval(d time.Duration) error
	SetRecognizer(src recognition.Source) error
	Current() *annotation.Set
	State() pipeline.State
	Quit() error
}

var errQuit = errors.New("quit")

// console drives the pipeline from a line protocol:
//
//	start | stop | trigger | region X Y W H | interval MS
//	engine NAME | snapshot PATH | hover X Y | status | quit
type console struct {
	ctl     controller
	layer   *overlay.Layer
	snap    *overlay.Snapshotter
	engines func(name string) (recognition.Source, error)
	out     io.Writer
}

func (c *console) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "start":
		return c.ctl.Start()
	case "stop":
		return c.ctl.Stop()
	case "trigger":
		ok, err := c.ctl.ForceTrigger()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.out, "trigger ignored")
		}
		return nil
	case "region":
		n, err := ints(args, 4)
		if err != nil {
			return fmt.Errorf("usage: region X Y W H: %w", err)
		}
		region, err := geometry.NewRegion(n[0], n[1], n[2], n[3])
		if err != nil {
			return err
		}
		return c.ctl.SelectRegion(region)
	case "interval":
		n, err := ints(args, 1)
		if err != nil {
			return fmt.Errorf("usage: interval MS: %w", err)
		}
		return c.ctl.SetInterval(time.Duration(n[0]) * time.Millisecond)
	case "engine":
		if len(args) != 1 {
			return fmt.Errorf("usage: engine NAME")
		}
		src, err := c.engines(args[0])
		if err != nil {
			return err
		}
		return c.ctl.SetRecognizer(src)
	case "snapshot":
		if len(args) != 1 {
			return fmt.Errorf("usage: snapshot PATH")
		}
		if err := c.snap.Save(args[0], c.layer.Current()); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "snapshot written to %s\n", args[0])
		return nil
	case "hover":
		n, err := ints(args, 2)
		if err != nil {
			return fmt.Errorf("usage: hover X Y: %w", err)
		}
		if popup := c.layer.Hover(geometry.Point{X: n[0], Y: n[1]}); popup != nil {
			fmt.Fprintln(c.out, popup.String())
		} else {
			fmt.Fprintln(c.out, "nothing here")
		}
		return nil
	case "status":
		set := c.ctl.Current()
		fmt.Fprintf(c.out, "state=%s cycle=%d annotations=%d\n", c.ctl.State(), set.CycleID, set.Len())
		return nil
	case "quit", "exit":
		if err := c.ctl.Quit(); err != nil {
			return err
		}
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// run reads commands until quit, EOF or ctx is done.
func (c *console) run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep serving remote commands until shutdown
				<-ctx.Done()
				return nil
			}
			if err := c.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
