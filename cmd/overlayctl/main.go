// Command overlayctl sends commands to a running furigana overlay worker
// through the Redis command queue.
//
//	overlayctl start
//	overlayctl stop
//	overlayctl trigger
//	overlayctl region X Y W H
//	overlayctl interval MS
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/adverant/nexus/furigana-worker/internal/queue"
)

func main() {
	_ = godotenv.Load(".env.furigana")

	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL of the worker")
	queueName := flag.String("queue", queue.DefaultQueue, "command queue name")
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("no Redis URL: set REDIS_URL or pass -redis")
	}

	task, err := buildTask(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	client, err := queue.NewCommandClient(*redisURL, *queueName)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := client.Enqueue(ctx, task)
	if err != nil {
		log.Fatalf("Failed to send command: %v", err)
	}
	fmt.Printf("%s queued (%s)\n", task.Type(), id)
}

func buildTask(args []string) (*asynq.Task, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: overlayctl start|stop|trigger|region X Y W H|interval MS")
	}

	nums := func(want int) ([]int, error) {
		if len(args)-1 != want {
			return nil, fmt.Errorf("%s expects %d arguments", args[0], want)
		}
		out := make([]int, want)
		for i, a := range args[1:] {
			v, err := strconv.Atoi(a)
			if err != nil {
				return nil, fmt.Errorf("%s: bad argument %q", args[0], a)
			}
			out[i] = v
		}
		return out, nil
	}

	switch args[0] {
	case "start":
		return queue.NewSimpleTask(queue.TypeStart), nil
	case "stop":
		return queue.NewSimpleTask(queue.TypeStop), nil
	case "trigger":
		return queue.NewSimpleTask(queue.TypeForceTrigger), nil
	case "region":
		n, err := nums(4)
		if err != nil {
			return nil, err
		}
		return queue.NewRegionTask(n[0], n[1], n[2], n[3])
	case "interval":
		n, err := nums(1)
		if err != nil {
			return nil, err
		}
		return queue.NewIntervalTask(time.Duration(n[0]) * time.Millisecond)
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}
