package main

import (
	"context"
	"flag"
	"log"

	"github.com/ridgeline/foreman/pkg/queue"
	"github.com/ridgeline/foreman/pkg/storage"
)

var (
	dataDir   = flag.String("data-dir", "./data", "foreman data directory (BoltDB job store)")
	redisAddr = flag.String("redis-addr", "127.0.0.1:6379", "Redis address for the submission log")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("foreman bootstrap")
	log.Println("=================")

	log.Printf("Opening job store at %s", *dataDir)
	store, err := storage.NewBoltStore(*dataDir)
	if err != nil {
		log.Fatalf("open job store: %v", err)
	}
	defer store.Close()
	log.Println("✓ jobs bucket ready")

	log.Printf("Connecting to Redis at %s", *redisAddr)
	rdb, err := queue.NewRedisClient(*redisAddr)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	subLog := queue.NewSubmissionLog(rdb)
	if err := subLog.EnsureGroup(context.Background()); err != nil {
		log.Fatalf("ensure consumer group: %v", err)
	}
	log.Printf("✓ stream %q and consumer group %q ready", queue.JobsStream, queue.SchedulerGroup)

	log.Println("Bootstrap completed successfully!")
}
