// cmd/historian/main.go is an asynchronous worker that pops action records
// from the Redis queue the game server publishes to and archives them as
// per-game JSONL files. Games with no activity past a threshold get their
// archives finalized.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/unoroom/unoroom/internal/cache"
)

// HistorianService encapsulates the Redis + archive logic for capturing game
// actions and closing out games that went quiet.
type HistorianService struct {
	redisClient *redis.Client
	archiveDir  string
	batchSize   int
	flushDelay  time.Duration
	inactivity  time.Duration

	lastActivity sync.Map // map[uuid.UUID]time.Time per game

	batchMu  sync.Mutex
	batch    []cache.GameActionRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)

	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: rdb,
		archiveDir:  getEnv("HISTORIAN_ARCHIVE_DIR", "./archives"),
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.GameActionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the two main loops: the queue reader with batched flushes, and
// the periodic inactivity sweep.
func (hs *HistorianService) Run() {
	if err := os.MkdirAll(hs.archiveDir, 0o755); err != nil {
		log.Fatalf("cannot create archive dir %s: %v", hs.archiveDir, err)
	}

	go hs.readRedisLoop()
	go hs.inactivityLoop()

	log.Println("unoroom-historian service started.")
	<-hs.ctx.Done()
	hs.flushBatch()
	log.Println("unoroom-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve messages from the queue.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("ACTION_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatch()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if hs.ctx.Err() != nil {
					return
				}
				log.Printf("[ERROR] BLPop: %v", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record cache.GameActionRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid action record: %v", err)
				continue
			}

			hs.lastActivity.Store(record.GameID, time.Now())
			hs.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes at the
// threshold.
func (hs *HistorianService) appendToBatch(record cache.GameActionRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, record)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchLocked()
	}
}

// flushBatch flushes the current batch to the per-game archive files.
func (hs *HistorianService) flushBatch() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchLocked()
}

// flushBatchLocked appends each batched record to its game's JSONL file.
// Assumes batchMu is held.
func (hs *HistorianService) flushBatchLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]cache.GameActionRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	files := map[uuid.UUID]*os.File{}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	written := 0
	for _, rec := range batchCopy {
		f, ok := files[rec.GameID]
		if !ok {
			var err error
			f, err = os.OpenFile(hs.archivePath(rec.GameID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				log.Printf("[ERROR] open archive for game %s: %v", rec.GameID, err)
				continue
			}
			files[rec.GameID] = f
		}
		line, err := json.Marshal(rec)
		if err != nil {
			log.Printf("[ERROR] marshal record for game %s: %v", rec.GameID, err)
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			log.Printf("[ERROR] write archive for game %s: %v", rec.GameID, err)
			continue
		}
		written++

		if rec.ActionType == "game_over" {
			hs.finalizeGame(rec.GameID, "completed")
		}
	}
	if written > 0 {
		log.Printf("Archived %d actions.", written)
	}
}

// inactivityLoop periodically finalizes archives for games that stopped
// producing actions.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				gameID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.finalizeGame(gameID, "abandoned")
					hs.lastActivity.Delete(gameID)
				}
				return true
			})
		}
	}
}

// finalizeGame appends a terminal marker to the game's archive so downstream
// consumers can tell completed games from abandoned ones.
func (hs *HistorianService) finalizeGame(gameID uuid.UUID, status string) {
	f, err := os.OpenFile(hs.archivePath(gameID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[ERROR] finalize game %s: %v", gameID, err)
		return
	}
	defer f.Close()

	marker := map[string]interface{}{
		"archive_status": status,
		"closed_at":      time.Now().UnixMilli(),
	}
	line, _ := json.Marshal(marker)
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[ERROR] finalize game %s: %v", gameID, err)
		return
	}
	log.Printf("Finalized archive for game %s as '%s'.", gameID, status)
	hs.lastActivity.Delete(gameID)
}

func (hs *HistorianService) archivePath(gameID uuid.UUID) string {
	return filepath.Join(hs.archiveDir, fmt.Sprintf("%s.jsonl", gameID))
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func main() {
	hs := NewHistorianService()
	go hs.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	hs.Stop()
	log.Println("Historian shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or
// returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
