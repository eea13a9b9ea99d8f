package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datasetu-labs/metaforge/internal/core"
)

const taskQueueKey = "metaforge:tasks"

// RedisScheduler pushes tasks onto a Redis list so separate worker processes
// can drain them. The queue survives process restarts; combined with the
// zombie re-dispatch on submit this gives at-least-once processing, which is
// safe because terminal writes are idempotent per digest.
type RedisScheduler struct {
	rdb     *redis.Client
	process core.ProcessFunc
	wg      sync.WaitGroup
}

func NewRedisScheduler(rdb *redis.Client, process core.ProcessFunc) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, process: process}
}

func (s *RedisScheduler) Schedule(ctx context.Context, task core.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := s.rdb.LPush(ctx, taskQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Digest, err)
	}
	return nil
}

// Start launches worker goroutines that block on the queue. A short BRPOP
// timeout keeps the loop responsive to ctx cancellation.
func (s *RedisScheduler) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				res, err := s.rdb.BRPop(ctx, 2*time.Second, taskQueueKey).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if ctx.Err() != nil {
						return
					}
					log.Printf("dispatch: redis worker %d: %v", id, err)
					time.Sleep(time.Second)
					continue
				}
				// BRPOP returns [key, value].
				if len(res) != 2 {
					continue
				}
				var task core.Task
				if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
					log.Printf("dispatch: redis worker %d: bad task payload: %v", id, err)
					continue
				}
				log.Printf("dispatch: redis worker %d picked up %s", id, task.Digest)
				s.process(ctx, task)
			}
		}(i)
	}
}

func (s *RedisScheduler) Wait() {
	s.wg.Wait()
}
