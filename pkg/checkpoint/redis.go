package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// saveIfNewer stores ARGV[2] in hash KEYS[1] unless the stored seq is
// higher than ARGV[1]. When KEYS[2] is given, ARGV[3] is added to that set.
// It returns 1 when the value was written.
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'data', ARGV[2])
if KEYS[2] then
	redis.call('SADD', KEYS[2], ARGV[3])
end
return 1
`)

// RedisStore keeps checkpoints and task records in Redis hashes:
//
//	<prefix>:checkpoint:<assignment id>  {seq, data}
//	<prefix>:task:<task id>              {seq, data}
//	<prefix>:tasks                       set of task ids
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and checks the connection.
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(rdb, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "vibesurf"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) checkpointKey(id string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, id)
}

func (s *RedisStore) taskKey(id string) string {
	return fmt.Sprintf("%s:task:%s", s.prefix, id)
}

func (s *RedisStore) taskSetKey() string {
	return s.prefix + ":tasks"
}

func (s *RedisStore) Save(ctx context.Context, cp types.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	keys := []string{s.checkpointKey(cp.AssignmentID)}
	if err := saveIfNewer.Run(ctx, s.client, keys, cp.Seq, data).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.AssignmentID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, assignmentID string) (types.Checkpoint, error) {
	data, err := s.client.HGet(ctx, s.checkpointKey(assignmentID), "data").Bytes()
	if err == redis.Nil {
		return types.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to load checkpoint %s: %w", assignmentID, err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", assignmentID, err)
	}
	return cp, nil
}

func (s *RedisStore) SaveTask(ctx context.Context, rec types.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task record: %w", err)
	}
	keys := []string{s.taskKey(rec.Task.ID), s.taskSetKey()}
	if err := saveIfNewer.Run(ctx, s.client, keys, rec.Version, data, rec.Task.ID).Err(); err != nil {
		return fmt.Errorf("failed to save task %s: %w", rec.Task.ID, err)
	}
	return nil
}

func (s *RedisStore) LoadTasks(ctx context.Context) ([]types.TaskRecord, error) {
	ids, err := s.client.SMembers(ctx, s.taskSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.taskKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	out := make([]types.TaskRecord, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load task %s: %w", ids[i], err)
		}
		var rec types.TaskRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode task %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
