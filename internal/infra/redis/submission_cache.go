package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SubmissionCache keeps the latest submission per participant of one quiz in a Redis hash:
// HSET quiz:{quizID}:submissions {login} {json}
// so a restarted instance still consolidates what was saved before the restart.
// Entries that cannot be decoded are moved to quiz:{quizID}:submissions:corrupt.
type SubmissionCache struct {
	client *redis.Client
	quizID string
	logger *slog.Logger
}

var _ app.SubmissionCache = (*SubmissionCache)(nil)

// NewSubmissionCache builds the cache of one quiz. logger may be nil.
func NewSubmissionCache(client *redis.Client, quizID string, logger *slog.Logger) *SubmissionCache {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &SubmissionCache{client: client, quizID: quizID, logger: logger}
}

func (c *SubmissionCache) Exists(ctx context.Context, login string) (bool, error) {
	ok, err := c.client.HExists(ctx, c.key(), login).Result()
	if err != nil {
		return false, pkgerrors.Wrap(err, "check cached submission")
	}
	return ok, nil
}

func (c *SubmissionCache) Upsert(ctx context.Context, login string, submission domain.QuizSubmission) error {
	if login == "" {
		return nil
	}
	raw, err := json.Marshal(submission)
	if err != nil {
		return pkgerrors.Wrap(err, "encode submission")
	}
	if err := c.client.HSet(ctx, c.key(), login, raw).Err(); err != nil {
		return pkgerrors.Wrap(err, "cache submission")
	}
	return nil
}

func (c *SubmissionCache) Get(ctx context.Context, login string) (domain.QuizSubmission, error) {
	raw, err := c.client.HGet(ctx, c.key(), login).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSubmission{SubmittedAnswers: []domain.SubmittedAnswer{}}, nil
	}
	if err != nil {
		return domain.QuizSubmission{}, pkgerrors.Wrap(err, "read cached submission")
	}
	return decodeSubmission(raw)
}

// Range iterates over the hash as read at call time; fn may modify the cache.
// Undecodable entries are skipped and reported once iteration is done.
func (c *SubmissionCache) Range(ctx context.Context, fn func(login string, submission domain.QuizSubmission) bool) error {
	entries, err := c.client.HGetAll(ctx, c.key()).Result()
	if err != nil {
		return pkgerrors.Wrap(err, "list cached submissions")
	}
	submissions, corrupt := decodeAll(entries)
	for _, login := range sortedKeys(submissions) {
		if !fn(login, submissions[login]) {
			break
		}
	}
	return corruptError(corrupt)
}

func (c *SubmissionCache) Remove(ctx context.Context, login string) error {
	if err := c.client.HDel(ctx, c.key(), login).Err(); err != nil {
		return pkgerrors.Wrap(err, "remove cached submission")
	}
	return nil
}

// Drain renames the hash before reading it, so saves arriving during consolidation
// land in a fresh hash instead of being lost. Hashes left behind by an earlier drain
// that failed are merged in, older first. Undecodable entries are parked in the
// corrupt hash and reported in a *domain.CorruptSubmissionsError next to the rest.
func (c *SubmissionCache) Drain(ctx context.Context) (map[string]domain.QuizSubmission, error) {
	draining := fmt.Sprintf("%s%020d:%s", c.drainingPrefix(), time.Now().UnixNano(), uuid.NewString())
	if err := c.client.Rename(ctx, c.key(), draining).Err(); err != nil && !isNoSuchKey(err) {
		return nil, pkgerrors.Wrap(err, "detach cached submissions")
	}

	keys, err := c.drainingKeys(ctx)
	if err != nil {
		c.restore(ctx, draining)
		return nil, err
	}
	entries := make(map[string]string)
	for _, key := range keys {
		hash, err := c.client.HGetAll(ctx, key).Result()
		if err != nil {
			c.restore(ctx, draining)
			return nil, pkgerrors.Wrap(err, "read drained submissions")
		}
		for login, raw := range hash {
			entries[login] = raw
		}
	}

	submissions, corrupt := decodeAll(entries)
	if len(corrupt) > 0 {
		parked := make(map[string]interface{}, len(corrupt))
		for _, login := range corrupt {
			parked[login] = entries[login]
		}
		if err := c.client.HSet(ctx, c.corruptKey(), parked).Err(); err != nil {
			c.logger.Error("park undecodable submissions failed", "quiz_id", c.quizID, "participants", corrupt, "error", err)
		}
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Error("delete drained submissions failed", "quiz_id", c.quizID, "keys", keys, "error", err)
		}
	}
	return submissions, corruptError(corrupt)
}

// Clear removes the hash together with drained leftovers and parked entries.
func (c *SubmissionCache) Clear(ctx context.Context) error {
	keys, err := c.drainingKeys(ctx)
	if err != nil {
		return err
	}
	keys = append(keys, c.key(), c.corruptKey())
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return pkgerrors.Wrap(err, "clear cached submissions")
	}
	return nil
}

// restore moves a detached hash back under the live key when nothing was saved since.
// Otherwise it stays under its draining key and the next drain picks it up.
func (c *SubmissionCache) restore(ctx context.Context, draining string) {
	if err := c.client.RenameNX(ctx, draining, c.key()).Err(); err != nil && !isNoSuchKey(err) {
		c.logger.Error("restore detached submissions failed", "quiz_id", c.quizID, "key", draining, "error", err)
	}
}

// drainingKeys lists detached hashes of this quiz in the order they were detached.
func (c *SubmissionCache) drainingKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.drainingPrefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "list drained submissions")
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *SubmissionCache) drainingPrefix() string {
	return c.key() + ":draining:"
}

func (c *SubmissionCache) corruptKey() string {
	return c.key() + ":corrupt"
}

func (c *SubmissionCache) key() string {
	return "quiz:" + c.quizID + ":submissions"
}

func decodeSubmission(raw []byte) (domain.QuizSubmission, error) {
	var submission domain.QuizSubmission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return domain.QuizSubmission{}, pkgerrors.Wrap(err, "decode cached submission")
	}
	if submission.SubmittedAnswers == nil {
		submission.SubmittedAnswers = []domain.SubmittedAnswer{}
	}
	return submission, nil
}

// decodeAll decodes every entry on its own and returns the logins that failed.
func decodeAll(entries map[string]string) (map[string]domain.QuizSubmission, []string) {
	out := make(map[string]domain.QuizSubmission, len(entries))
	var corrupt []string
	for login, raw := range entries {
		submission, err := decodeSubmission([]byte(raw))
		if err != nil {
			corrupt = append(corrupt, login)
			continue
		}
		out[login] = submission
	}
	sort.Strings(corrupt)
	return out, corrupt
}

func corruptError(logins []string) error {
	if len(logins) == 0 {
		return nil
	}
	return &domain.CorruptSubmissionsError{Logins: logins}
}

func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such key")
}

// SubmissionCacheFactory creates Redis-backed caches sharing one client.
type SubmissionCacheFactory struct {
	client *redis.Client
	logger *slog.Logger
}

var _ app.SubmissionCacheFactory = (*SubmissionCacheFactory)(nil)

func NewSubmissionCacheFactory(client *redis.Client, logger *slog.Logger) *SubmissionCacheFactory {
	return &SubmissionCacheFactory{client: client, logger: logger}
}

func (f *SubmissionCacheFactory) NewSubmissionCache(quizID string) app.SubmissionCache {
	return NewSubmissionCache(f.client, quizID, f.logger)
}

func sortedKeys(m map[string]domain.QuizSubmission) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
