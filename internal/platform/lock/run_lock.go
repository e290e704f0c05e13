// Package lock は Redis 上の排他ロックで、同じバッチ処理の重複実行を防ぎます。
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrHeld は別のプロセスがロックを保持していることを表します。
	ErrHeld = errors.New("run lock is held by another process")
	// ErrNotHeld はロックが存在しない（期限切れ・解放済み）ことを表します。
	ErrNotHeld = errors.New("run lock is not held")
)

// 保持者のトークンが一致する場合のみ削除する
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Holder はロックの保持者です。値は JSON で Redis に保存されます。
type Holder struct {
	Token     string    `json:"token"`
	Op        string    `json:"op"`
	Host      string    `json:"host"`
	StartedAt time.Time `json:"started_at"`

	raw string
}

// RunLock は op ごとのロックを管理します。
type RunLock struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRunLock は新しい RunLock を作成します。
func NewRunLock(client *redis.Client, prefix string) *RunLock {
	if prefix == "" {
		prefix = "runlock"
	}
	return &RunLock{client: client, prefix: prefix, now: time.Now}
}

func (l *RunLock) key(op string) string {
	return fmt.Sprintf("%s:%s", l.prefix, op)
}

// Acquire は op のロックを ttl 付きで取得します。
// 既に保持されている場合は ErrHeld を返します（保持者が分かればメッセージに含めます）。
func (l *RunLock) Acquire(ctx context.Context, op string, ttl time.Duration) (*Holder, error) {
	host, _ := os.Hostname()
	h := &Holder{Token: uuid.NewString(), Op: op, Host: host, StartedAt: l.now().UTC()}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock holder: %w", err)
	}
	h.raw = string(data)

	ok, err := l.client.SetNX(ctx, l.key(op), h.raw, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		if cur, cerr := l.Current(ctx, op); cerr == nil {
			return nil, fmt.Errorf("%w: %s on %s since %s", ErrHeld, cur.Op, cur.Host, cur.StartedAt.Format(time.RFC3339))
		}
		return nil, ErrHeld
	}
	return h, nil
}

// Current は op のロックの現在の保持者を返します。
func (l *RunLock) Current(ctx context.Context, op string) (*Holder, error) {
	data, err := l.client.Get(ctx, l.key(op)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotHeld
		}
		return nil, err
	}

	var h Holder
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock holder: %w", err)
	}
	h.raw = data
	return &h, nil
}

// Release は h が保持しているロックを解放します。
// 期限切れ後に別のプロセスが取り直したロックは解放せず ErrNotHeld を返します。
func (l *RunLock) Release(ctx context.Context, h *Holder) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key(h.Op)}, h.raw).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
