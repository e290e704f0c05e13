// Package metrics はバッチの集計結果を Prometheus Pushgateway に送ります。
// バッチは常駐しないので scrape ではなく push を使います。
package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const defaultJob = "stock_timeframes"

// Config は Pushgateway の送信先です。URL が空なら送信しません。
type Config struct {
	URL string
	Job string
}

// LoadConfig は PUSHGATEWAY_URL / PUSHGATEWAY_JOB から設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{URL: os.Getenv("PUSHGATEWAY_URL"), Job: os.Getenv("PUSHGATEWAY_JOB")}
	if cfg.Job == "" {
		cfg.Job = defaultJob
	}
	return cfg
}

// Enabled は送信先が設定されているかを返します。
func (c Config) Enabled() bool { return c.URL != "" }

// Pusher は1回のバッチ実行の結果を op ごとのグループで送ります。
type Pusher struct {
	cfg    Config
	client push.HTTPDoer
}

// NewPusher は Pusher を作成します。client が nil なら http.DefaultClient を使います。
func NewPusher(cfg Config, client push.HTTPDoer) *Pusher {
	if cfg.Job == "" {
		cfg.Job = defaultJob
	}
	return &Pusher{cfg: cfg, client: client}
}

// PushSummary は counts（項目名→件数）と実行時間、成功時刻を op ラベル付きで置き換え送信します。
// 送信先が未設定なら何もしません。
func (p *Pusher) PushSummary(ctx context.Context, op string, counts map[string]int, elapsed time.Duration, succeeded bool) error {
	if !p.cfg.Enabled() {
		return nil
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	items := factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "timeframes",
		Name:      "cycle_items",
		Help:      "Per-outcome counts of the last aggregation run.",
	}, []string{"outcome"})
	for k, v := range counts {
		items.WithLabelValues(k).Set(float64(v))
	}

	factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "timeframes",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of the last aggregation run.",
	}).Set(elapsed.Seconds())

	if succeeded {
		factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "timeframes",
			Name:      "cycle_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful aggregation run.",
		}).SetToCurrentTime()
	}

	pusher := push.New(p.cfg.URL, p.cfg.Job).Gatherer(reg).Grouping("op", op)
	if p.client != nil {
		pusher = pusher.Client(p.client)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push %s metrics: %w", op, err)
	}
	return nil
}
