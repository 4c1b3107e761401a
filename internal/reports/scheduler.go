package reports

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Reports go out at 09:00 UTC; the weekly one on Mondays covers the prior
// seven days.
const (
	dailyCron  = "0 9 * * *"
	weeklyCron = "0 9 * * 1"
)

// Channel is the outbound side the worker broadcasts through.
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

// Scheduler registers the cron entries. Nil when Redis is not configured;
// the engine then simply runs without reports.
type Scheduler struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*Scheduler, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	if err := pingRedis(opt); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})

	daily, err := NewDailyReportTask(ReportPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(dailyCron, daily, asynq.Queue(queue)); err != nil {
		return nil, err
	}

	weekly, err := NewWeeklyReportTask(ReportPayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(weeklyCron, weekly, asynq.Queue(queue)); err != nil {
		return nil, err
	}

	return &Scheduler{scheduler: scheduler, log: log}, nil
}

func (s *Scheduler) Run(ctx context.Context) {
	if s == nil || s.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		s.scheduler.Shutdown()
	}()

	if err := s.scheduler.Run(); err != nil {
		s.log.Error("report scheduler stopped", "error", err)
	}
}

// Worker consumes the scheduled report tasks.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	kpi        *KPIRepository
	channel    Channel
	adminChats []string
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, notifierCfg config.NotifierConfig, pool *pgxpool.Pool, channel Channel, log *logger.Logger) (*Worker, error) {
	if cfg.GetRedisURL() == "" {
		return nil, nil
	}

	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		kpi:        NewKPIRepository(pool, notifierCfg.GetDeliveryMaxAttempts()),
		channel:    channel,
		adminChats: notifierCfg.GetAdminChatIDs(),
		log:        log,
	}
	mux.HandleFunc(TaskDailyReport, w.handleDailyReport)
	mux.HandleFunc(TaskWeeklyReport, w.handleWeeklyReport)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("report worker stopped", "error", err)
	}
}

func (w *Worker) handleDailyReport(ctx context.Context, task *asynq.Task) error {
	end, err := periodEnd(task)
	if err != nil {
		return err
	}
	return w.sendReport(ctx, "Daily KPI report", end.Add(-24*time.Hour), end)
}

func (w *Worker) handleWeeklyReport(ctx context.Context, task *asynq.Task) error {
	end, err := periodEnd(task)
	if err != nil {
		return err
	}
	return w.sendReport(ctx, "Weekly KPI report", end.Add(-7*24*time.Hour), end)
}

func (w *Worker) sendReport(ctx context.Context, title string, from, to time.Time) error {
	report, err := w.kpi.Collect(ctx, from, to)
	if err != nil {
		return err
	}
	text := FormatReport(title, report)
	for _, chat := range w.adminChats {
		if err := w.channel.Send(ctx, chat, text); err != nil {
			return fmt.Errorf("send report to %s: %w", chat, err)
		}
	}
	return nil
}

func periodEnd(task *asynq.Task) (time.Time, error) {
	payload, err := ParseReportPayload(task)
	if err != nil {
		return time.Time{}, err
	}
	if payload.PeriodEnd == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, payload.PeriodEnd)
}

func pingRedis(opt asynq.RedisClientOpt) error {
	client := redis.NewClient(&redis.Options{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	})
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
