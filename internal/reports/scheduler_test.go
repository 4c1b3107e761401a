package reports

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"leadflow_backend/platform/logger"
)

type schedulerCfg struct {
	url   string
	queue string
}

func (c schedulerCfg) GetRedisURL() string       { return c.url }
func (c schedulerCfg) GetRedisTLSInsecure() bool { return false }
func (c schedulerCfg) GetAsynqQueueName() string { return c.queue }

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.Addr != "localhost:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected opt: %+v", opt)
	}
	if opt.TLSConfig != nil {
		t.Fatal("plain redis url must not produce a TLS config")
	}

	opt, err = redisClientOpt("redis://localhost:6379", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("tls_insecure must force an insecure TLS config")
	}
}

func TestRedisClientOptRejectsBadURL(t *testing.T) {
	if _, err := redisClientOpt("not a url", false); err == nil {
		t.Fatal("invalid redis url must be rejected")
	}
}

func TestNewSchedulerWithoutRedisIsDisabled(t *testing.T) {
	scheduler, err := NewScheduler(schedulerCfg{}, logger.New("development"))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if scheduler != nil {
		t.Fatal("missing redis url must disable the scheduler, not error")
	}
}

func TestNewSchedulerPingsRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	scheduler, err := NewScheduler(schedulerCfg{url: "redis://" + mr.Addr(), queue: "reports"}, logger.New("development"))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if scheduler == nil {
		t.Fatal("scheduler should be enabled when redis answers")
	}

	addr := mr.Addr()
	mr.Close()
	if _, err := NewScheduler(schedulerCfg{url: "redis://" + addr}, logger.New("development")); err == nil {
		t.Fatal("unreachable redis must fail scheduler construction")
	}
}
