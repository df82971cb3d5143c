package utils

import "testing"

func TestOpenRedisFromEnvDisabled(t *testing.T) {
	t.Setenv("REDIS_ENABLE", "")
	if rc := OpenRedisFromEnv(); rc != nil {
		t.Fatal("client opened while disabled")
	}
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ENABLE", "true")
	t.Setenv("REDIS_HOST", "10.0.0.5")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASS", "pw")
	t.Setenv("REDIS_DB", "x")

	cfg, ok := RedisConfigFromEnv()
	if !ok || cfg.Addr != "10.0.0.5:6380" || cfg.Password != "pw" || cfg.DB != 0 {
		t.Fatalf("cfg=%+v ok=%v", cfg, ok)
	}
	t.Setenv("REDIS_DB", "3")
	if cfg, _ = RedisConfigFromEnv(); cfg.DB != 3 {
		t.Fatalf("db=%d want 3", cfg.DB)
	}

	rc := OpenRedisFromEnv()
	if rc == nil {
		t.Fatal("nil client")
	}
	defer rc.Close()
	if o := rc.Options(); o.Addr != "10.0.0.5:6380" || o.DB != 3 {
		t.Fatalf("options addr=%q db=%d", o.Addr, o.DB)
	}
	if (RedisConfig{}).Open() != nil {
		t.Fatal("empty addr opened")
	}
}
