package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        string
		LogLevel    string
		CORSOrigins []string
	}
	Session struct {
		TTL           time.Duration
		SweepInterval time.Duration
	}
	Store struct {
		Backend string
	}
	Redis struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string
	}
	WS struct {
		MaxMessageBytes int64
		SendQueue       int
	}
	GRPC struct {
		HealthAddr string
	}
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("session.ttl_min", 60)
	v.SetDefault("session.sweep_interval_s", 300)

	v.SetDefault("store.backend", BackendMemory)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "rendezvous:")

	v.SetDefault("ws.max_message_bytes", 64*1024)
	v.SetDefault("ws.send_queue", 256)

	// Map envs
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.cors_origin", "CORS_ORIGIN")

	_ = v.BindEnv("session.ttl_min", "SESSION_TTL_MIN")
	_ = v.BindEnv("session.sweep_interval_s", "SESSION_SWEEP_INTERVAL_S")

	_ = v.BindEnv("store.backend", "STORE_BACKEND")

	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("redis.key_prefix", "REDIS_KEY_PREFIX")

	_ = v.BindEnv("ws.max_message_bytes", "WS_MAX_MESSAGE_BYTES")
	_ = v.BindEnv("ws.send_queue", "WS_SEND_QUEUE")

	_ = v.BindEnv("grpc.health_addr", "GRPC_HEALTH_ADDR")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.CORSOrigins = splitList(v.GetString("server.cors_origin"))

	c.Session.TTL = time.Duration(v.GetInt("session.ttl_min")) * time.Minute
	c.Session.SweepInterval = time.Duration(v.GetInt("session.sweep_interval_s")) * time.Second

	c.Store.Backend = strings.ToLower(strings.TrimSpace(v.GetString("store.backend")))

	c.Redis.Addr = v.GetString("redis.addr")
	c.Redis.Password = v.GetString("redis.password")
	c.Redis.DB = v.GetInt("redis.db")
	c.Redis.KeyPrefix = v.GetString("redis.key_prefix")

	c.WS.MaxMessageBytes = v.GetInt64("ws.max_message_bytes")
	c.WS.SendQueue = v.GetInt("ws.send_queue")

	c.GRPC.HealthAddr = v.GetString("grpc.health_addr")

	return c, c.validate()
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL_MIN must be positive")
	}
	if c.WS.MaxMessageBytes <= 0 || c.WS.SendQueue <= 0 {
		return fmt.Errorf("config: websocket limits must be positive")
	}
	return nil
}

func toString(v any) string { return fmt.Sprint(v) }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
