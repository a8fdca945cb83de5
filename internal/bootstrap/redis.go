package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/target/jobstream/config"
)

const redisClientName = "jobstream"

// redisTarget is the resolved shape of a Redis deployment.
type redisTarget struct {
	mode      string // direct, sentinel or cluster
	addrs     []string
	master    string
	username  string
	password  string
	sentinelP string
	tls       *tls.Config
	poolSize  int
}

// describe renders the target for logs without credentials.
func (t redisTarget) describe() string {
	switch t.mode {
	case "sentinel":
		return "sentinel:" + t.master
	case "cluster":
		return "cluster:" + strings.Join(t.addrs, ",")
	default:
		return strings.Join(t.addrs, ",")
	}
}

// ConnectRedis builds the process-wide client for the configured deployment
// and pings it once. go-redis owns pooling and redial.
//
//nolint:ireturn // returning redis.UniversalClient lets us pick single, sentinel, or cluster clients at runtime.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := resolveRedisTarget(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}
	client := newRedisClient(target)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected", "mode", target.mode, "addr", target.describe(), "pool_size", target.poolSize)
	}
	return client, nil
}

func resolveRedisTarget(cfg config.RedisConfig) (redisTarget, error) {
	t := redisTarget{password: cfg.Password, poolSize: cfg.PoolSize}

	switch {
	case cfg.UseCluster:
		t.mode = "cluster"
		t.addrs = normalizeAddrs(cfg.ClusterNodes)
		if len(t.addrs) == 0 {
			// A single seed URI is enough for cluster discovery.
			if err := t.applyURI(cfg.URI); err != nil {
				return redisTarget{}, fmt.Errorf("parse redis cluster url: %w", err)
			}
		}
		if len(t.addrs) == 0 {
			return redisTarget{}, errors.New("redis cluster configuration requires at least one address")
		}

	case cfg.UseSentinel:
		t.mode = "sentinel"
		t.addrs = normalizeAddrs(cfg.SentinelNodes)
		t.master = cfg.SentinelMasterName
		t.sentinelP = cfg.SentinelPassword
		if len(t.addrs) == 0 {
			return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
		}

	default:
		t.mode = "direct"
		if strings.TrimSpace(cfg.URI) == "" {
			return redisTarget{}, errors.New("redis direct configuration requires a URI")
		}
		if err := t.applyURI(cfg.URI); err != nil {
			return redisTarget{}, fmt.Errorf("parse redis url: %w", err)
		}
	}
	return t, nil
}

// applyURI accepts either host:port or a redis:// / rediss:// URL. Credentials
// in the URL take precedence over REDIS_PASSWORD.
func (t *redisTarget) applyURI(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !isRedisURL(raw) {
		t.addrs = []string{raw}
		return nil
	}
	opt, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	t.addrs = []string{opt.Addr}
	t.username = opt.Username
	if opt.Password != "" {
		t.password = opt.Password
	}
	t.tls = opt.TLSConfig
	return nil
}

// newRedisClient builds the client for t. Client-side retries are disabled:
// RetryPolicy is the only retry layer, and a transparently retried BLPOP could
// claim a second envelope.
//
//nolint:ireturn // returning redis.UniversalClient keeps client selection flexible.
func newRedisClient(t redisTarget) redis.UniversalClient {
	switch t.mode {
	case "cluster":
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:      t.addrs,
			ClientName: redisClientName,
			Username:   t.username,
			Password:   t.password,
			TLSConfig:  t.tls,
			PoolSize:   t.poolSize,
			MaxRetries: -1,
		})
	case "sentinel":
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       t.master,
			SentinelAddrs:    t.addrs,
			ClientName:       redisClientName,
			Password:         t.password,
			SentinelPassword: t.sentinelP,
			PoolSize:         t.poolSize,
			MaxRetries:       -1,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:       t.addrs[0],
			ClientName: redisClientName,
			Username:   t.username,
			Password:   t.password,
			TLSConfig:  t.tls,
			PoolSize:   t.poolSize,
			MaxRetries: -1,
		})
	}
}

func normalizeAddrs(raw []string) []string {
	result := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func isRedisURL(value string) bool {
	u, err := url.Parse(value)
	return err == nil && (u.Scheme == "redis" || u.Scheme == "rediss")
}
