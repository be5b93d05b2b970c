// Package telemetry publishes LUMP port state to Redis using an
// HSet-the-latest-value, Publish-a-change-notification pipeline on
// the same key, serializing device payloads with CBOR before writing
// them out.
package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lego-riskieren/lump-driver/internal/lump"
)

// RedisSink publishes port snapshots to Redis under a per-port key.
type RedisSink struct {
	client *redis.Client
	ctx    context.Context
	key    string
}

// NewRedisSink connects to addr and scopes all writes under
// "lump:<portName>", a one-hash-per-device key convention.
func NewRedisSink(addr, password string, db int, portName string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis at %s: %w", addr, err)
	}
	return &RedisSink{client: client, ctx: ctx, key: "lump:" + portName}, nil
}

// PublishSample writes the latest sample's CBOR encoding and notifies
// subscribers via the same HSet+Publish pipeline.
func (s *RedisSink) PublishSample(sample lump.Sample) error {
	encoded, err := EncodeSample(sample)
	if err != nil {
		return fmt.Errorf("telemetry: encode sample: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.HSet(s.ctx, s.key, "sample", encoded)
	pipe.Publish(s.ctx, s.key, "sample")
	_, err = pipe.Exec(s.ctx)
	return err
}

// PublishInfo writes the frozen descriptor once sync completes.
func (s *RedisSink) PublishInfo(info lump.Info) error {
	encoded, err := EncodeInfo(info)
	if err != nil {
		return fmt.Errorf("telemetry: encode info: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.HSet(s.ctx, s.key, "info", encoded)
	pipe.Publish(s.ctx, s.key, "info")
	_, err = pipe.Exec(s.ctx)
	return err
}

// PublishStatus writes a one-word port status using the same
// HSet+Publish convention as the other scalar fields.
func (s *RedisSink) PublishStatus(status lump.Status) error {
	pipe := s.client.Pipeline()
	pipe.HSet(s.ctx, s.key, "status", status.String())
	pipe.Publish(s.ctx, s.key, fmt.Sprintf("status:%s", status))
	_, err := pipe.Exec(s.ctx)
	return err
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
