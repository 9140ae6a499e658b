package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/shono-io/funcship/sdk"
)

// Connect opens the NATS connection the ledger is stored behind.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("funcship"),
	}

	if cfg.Jwt != "" {
		opts = append(opts, nats.UserJWTAndSeed(cfg.Jwt, cfg.Seed))
	}

	url := cfg.Url
	if url == "" {
		url = nats.DefaultURL
	}

	return nats.Connect(url, opts...)
}

// NewNatsRepository stores deployments in a JetStream key value bucket, one
// key per stage. The bucket history doubles as the deployment history.
func NewNatsRepository(ctx context.Context, nc *nats.Conn, cfg Config) (Repository, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to jetstream: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		log.Info().Str("bucket", bucket).Msg("creating deployment ledger bucket")
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "funcship deployments",
			History:     64,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("unable to get key value store: %w", err)
	}

	return &natsRepository{
		nc:     nc,
		kv:     kv,
		prefix: prefix,
	}, nil
}

type natsRepository struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	prefix string
}

func (n *natsRepository) key(stage sdk.Stage) string {
	return fmt.Sprintf("%s.deployment.%s", n.prefix, stage)
}

func (n *natsRepository) Record(ctx context.Context, d Deployment) error {
	stage, err := sdk.ParseStage(d.Stage)
	if err != nil {
		return err
	}

	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("unable to marshal deployment: %w", err)
	}

	rev, err := n.kv.Put(ctx, n.key(stage), b)
	if err != nil {
		return fmt.Errorf("unable to record deployment: %w", err)
	}

	log.Debug().Str("stage", d.Stage).Uint64("revision", rev).Msg("deployment recorded")
	return nil
}

func (n *natsRepository) Latest(ctx context.Context, stage sdk.Stage) (*Deployment, error) {
	e, err := n.kv.Get(ctx, n.key(stage))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get latest deployment: %w", err)
	}

	d, err := decode(e)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (n *natsRepository) History(ctx context.Context, stage sdk.Stage) ([]Deployment, error) {
	entries, err := n.kv.History(ctx, n.key(stage))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get deployment history: %w", err)
	}

	result := make([]Deployment, 0, len(entries))
	for _, e := range entries {
		if e.Operation() != jetstream.KeyValuePut {
			continue
		}

		d, err := decode(e)
		if err != nil {
			log.Warn().Err(err).Uint64("revision", e.Revision()).Msg("skipping unreadable deployment")
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (n *natsRepository) Close() error {
	return n.nc.Drain()
}

func decode(e jetstream.KeyValueEntry) (Deployment, error) {
	var d Deployment
	if err := json.Unmarshal(e.Value(), &d); err != nil {
		return Deployment{}, fmt.Errorf("unable to unmarshal stored deployment: %w", err)
	}
	d.Revision = e.Revision()
	return d, nil
}
