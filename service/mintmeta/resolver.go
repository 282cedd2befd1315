package mintmeta

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/helius"
	"github.com/vizor-labs/vizor/service/metrics"
)

// MintMeta is the display metadata for a token mint.
type MintMeta struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
}

// AssetFetcher is the slice of the Helius client the resolver needs.
type AssetFetcher interface {
	AssetBatch(ctx context.Context, mints []string) ([]helius.Asset, error)
}

// staticMints covers mints that DAS does not describe usefully. Wrapped SOL
// in particular comes back with empty metadata.
var staticMints = map[string]MintMeta{
	facts.WSOLMint: {Symbol: "wSOL", Name: "Wrapped SOL"},
}

const cacheKeyPrefix = "mintmeta:"

// Resolver resolves mint addresses to display metadata with a Redis
// read-through cache in front of the Helius DAS API. Resolution is best
// effort: mints that cannot be resolved are simply absent from the result,
// and the resolver never returns an error.
type Resolver struct {
	fetcher AssetFetcher
	redis   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a new Resolver. redisClient may be nil, in which case
// every lookup goes straight to the fetcher. If m is nil, no metrics will be
// recorded.
func NewResolver(fetcher AssetFetcher, redisClient *redis.Client, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Resolver{
		fetcher: fetcher,
		redis:   redisClient,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// Resolve returns metadata for as many of the given mints as it can.
// Static entries always win, then the cache, then a single batched DAS call
// for whatever is left. Failures downgrade to a smaller result map.
func (r *Resolver) Resolve(ctx context.Context, mints []string) map[string]MintMeta {
	out := make(map[string]MintMeta, len(mints))
	var missing []string

	for _, mint := range mints {
		if mint == "" {
			continue
		}
		if meta, ok := staticMints[mint]; ok {
			out[mint] = meta
			r.recordLookup("static", "hit")
			continue
		}
		if meta, ok := r.cacheGet(ctx, mint); ok {
			out[mint] = meta
			r.recordLookup("cache", "hit")
			continue
		}
		r.recordLookup("cache", "miss")
		missing = append(missing, mint)
	}

	if len(missing) == 0 {
		return out
	}

	assets, err := r.fetcher.AssetBatch(ctx, missing)
	if err != nil {
		r.logger.WarnContext(ctx, "mint metadata fetch failed, continuing without",
			"mints", len(missing),
			"error", err,
		)
		r.recordLookup("das", "error")
		return out
	}

	for _, asset := range assets {
		meta := MintMeta{
			Symbol: asset.Content.Metadata.Symbol,
			Name:   asset.Content.Metadata.Name,
			Image:  asset.Content.Links.Image,
		}
		if meta.Symbol == "" && meta.Name == "" {
			continue
		}
		out[asset.ID] = meta
		r.cacheSet(ctx, asset.ID, meta)
		r.recordLookup("das", "hit")
	}

	return out
}

func (r *Resolver) cacheGet(ctx context.Context, mint string) (MintMeta, bool) {
	if r.redis == nil {
		return MintMeta{}, false
	}
	data, err := r.redis.Get(ctx, cacheKeyPrefix+mint).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.WarnContext(ctx, "mint metadata cache read failed", "mint", mint, "error", err)
		}
		return MintMeta{}, false
	}
	var meta MintMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return MintMeta{}, false
	}
	return meta, true
}

func (r *Resolver) cacheSet(ctx context.Context, mint string, meta MintMeta) {
	if r.redis == nil {
		return
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, cacheKeyPrefix+mint, data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "mint metadata cache write failed", "mint", mint, "error", err)
	}
}

func (r *Resolver) recordLookup(source, status string) {
	if r.metrics != nil {
		r.metrics.RecordMintMetaLookup(source, status)
	}
}
