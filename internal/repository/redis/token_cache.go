package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"participant-gate/internal/client"
	"participant-gate/internal/models"
	"participant-gate/internal/token"
	"participant-gate/internal/util"
)

const tokenPrefix = "download_token"

// TokenCache stores download tokens as JSON strings. Take relies on GETDEL
// so two replicas can never both redeem the same token.
type TokenCache struct {
	client *client.RedisClient
	logger *zap.Logger
}

func NewTokenCache(c *client.RedisClient, logger *zap.Logger) *TokenCache {
	return &TokenCache{client: c, logger: logger}
}

func (c *TokenCache) Put(ctx context.Context, tok models.DownloadToken, ttl time.Duration) error {
	payload, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode download token: %w", err)
	}
	if err := c.client.Set(ctx, c.client.Key(tokenPrefix, tok.ID), payload, ttl); err != nil {
		return fmt.Errorf("failed to store download token: %w", err)
	}
	return nil
}

func (c *TokenCache) Take(ctx context.Context, id string) (models.DownloadToken, error) {
	raw, err := c.client.GetDel(ctx, c.client.Key(tokenPrefix, id))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return models.DownloadToken{}, token.ErrTokenNotFound
		}
		return models.DownloadToken{}, fmt.Errorf("failed to take download token: %w", err)
	}

	var tok models.DownloadToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		c.logger.Warn("Discarding unreadable download token", util.ErrorField(err))
		return models.DownloadToken{}, token.ErrTokenCorrupted
	}
	tok.ID = id
	return tok, nil
}
