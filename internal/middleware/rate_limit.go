package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"boutique_back_end/internal/observability"
)

const (
	LoginMaxAttempts    = 5
	RegisterMaxAttempts = 3

	LoginCooldown    = 15 * time.Minute
	RegisterCooldown = 30 * time.Minute
)

// LoginRateLimit bloque un identifiant après LoginMaxAttempts échecs (401) consécutifs.
// Sans Redis, le middleware laisse tout passer.
func LoginRateLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var input struct {
			Username string `json:"username"`
		}
		if json.Unmarshal(body, &input) != nil || input.Username == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		ident := strings.ToLower(input.Username)
		key := "login_attempts:" + ident
		cooldownKey := "login_cooldown:" + ident

		if ttl, blocked := cooldown(c, rdb, cooldownKey); blocked {
			abortTooMany(c, fmt.Sprintf("Trop de tentatives échouées. Réessayez dans %d minutes", minutes(ttl)), ttl)
			return
		}

		attempts, _ := rdb.Get(ctx, key).Int()
		if attempts >= LoginMaxAttempts {
			rdb.Set(ctx, cooldownKey, "1", LoginCooldown)
			rdb.Del(ctx, key)
			abortTooMany(c, fmt.Sprintf("Trop de tentatives échouées. Compte bloqué pendant %d minutes", minutes(LoginCooldown)), LoginCooldown)
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			pipe := rdb.TxPipeline()
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, LoginCooldown)
			if _, err := pipe.Exec(ctx); err != nil {
				observability.FromContext(ctx).Warn("⚠️ Compteur de tentatives indisponible", zap.Error(err))
			}
		case http.StatusOK:
			rdb.Del(ctx, key, cooldownKey)
		}
	}
}

// RegisterRateLimit limite les inscriptions par IP.
func RegisterRateLimit(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		ip := c.ClientIP()
		key := "register_attempts:" + ip
		cooldownKey := "register_cooldown:" + ip

		if ttl, blocked := cooldown(c, rdb, cooldownKey); blocked {
			abortTooMany(c, fmt.Sprintf("Trop d'inscriptions. Réessayez dans %d minutes", minutes(ttl)), ttl)
			return
		}

		attempts, _ := rdb.Get(ctx, key).Int()
		if attempts >= RegisterMaxAttempts {
			rdb.Set(ctx, cooldownKey, "1", RegisterCooldown)
			rdb.Del(ctx, key)
			abortTooMany(c, fmt.Sprintf("Trop d'inscriptions. Réessayez dans %d minutes", minutes(RegisterCooldown)), RegisterCooldown)
			return
		}

		c.Next()

		if c.Writer.Status() == http.StatusCreated {
			pipe := rdb.TxPipeline()
			pipe.Incr(ctx, key)
			pipe.Expire(ctx, key, time.Hour)
			_, _ = pipe.Exec(ctx)
		}
	}
}

func cooldown(c *gin.Context, rdb *redis.Client, key string) (time.Duration, bool) {
	ttl, err := rdb.TTL(c.Request.Context(), key).Result()
	if err != nil || ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

func abortTooMany(c *gin.Context, msg string, retry time.Duration) {
	c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       msg,
		"retry_after": int(retry.Seconds()),
	})
}

func minutes(d time.Duration) int {
	m := int(d.Minutes())
	if m < 1 {
		return 1
	}
	return m
}
