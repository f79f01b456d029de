package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kindredchat/kindred/internal/block"
	"github.com/kindredchat/kindred/internal/messaging"
	"github.com/kindredchat/kindred/internal/moderation"
)

func main() {
	log.Println("Starting Kindred moderation worker...")

	// Redis setup — bans live here, shared with the chat server.
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	blocks := block.NewStore(rdb)

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "kindred-moderator"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	filter := moderation.NewFilter()

	// Content checks: run the filter over every persisted message and publish
	// a verdict for flagged content.
	err = natsClient.SubscribeModerationCheck(func(data []byte) {
		var req moderation.CheckRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("[moderator] failed to unmarshal check request: %v", err)
			return
		}

		result := filter.Check(req.Text)
		if !result.Blocked {
			log.Printf("[moderator] CLEAN user=%s session=%s", req.UserID, req.SessionID)
			return
		}

		log.Printf("[moderator] FLAGGED user=%s session=%s reason=%s term=%q",
			req.UserID, req.SessionID, result.Reason, result.Term)

		resp := moderation.CheckResult{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Blocked:   true,
			Reason:    result.Reason,
			Term:      result.Term,
		}
		respData, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[moderator] failed to marshal result: %v", err)
			return
		}
		if err := natsClient.PublishModerationResult(req.UserID, respData); err != nil {
			log.Printf("[moderator] failed to publish result: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to moderation checks: %v", err)
	}

	// Filed abuse reports: count against the reported user and apply the
	// escalating ban once the threshold is crossed.
	err = natsClient.SubscribeReportNotices(func(data []byte) {
		var notice moderation.ReportNotice
		if err := json.Unmarshal(data, &notice); err != nil {
			log.Printf("[moderator] failed to unmarshal report notice: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		banned, duration, err := blocks.ReportAndCheck(ctx, notice.ReportedID)
		if err != nil {
			log.Printf("[moderator] report check for %s: %v", notice.ReportedID, err)
			return
		}
		if banned {
			log.Printf("[moderator] BANNED user=%s for %s (reported by %s, reason=%q)",
				notice.ReportedID, duration, notice.ReporterID, notice.Reason)
		} else {
			log.Printf("[moderator] report recorded against user=%s (reason=%q)",
				notice.ReportedID, notice.Reason)
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to report notices: %v", err)
	}

	log.Printf("Kindred moderation worker running")
	log.Printf("  redis_addr: %s", redisAddr)
	log.Printf("  nats_url:   %s", natsConfig.URL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	rdb.Close()
}
