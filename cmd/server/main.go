package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/kindredchat/kindred/internal/auth"
	"github.com/kindredchat/kindred/internal/block"
	"github.com/kindredchat/kindred/internal/clock"
	"github.com/kindredchat/kindred/internal/config"
	"github.com/kindredchat/kindred/internal/coordinator"
	"github.com/kindredchat/kindred/internal/fault"
	"github.com/kindredchat/kindred/internal/httpapi"
	"github.com/kindredchat/kindred/internal/matching"
	"github.com/kindredchat/kindred/internal/messaging"
	"github.com/kindredchat/kindred/internal/metrics"
	"github.com/kindredchat/kindred/internal/moderation"
	"github.com/kindredchat/kindred/internal/protocol"
	"github.com/kindredchat/kindred/internal/ratelimit"
	"github.com/kindredchat/kindred/internal/state"
	"github.com/kindredchat/kindred/internal/store"
	"github.com/kindredchat/kindred/internal/ws"
)

// moderationBridge forwards filed reports to the moderation worker over NATS.
type moderationBridge struct {
	nc *messaging.NATSClient
}

func (b *moderationBridge) ReportFiled(r *store.Report) error {
	notice := moderation.ReportNotice{
		ReporterID: r.ReporterID,
		ReportedID: r.ReportedID,
		SessionID:  r.SessionID,
		Reason:     r.Reason,
		Ts:         r.CreatedAt.Unix(),
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return b.nc.PublishReportNotice(data)
}

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- Durable store ---
	var st store.Store
	if cfg.PostgresDSN != "" {
		pg, err := store.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		st = pg
		log.Printf("store: postgres")
	} else {
		st = store.NewMemory()
		log.Printf("store: in-memory (set POSTGRES_DSN for durability)")
	}

	// --- Redis: rate limiting, blocks, bans ---
	var (
		limiter *ratelimit.Limiter
		blocks  *block.Store
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis: %v", err)
		}
		cancel()
		limiter = ratelimit.NewLimiter(client)
		blocks = block.NewStore(client)
		log.Printf("redis: %s", cfg.RedisAddr)
	} else {
		log.Printf("redis: disabled (no rate limits, blocks or bans)")
	}

	// --- NATS: moderation pipeline ---
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		natsClient = nc
	} else {
		log.Printf("nats: disabled (no content moderation)")
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)

	// --- WebSocket server ---
	dispatcher := ws.NewMessageDispatcher()
	wsServer := ws.NewServer(ws.ServerConfig{
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		SendQueue:      cfg.SendQueue,
		SendTimeout:    cfg.SendTimeout,
	}, dispatcher.Dispatch)

	// --- Coordinator ---
	opts := coordinator.Options{
		Clock:           clock.New(),
		Store:           st,
		Sender:          wsServer.Registry(),
		TickInterval:    cfg.TickInterval,
		BallotTTL:       cfg.BallotTTL,
		MaxContentBytes: cfg.MaxContentBytes,
		Observer: func(userID string, from, to state.Status) {
			if from != state.Offline {
				metrics.UsersByStatus.WithLabelValues(string(from)).Dec()
			}
			if to != state.Offline {
				metrics.UsersByStatus.WithLabelValues(string(to)).Inc()
			}
		},
	}
	if blocks != nil {
		opts.Blocks = blocks
	}
	if natsClient != nil {
		opts.Moderation = &moderationBridge{nc: natsClient}
	}
	coord := coordinator.New(opts)

	// allow checks a rate limit rule for a user, failing open without Redis.
	allow := func(ctx context.Context, userID string, rule ratelimit.Rule) bool {
		if limiter == nil {
			return true
		}
		ok, err := limiter.Allow(ctx, userID, rule)
		if err != nil {
			log.Printf("[ratelimit] %s: %v", userID, err)
		}
		return ok
	}

	// -----------------------------------------------------------------------
	// authenticate — bind this connection to a verified user
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAuthenticate, func(conn *ws.Connection, msg interface{}) {
		authMsg, ok := msg.(protocol.AuthenticateMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reject := func(reason string) {
			if data, err := protocol.NewServerMessage(protocol.TypeAuthError, protocol.AuthErrorMsg{Reason: reason}); err == nil {
				conn.Enqueue(data, false)
			}
		}

		claims, err := tokens.Verify(authMsg.Token)
		if err != nil {
			reject("invalid or expired token")
			return
		}
		userID := claims.Subject

		if blocks != nil {
			if banned, remaining, reason, _ := blocks.IsBanned(ctx, userID); banned {
				log.Printf("authenticate rejected for banned user=%s reason=%s remaining=%ds", userID, reason, remaining)
				reject("account temporarily banned: " + reason)
				return
			}
		}
		if !allow(ctx, userID, ratelimit.RuleConnect) {
			reject("too many connection attempts")
			return
		}

		if _, err := coord.Authenticate(ctx, userID); err != nil {
			reject(fault.MessageOf(err))
			return
		}
		wsServer.Registry().Authenticate(conn.ID, userID)

		if data, err := protocol.NewServerMessage(protocol.TypeAuthOK, protocol.AuthOKMsg{UserID: userID}); err == nil {
			conn.Enqueue(data, false)
		}
		log.Printf("authenticate conn=%s user=%s", conn.ID, userID)
	})

	// -----------------------------------------------------------------------
	// start-search / end-search
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeStartSearch, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		userID := conn.UserID()

		if !allow(ctx, userID, ratelimit.RuleSearch) {
			ws.SendFault(conn, fault.New(fault.RateLimited, "too many search requests"))
			return
		}
		if err := coord.StartSearch(ctx, userID); err != nil {
			ws.SendFault(conn, err)
			return
		}
		metrics.SearchPoolSize.Set(float64(coord.PoolSize()))
	})

	dispatcher.Register(protocol.TypeEndSearch, func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.EndSearch(ctx, conn.UserID()); err != nil {
			ws.SendFault(conn, err)
			return
		}
		metrics.SearchPoolSize.Set(float64(coord.PoolSize()))
	})

	// -----------------------------------------------------------------------
	// accept-match / reject-match
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAcceptMatch, func(conn *ws.Connection, msg interface{}) {
		acceptMsg, ok := msg.(protocol.AcceptMatchMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.AcceptMatch(ctx, conn.UserID(), acceptMsg.MatchID); err != nil {
			ws.SendFault(conn, err)
			return
		}
		metrics.ActiveSessions.Set(float64(coord.ActiveSessions()))
	})

	dispatcher.Register(protocol.TypeRejectMatch, func(conn *ws.Connection, msg interface{}) {
		rejectMsg, ok := msg.(protocol.RejectMatchMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.RejectMatch(ctx, conn.UserID(), rejectMsg.MatchID); err != nil {
			ws.SendFault(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// send-message — validate, persist, fan out, then hand to moderation
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		sendMsg, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		userID := conn.UserID()

		if !allow(ctx, userID, ratelimit.RuleMessage) {
			ws.SendFault(conn, fault.New(fault.RateLimited, "slow down"))
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return
		}

		started := time.Now()
		persisted, err := coord.SendMessage(ctx, userID, sendMsg.SessionID, sendMsg.Content)
		if err != nil {
			ws.SendFault(conn, err)
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return
		}
		metrics.MessagesTotal.WithLabelValues("sent").Inc()
		metrics.MessageLatency.Observe(time.Since(started).Seconds())

		if natsClient != nil {
			req := moderation.CheckRequest{
				UserID:    userID,
				SessionID: sendMsg.SessionID,
				Text:      persisted.Content,
				Ts:        persisted.CreatedAt.Unix(),
			}
			if data, err := json.Marshal(req); err == nil {
				if err := natsClient.PublishModerationCheck(data); err != nil {
					log.Printf("[moderation] publish check: %v", err)
				}
			}
		}
	})

	// -----------------------------------------------------------------------
	// typing / stop-typing / read-all
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		typingMsg, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.Typing(ctx, conn.UserID(), typingMsg.SessionID, false); err != nil {
			ws.SendFault(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeStopTyping, func(conn *ws.Connection, msg interface{}) {
		stopMsg, ok := msg.(protocol.StopTypingMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.Typing(ctx, conn.UserID(), stopMsg.SessionID, true); err != nil {
			ws.SendFault(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeReadAll, func(conn *ws.Connection, msg interface{}) {
		readMsg, ok := msg.(protocol.ReadAllMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.ReadAll(ctx, conn.UserID(), readMsg.SessionID); err != nil {
			ws.SendFault(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// join-session — reattach after a reconnect
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoinSession, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinSessionMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		userID := conn.UserID()

		sess, err := coord.JoinSession(ctx, userID, joinMsg.SessionID)
		if err != nil {
			ws.SendFault(conn, err)
			return
		}

		partner := protocol.Partner{UserID: sess.Partner(userID)}
		if pu, err := st.Users().GetByID(ctx, partner.UserID); err == nil {
			partner.Username = pu.Username
			partner.Interests = pu.Interests
		}
		if data, err := protocol.NewServerMessage(protocol.TypeMatchConfirmed, protocol.MatchConfirmedMsg{
			SessionID: sess.ID,
			Partner:   partner,
		}); err == nil {
			conn.Enqueue(data, false)
		}
	})

	// -----------------------------------------------------------------------
	// report — file against the chat partner, feed the ban escalator
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeReport, func(conn *ws.Connection, msg interface{}) {
		reportMsg, ok := msg.(protocol.ReportMsg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		userID := conn.UserID()

		if !allow(ctx, userID, ratelimit.RuleReport) {
			ws.SendFault(conn, fault.New(fault.RateLimited, "too many reports"))
			return
		}
		if err := coord.Report(ctx, userID, reportMsg.SessionID, reportMsg.Reason); err != nil {
			ws.SendFault(conn, err)
			return
		}

		// With NATS the moderation worker owns the report counter; without it
		// the escalation runs in-process.
		if blocks != nil && natsClient == nil {
			if sess, err := st.Sessions().Get(ctx, reportMsg.SessionID); err == nil {
				reported := sess.Partner(userID)
				if banned, duration, err := blocks.ReportAndCheck(ctx, reported); err == nil && banned {
					log.Printf("auto-ban user=%s for %s after repeated reports", reported, duration)
				}
			}
		}
	})

	// -----------------------------------------------------------------------
	// disconnect — the coordinator tears down live state when the last
	// connection of a user goes away
	// -----------------------------------------------------------------------
	wsServer.SetOnDisconnect(func(conn *ws.Connection) {
		metrics.ConnectionsTotal.Dec()
		userID := conn.UserID()
		if userID == "" || wsServer.Registry().Primary(userID) != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		coord.Disconnect(ctx, userID)
		metrics.SearchPoolSize.Set(float64(coord.PoolSize()))
		metrics.ActiveSessions.Set(float64(coord.ActiveSessions()))
	})

	// --- Moderation verdicts: warn the sender, escalate repeat offenders ---
	if natsClient != nil {
		err := natsClient.SubscribeModerationResults(func(data []byte) {
			var result moderation.CheckResult
			if err := json.Unmarshal(data, &result); err != nil {
				return
			}
			if !result.Blocked {
				return
			}
			log.Printf("[moderation] blocked content user=%s session=%s reason=%s", result.UserID, result.SessionID, result.Reason)
			if frame, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
				Code:    string(fault.InvalidContent),
				Message: "message flagged by moderation",
			}); err == nil {
				wsServer.Registry().Send(result.UserID, frame)
			}
			if blocks != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if duration, err := blocks.Escalate(ctx, result.UserID, result.Reason); err == nil {
					log.Printf("[moderation] banned user=%s for %s", result.UserID, duration)
				}
			}
		})
		if err != nil {
			log.Printf("[moderation] subscribe results: %v", err)
		}
	}

	// --- HTTP mux: REST API, WebSocket upgrade, metrics, health ---
	api := httpapi.New(httpapi.Options{
		Store:           st,
		Coordinator:     coord,
		Tokens:          tokens,
		Blocks:          blockerOrNil(blocks),
		PageSizeMax:     cfg.PageSizeMax,
		MaxContentBytes: cfg.MaxContentBytes,
	})

	router := chi.NewRouter()
	router.Mount("/api", api.Router())
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		metrics.ConnectionsTotal.Inc()
		wsServer.HandleUpgrade(w, r)
	})
	router.Handle("/metrics", metrics.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	log.Printf("kindred server starting")
	log.Printf("  listen_addr:     %s", cfg.ListenAddr)
	log.Printf("  worker_pool:     %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections: %d", cfg.MaxConnections)
	log.Printf("  tick_interval:   %s", cfg.TickInterval)
	log.Printf("  ballot_ttl:      %s", cfg.BallotTTL)

	if err := wsServer.Start(); err != nil {
		log.Fatalf("ws server: %v", err)
	}
	coord.Start()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		coord.Stop()
		if err := wsServer.Shutdown(); err != nil {
			log.Printf("ws shutdown: %v", err)
		}
		if natsClient != nil {
			natsClient.Close()
		}
		if err := st.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
		os.Exit(0)
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server: %v", err)
	}
}

// blockerOrNil avoids handing the API a typed-nil interface when Redis is
// disabled.
func blockerOrNil(b *block.Store) httpapi.Blocker {
	if b == nil {
		return nil
	}
	return b
}

var _ matching.Blocklist = (*block.Store)(nil)
