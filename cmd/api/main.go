package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basemini.app/internal/audit"
	"basemini.app/internal/auth"
	"basemini.app/internal/config"
	"basemini.app/internal/httpapi"
	"basemini.app/internal/obs"
	"basemini.app/internal/session"
	"basemini.app/internal/siwe"
	"basemini.app/internal/store/pg"
	"basemini.app/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelBoot()

	var (
		accounts auth.AccountStore
		grants   auth.GrantStore
		sink     audit.Store
		ready    httpapi.Pinger
		db       *pg.Store
	)
	if cfg.PGDSN != "" {
		db, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		accounts, grants, sink, ready = db, db, db, db
	} else {
		obs.Info("storage_in_memory", map[string]any{"reason": "MINIAPP_PG_DSN not set"})
		mem := auth.NewMemoryStore()
		accounts, grants = mem, mem
		sink = audit.NewMemorySink()
	}

	verifierOpts := []siwe.Option{siwe.WithAllowedChains(cfg.ChainIDs...)}
	for _, rawURL := range cfg.EthRPCURLs {
		client, err := siwe.Dial(bootCtx, rawURL)
		if err != nil {
			log.Fatalf("eth rpc: %v", err)
		}
		defer client.Close()
		chainID, err := client.ChainID(bootCtx)
		if err != nil {
			log.Fatalf("eth rpc chain id: %v", err)
		}
		verifierOpts = append(verifierOpts, siwe.WithContractCaller(chainID.Int64(), client))
	}
	if cfg.OptimismRPCURL != "" {
		client, err := siwe.Dial(bootCtx, cfg.OptimismRPCURL)
		if err != nil {
			log.Fatalf("optimism rpc: %v", err)
		}
		defer client.Close()
		registry, err := siwe.NewIDRegistry(client, cfg.FarcasterIDRegistry)
		if err != nil {
			log.Fatalf("id registry: %v", err)
		}
		verifierOpts = append(verifierOpts,
			siwe.WithFidResolver(registry),
			siwe.WithContractCaller(siwe.FarcasterChainID, client))
	}
	verifier, err := siwe.NewVerifier(cfg.Domain, cfg.URI, verifierOpts...)
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}
	for _, id := range cfg.ChainIDs {
		if !verifier.ContractChain(id) {
			obs.Info("eip1271_unavailable", map[string]any{"chain_id": id})
		}
	}

	var store session.Store
	switch cfg.SessionMode {
	case config.SessionToken:
		store, err = session.NewTokenStore(cfg.SessionSecret, cfg.SessionTTL)
	default:
		store, err = session.NewCookieStore(cfg.SessionSecret, session.CookieOptions{
			Name:     cfg.CookieName,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
			TTL:      cfg.SessionTTL,
		})
	}
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	feed := stream.New[audit.Entry]()
	recorder := audit.NewRecorder(sink, feed)

	resolver := auth.NewRoleResolver(accounts, grants,
		auth.WithSuperAdmin(cfg.SuperAdminAddress),
		auth.WithRoleCache(auth.NewTTLCache[auth.Role](cfg.RoleCacheTTL)),
		auth.WithPermissionCache(auth.NewTTLCache[[]auth.Permission](cfg.RoleCacheTTL)),
	)
	authenticator := auth.NewAuthenticator(verifier, accounts, resolver,
		auth.WithStatement(cfg.Statement),
		auth.WithPromotionHook(func(ctx context.Context, acc auth.Account) {
			recorder.Record(ctx, audit.Entry{
				AccountID:    acc.ID,
				ActorAddress: acc.Address,
				Action:       audit.ActionSuperAdminInit,
				ResourceType: "account",
				ResourceID:   acc.Address,
				NewValue:     audit.Snapshot(map[string]string{"role": string(auth.RoleSuperAdmin)}),
				Success:      true,
			})
		}),
	)

	api := httpapi.New(httpapi.Deps{
		Sessions:       session.NewManager(store),
		Auth:           authenticator,
		Roles:          resolver,
		Grants:         auth.NewGrantService(accounts, grants, resolver),
		Accounts:       accounts,
		Audit:          recorder,
		AuditLog:       sink,
		Feed:           feed,
		Ready:          ready,
		Version:        version,
		AllowedOrigins: cfg.AllowedOrigins,
		TosVersion:     cfg.TosVersion,
		NonceRate:      cfg.NonceRate,
		NonceBurst:     cfg.NonceBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("server_starting", map[string]any{
		"version":      version,
		"addr":         srv.Addr,
		"session_mode": string(cfg.SessionMode),
		"chains":       cfg.ChainIDs,
		"farcaster":    cfg.OptimismRPCURL != "",
		"eip1271":      len(cfg.EthRPCURLs),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("server_stopping", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	obs.Info("server_stopped", nil)
}
