// README: Entry point; loads config, wires services, runs startup orchestration behind the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pilgrim/internal/ai"
	"pilgrim/internal/bootstrap"
	"pilgrim/internal/config"
	httptransport "pilgrim/internal/http"
	"pilgrim/internal/infra"
	"pilgrim/internal/maps"
	"pilgrim/internal/modules/geoloc"
	"pilgrim/internal/modules/narration"
	"pilgrim/internal/modules/waypoint"
	"pilgrim/internal/types"
)

// trailhead is the Fo Guang Shan main gate: the preloaded position shown
// before any real reading arrives, and the emergency coordinate of last
// resort.
var trailhead = types.Point{Lat: 22.7552, Lng: 120.4436}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pool and client construction is lazy; the orchestrated init steps do
	// the actual dialing so failures land in the startup progress view.
	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()
	redisClient := infra.NewRedis(cfg.Redis.Addr)

	fileKV, err := geoloc.NewFileKV(cfg.Cache.FileDir)
	if err != nil {
		log.Fatalf("cache dir: %v", err)
	}
	redisKV := geoloc.NewRedisKV(redisClient, cfg.Cache.MaxAge)
	kv := geoloc.NewTieredKV(redisKV, fileKV, 30*time.Second)
	cache := geoloc.NewCache(kv, cfg.Cache.MaxEntries, cfg.Cache.MaxAge)

	feed := geoloc.NewFeed(ctx)
	engine := geoloc.NewEngine(feed, cache, geoloc.Region{
		MinLat: cfg.Geo.Region.MinLat,
		MaxLat: cfg.Geo.Region.MaxLat,
		MinLng: cfg.Geo.Region.MinLng,
		MaxLng: cfg.Geo.Region.MaxLng,
	})

	probe := geoloc.NewHTTPProbe(cfg.Geo.ProbeURL)
	resolver := geoloc.NewResolver(engine, cache, probe, []geoloc.ReferencePoint{
		{Name: "main-gate", Point: trailhead, Weight: 0.5},
		{Name: "big-buddha", Point: types.Point{Lat: 22.7583, Lng: 120.4498}, Weight: 0.3},
		{Name: "main-hall", Point: types.Point{Lat: 22.7570, Lng: 120.4455}, Weight: 0.2},
	}, trailhead)

	waypointStore := waypoint.NewStore(dbPool)
	waypointSvc := waypoint.NewService(waypointStore, resolver)

	narrationStore := narration.NewStore(dbPool)
	narrationSvc := narration.NewService(narrationStore, waypointStore)

	verifierHolder := &infra.VerifierHolder{}

	reg := bootstrap.NewRegistry()
	reg.MustRegister(bootstrap.Descriptor{
		ID: "database", Name: "Postgres Pool", Critical: true, Timeout: 10 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			return dbPool.Ping(ctx)
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "storage", Name: "Cache Storage", Timeout: 5 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "geolocation", Name: "Geolocation Engine", DependsOn: []string{"storage"},
		Critical: true, Timeout: 10 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			if err := cache.Load(ctx); err != nil {
				log.Printf("geoloc: starting with empty cache: %v", err)
			}
			if cache.Len() == 0 {
				cache.Add(ctx, geoloc.Sample{
					Lat:       trailhead.Lat,
					Lng:       trailhead.Lng,
					AccuracyM: 100,
					Timestamp: time.Now(),
				}, geoloc.SourcePreloaded)
			}
			return nil
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "waypoints", Name: "Waypoint Catalog", DependsOn: []string{"database"},
		Critical: true, Timeout: 10 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			n, err := waypointStore.CountWaypoints(ctx)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("waypoint catalog empty; run migrations")
			}
			return nil
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "netlocate", Name: "Network Locator", Timeout: 5 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			if cfg.Maps.APIKey == "" {
				return fmt.Errorf("GOOGLE_MAPS_API_KEY not set")
			}
			locator, err := maps.NewLocateService(cfg.Maps.APIKey)
			if err != nil {
				return err
			}
			resolver.SetLocator(locator)
			return nil
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "auth", Name: "Auth Verifier", Timeout: 10 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			if cfg.Firebase.ProjectID == "" {
				return fmt.Errorf("PILGRIM_FIREBASE_PROJECT_ID not set")
			}
			verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
			if err != nil {
				return err
			}
			verifierHolder.Set(verifier)
			return nil
		}),
	})
	reg.MustRegister(bootstrap.Descriptor{
		ID: "guide", Name: "Trail Guide", DependsOn: []string{"database", "auth"},
		Timeout: 15 * time.Second,
		Service: bootstrap.InitFunc(func(ctx context.Context) error {
			if cfg.AI.GeminiKey == "" {
				return fmt.Errorf("GEMINI_API_KEY not set")
			}
			provider, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey)
			if err != nil {
				return err
			}
			narrationSvc.SetProvider(provider)
			return nil
		}),
	})

	orch := bootstrap.NewOrchestrator(reg)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Orchestrator: orch,
		Resolver:     resolver,
		Engine:       engine,
		Feed:         feed,
		Waypoints:    waypointSvc,
		Guide:        narrationSvc,
		Verifier:     verifierHolder,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	// The server comes up first so clients can watch the progress bar while
	// orchestration runs behind it.
	go func() {
		res, err := orch.Initialize(ctx)
		if err != nil {
			log.Printf("startup orchestration failed: %v", err)
			return
		}
		for _, warning := range res.Warnings {
			log.Printf("startup warning: %s", warning)
		}
		if !res.Success {
			log.Printf("startup incomplete after %s; degraded services: %v",
				res.Elapsed, res.FailedServices)
			return
		}
		log.Printf("startup complete in %s", res.Elapsed)

		if err := engine.StartWatch(geoloc.AcquireOptions{
			HighAccuracy:     true,
			DesiredAccuracyM: cfg.Geo.DesiredAccuracyM,
			Timeout:          cfg.Geo.AcquireTimeout,
		}); err != nil {
			log.Printf("continuous tracking unavailable: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		engine.StopWatch()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
