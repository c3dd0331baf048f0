package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stagecraft.ai/internal/persistence/indexdb"
	persistlog "stagecraft.ai/internal/persistence/log"
	"stagecraft.ai/internal/persistence/snapshot"
	"stagecraft.ai/internal/sim/props"
	"stagecraft.ai/internal/sim/stage"
	"stagecraft.ai/internal/sim/tuning"
	"stagecraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		stageID    = flag.String("stage", "stage_1", "stage id")
		seed       = flag.Int64("seed", 1337, "stage seed (used only when starting a fresh stage)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	catalog, err := props.Load(filepath.Join(*configDir, "props.json"))
	if err != nil {
		logger.Fatalf("load props: %v", err)
	}

	stageDir := filepath.Join(*dataDir, "stages", *stageID)
	_ = os.MkdirAll(stageDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	// Optional: read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(stageDir, "index", "stage.sqlite"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.FindLatest(filepath.Join(stageDir, "snapshots"))
	}

	// Load tuning (required for a fresh stage; optional for snapshot resumes,
	// which carry their effective parameters).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Default()
	}

	if idx != nil {
		if err := idx.UpsertCatalogs(*configDir, catalog.Digest, tune); err != nil {
			logger.Printf("index db: upsert catalogs: %v", err)
		}
	}

	// Create stage (fresh or resumed from snapshot).
	var st *stage.Stage
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.StageID != "" && snap.Header.StageID != *stageID {
			logger.Fatalf("snapshot stage id mismatch: flag=%s snap=%s", *stageID, snap.Header.StageID)
		}
		st, err = stage.New(stage.Config{
			ID:                 *stageID,
			TickRateHz:         snap.TickRate,
			Seed:               snap.Seed,
			ActorCapacity:      snap.ActorCapacity,
			DistanceTol:        snap.DistanceTol,
			VerticalTol:        snap.VerticalTol,
			AngleTolDeg:        snap.AngleTolDeg,
			DefaultTimeoutS:    tune.Gestures.DefaultTimeoutS,
			MaxStepsPerSched:   tune.Gestures.MaxStepsPerSched,
			SnapshotEveryTicks: snap.SnapshotEveryTicks,
			RateLimits:         rateLimitConfig(tune),
		}, catalog)
		if err != nil {
			logger.Fatalf("stage: %v", err)
		}
		if err := st.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), st.CurrentTick())
	} else {
		st, err = stage.New(stage.Config{
			ID:                 *stageID,
			TickRateHz:         tune.TickRateHz,
			Seed:               *seed,
			ActorCapacity:      tune.ActorCapacity,
			DistanceTol:        tune.Pose.DistanceTol,
			VerticalTol:        tune.Pose.VerticalTol,
			AngleTolDeg:        tune.Pose.AngleTolDeg,
			DefaultTimeoutS:    tune.Gestures.DefaultTimeoutS,
			MaxStepsPerSched:   tune.Gestures.MaxStepsPerSched,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
			RateLimits:         rateLimitConfig(tune),
		}, catalog)
		if err != nil {
			logger.Fatalf("stage: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(stageDir)
	auditLog := persistlog.NewAuditLogger(stageDir)
	defer tickLog.Close()
	defer auditLog.Close()
	tickSink := multiTickLogger{a: tickLog}
	auditSink := multiAuditLogger{a: auditLog}
	if idx != nil {
		tickSink.b = idx
		auditSink.b = idx
	}
	st.SetTickLogger(tickSink)
	st.SetAuditLogger(auditSink)

	// Snapshot writer.
	snapCh := make(chan snapshot.StageV1, 2)
	st.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(stageDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	go func() {
		if err := st.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("stage stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := st.MetricsSnapshot()
		tick := st.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP stagecraft_stage_tick Current stage tick.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_stage_tick gauge\n")
		fmt.Fprintf(rw, "stagecraft_stage_tick{stage=%q} %d\n", *stageID, tick)

		fmt.Fprintf(rw, "# HELP stagecraft_stage_actors Current number of actors on the stage.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_stage_actors gauge\n")
		fmt.Fprintf(rw, "stagecraft_stage_actors{stage=%q} %d\n", *stageID, m.Actors)

		fmt.Fprintf(rw, "# HELP stagecraft_stage_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_stage_clients gauge\n")
		fmt.Fprintf(rw, "stagecraft_stage_clients{stage=%q} %d\n", *stageID, m.Clients)

		fmt.Fprintf(rw, "# HELP stagecraft_director_schedules Director schedule counts.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_director_schedules gauge\n")
		fmt.Fprintf(rw, "stagecraft_director_schedules{stage=%q,state=%q} %d\n", *stageID, "scheduled", m.Scheduled)
		fmt.Fprintf(rw, "stagecraft_director_schedules{stage=%q,state=%q} %d\n", *stageID, "claimed", m.Claimed)

		fmt.Fprintf(rw, "# HELP stagecraft_stage_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_stage_queue_depth gauge\n")
		fmt.Fprintf(rw, "stagecraft_stage_queue_depth{stage=%q,queue=%q} %d\n", *stageID, "inbox", m.QueueDepths.Inbox)
		fmt.Fprintf(rw, "stagecraft_stage_queue_depth{stage=%q,queue=%q} %d\n", *stageID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "stagecraft_stage_queue_depth{stage=%q,queue=%q} %d\n", *stageID, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP stagecraft_stage_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE stagecraft_stage_step_ms gauge\n")
		fmt.Fprintf(rw, "stagecraft_stage_step_ms{stage=%q} %.3f\n", *stageID, m.StepMS)
	})

	enableAdminHTTP := envBool("SC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("SC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				StageID string        `json:"stage_id"`
				Tick    uint64        `json:"tick"`
				Metrics stage.Metrics `json:"metrics"`
			}{
				StageID: *stageID,
				Tick:    st.CurrentTick(),
				Metrics: st.MetricsSnapshot(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (SC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (SC_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(st, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func rateLimitConfig(tune tuning.Tuning) stage.RateLimitConfig {
	return stage.RateLimitConfig{
		ScheduleWindowTicks: tune.RateLimits.ScheduleWindowTicks,
		ScheduleMax:         tune.RateLimits.ScheduleMax,
		InstantWindowTicks:  tune.RateLimits.InstantWindowTicks,
		InstantMax:          tune.RateLimits.InstantMax,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a stage.TickLogger
	b stage.TickLogger
}

func (m multiTickLogger) WriteTick(entry stage.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a stage.AuditLogger
	b stage.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry stage.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
