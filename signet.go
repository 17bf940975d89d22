// Package signet is the public API for embedding a Signet memory daemon.
//
// Host applications import this package to construct and extend the daemon
// without forking it:
//
//	app, err := signet.New(
//	    signet.WithVersion(version),
//	    signet.WithLogger(logger),
//	    signet.WithEventHook(myHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: signet (root) imports
// internal/*, but internal/* never imports signet (root). Public types
// (Memory, Contradiction, ...) are standalone structs with no internal
// imports; conversion helpers (toPublicMemory, toPublicFilters) live here
// because this is the only file that sees both sides of the boundary.
package signet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/signet-ai/signet/internal/config"
	"github.com/signet-ai/signet/internal/embedding"
	"github.com/signet-ai/signet/internal/federation"
	"github.com/signet-ai/signet/internal/keyvault"
	"github.com/signet-ai/signet/internal/merkle"
	"github.com/signet-ai/signet/internal/model"
	"github.com/signet-ai/signet/internal/search"
	"github.com/signet-ai/signet/internal/signer"
	"github.com/signet-ai/signet/internal/signeterr"
	"github.com/signet-ai/signet/internal/storage"
	"github.com/signet-ai/signet/internal/telemetry"
	"github.com/signet-ai/signet/internal/temporal"
	"github.com/signet-ai/signet/migrations"
)

// App is the Signet daemon lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg      config.Config
	agentCfg config.AgentConfig
	home     string

	db     *storage.DB
	vault  *keyvault.Vault
	signer *signer.Signer

	embedder     embedding.Provider
	searchEngine *search.Engine
	qdrantIndex  *search.QdrantIndex // nil when Qdrant is not configured
	outbox       *search.OutboxWorker

	judge Judge
	chain Chain

	fedServer  *federation.Server
	fedClients []*federation.Client

	httpServer *http.Server

	eventHooks []EventHook

	otelShutdown func(context.Context) error

	logger  *slog.Logger
	version string
}

// New initializes the Signet daemon. It loads identity and agent
// configuration, opens the local store, runs migrations, and wires search,
// embedding, and federation subsystems. It does NOT start any goroutines or
// accept connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	home := o.home
	if home == "" {
		home = cfg.Home
	}

	agentCfg, err := config.LoadAgentConfig(home)
	if err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	if o.databasePath != "" {
		agentCfg.Memory.DatabasePath = o.databasePath
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("signet starting", "version", version, "home", home, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the local store and run migrations.
	db, err := storage.Open(context.Background(), agentCfg.Memory.DatabasePath, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Load or mint this agent's signing identity.
	vault := keyvault.New(filepath.Join(home, ".keys", "signing.enc"))
	pub, priv, err := vault.Load()
	if err != nil {
		if !signeterr.Is(err, signeterr.KeyNotFound) {
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("keyvault: %w", err)
		}
		logger.Info("keyvault: no key material found, generating new identity")
		pub, err = vault.Generate()
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("keyvault: generate: %w", err)
		}
		_, priv, err = vault.Load()
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("keyvault: reload after generate: %w", err)
		}
	}
	sgnr, err := signer.New(priv, pub)
	if err != nil {
		_ = db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("signer: %w", err)
	}
	if agentCfg.DID == "" {
		agentCfg.DID = sgnr.DID()
		if err := agentCfg.Save(home); err != nil {
			logger.Warn("agent config: failed to persist DID", "error", err)
		}
	}
	logger.Info("identity", "did", sgnr.DID())

	// Embedding provider — external override takes priority over auto-detect.
	var embedder embedding.Provider
	if o.embedder != nil {
		embedder = &embedderAdapter{e: o.embedder}
	} else {
		embedder = embedding.NewProvider(agentCfg, logger)
	}

	// Dense search index: Qdrant if configured, else the in-process
	// brute-force fallback over locally stored vectors.
	var denseSearcher search.Searcher
	var qdrantIndex *search.QdrantIndex
	var outboxWorker *search.OutboxWorker
	if cfg.QdrantURL != "" {
		qdrantIndex, err = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(embedder.Dimensions()), //nolint:gosec // validated positive by embedding config
		}, logger)
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		if err := qdrantIndex.EnsureCollection(context.Background()); err != nil {
			_ = qdrantIndex.Close()
			_ = db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		denseSearcher = qdrantIndex
		outboxWorker = search.NewOutboxWorker(db, qdrantIndex, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		denseSearcher = search.NewVectorIndex(db)
		logger.Info("qdrant: disabled, using in-process vector index")
	}
	if o.searcher != nil {
		denseSearcher = &searcherAdapter{s: o.searcher}
	}
	searchEngine := search.NewEngine(db, denseSearcher)

	// Federation: one inbound server plus one outbound client per trusted
	// peer that advertises a dial address.
	fedServer := federation.NewServer(federation.ServerConfig{
		Store:                db,
		PrivateKey:           priv,
		OurDID:               sgnr.DID(),
		DisplayName:          agentCfg.Name,
		Logger:               logger,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		PingInterval:         cfg.PingInterval,
		MaxMessagesPerMinute: cfg.MaxMessagesPerMinute,
	})

	trusted, err := db.ListTrustedPeers(context.Background())
	if err != nil {
		_ = db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("list trusted peers: %w", err)
	}
	fedClients := make([]*federation.Client, 0, len(trusted))
	for _, peer := range trusted {
		if peer.Address == nil || *peer.Address == "" {
			continue
		}
		fedClients = append(fedClients, federation.NewClient(federation.ClientConfig{
			URL:                  *peer.Address,
			PrivateKey:           priv,
			OurDID:               sgnr.DID(),
			DisplayName:          agentCfg.Name,
			Store:                db,
			Logger:               logger,
			HandshakeTimeout:     cfg.HandshakeTimeout,
			PingInterval:         cfg.PingInterval,
			MaxMessagesPerMinute: cfg.MaxMessagesPerMinute,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		}))
	}
	logger.Info("federation: dialing trusted peers", "count", len(fedClients))

	mux := http.NewServeMux()
	mux.Handle("/federation/ws", fedServer)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","version":"` + version + `"}`))
	})
	for _, reg := range o.routeRegistrars {
		reg(mux)
	}
	var handler http.Handler = mux
	for i := len(o.middlewares) - 1; i >= 0; i-- {
		handler = o.middlewares[i](handler)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		cfg:          cfg,
		agentCfg:     agentCfg,
		home:         home,
		db:           db,
		vault:        vault,
		signer:       sgnr,
		embedder:     embedder,
		searchEngine: searchEngine,
		qdrantIndex:  qdrantIndex,
		outbox:       outboxWorker,
		judge:        o.judge,
		chain:        o.chain,
		fedServer:    fedServer,
		fedClients:   fedClients,
		httpServer:   httpServer,
		eventHooks:   o.eventHooks,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the federation HTTP listener,
// then blocks until ctx is cancelled or a fatal server error occurs. On
// return, Shutdown is called automatically — callers should not call
// Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	if a.outbox != nil {
		a.outbox.Start(ctx)
	}
	for _, cl := range a.fedClients {
		go cl.Run(ctx)
	}

	go a.temporalLoop(ctx)
	go a.merkleLoop(ctx)
	go a.embeddingBackfillLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains the federation listener and outbound peer connections,
// stops the Qdrant outbox, and closes the store and telemetry provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("signet shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	for _, cl := range a.fedClients {
		cl.Stop()
	}
	if a.outbox != nil {
		a.outbox.Stop()
	}
	if a.qdrantIndex != nil {
		_ = a.qdrantIndex.Close()
	}
	_ = a.otelShutdown(context.Background())
	_ = a.db.Close()

	a.logger.Info("signet stopped")
	return nil
}

// DID returns this daemon's did:key identifier.
func (a *App) DID() string { return a.signer.DID() }

// ── Background loops ────────────────────────────────────────────────────

func (a *App) temporalLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TemporalRecomputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if n, err := temporal.RecomputeAll(opCtx, a.db, time.Now().UTC(), a.cfg.TemporalBatchSize); err != nil {
				a.logger.Warn("temporal recompute failed", "error", err)
			} else if n > 0 {
				a.logger.Info("temporal recompute complete", "changed", n)
			}
			cancel()
		}
	}
}

func (a *App) merkleLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.MerkleBuildInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			root, err := merkle.BuildAndStore(opCtx, a.db, a.signer, a.anchorer())
			if err != nil {
				a.logger.Warn("merkle root build failed", "error", err)
			} else if root != "" {
				a.logger.Info("merkle root built", "root", root)
			}
			cancel()
		}
	}
}

func (a *App) embeddingBackfillLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.OutboxPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if n, err := search.BackfillEmbeddings(opCtx, a.db, a.embedder, a.cfg.OutboxBatchSize); err != nil {
				a.logger.Warn("embedding backfill failed", "error", err)
			} else if n > 0 {
				a.logger.Info("embedding backfill complete", "count", n)
			}
			cancel()
		}
	}
}

// anchorer returns a.chain adapted to merkle.Anchorer, or nil if no Chain
// was configured — BuildAndStore treats a nil Anchorer as "local-only".
func (a *App) anchorer() merkle.Anchorer {
	if a.chain == nil {
		return nil
	}
	return &chainAnchorAdapter{chain: a.chain}
}

type chainAnchorAdapter struct {
	chain Chain
}

func (c *chainAnchorAdapter) Anchor(ctx context.Context, rootHex string) (string, string, error) {
	receipt, err := c.chain.Anchor(ctx, rootHex)
	if err != nil {
		return "", "", err
	}
	return "", receipt.TxID, nil
}

// ── Public operations ───────────────────────────────────────────────────

// WriteMemoryInput is the set of fields a caller supplies to record a
// memory; everything else (id, content hash, timestamps, strength) is
// derived by the store.
type WriteMemoryInput struct {
	Content    string
	Type       MemoryType
	Category   *string
	Tags       []string
	Who        *string
	Confidence float64
	Importance float64
	Pinned     bool
	// Sign attaches this daemon's signature over the memory's content.
	Sign bool
}

// WriteMemory records a new memory, signs it if requested, and — unless the
// write was a content-hash duplicate — fires OnMemoryWritten and runs
// contradiction detection against existing memories in the background.
func (a *App) WriteMemory(ctx context.Context, in WriteMemoryInput) (Memory, bool, error) {
	result, err := a.db.InsertMemory(ctx, model.NewMemoryInput{
		Content:    in.Content,
		Type:       model.MemoryType(in.Type),
		Category:   in.Category,
		Tags:       in.Tags,
		Who:        in.Who,
		Confidence: in.Confidence,
		Importance: in.Importance,
		Pinned:     in.Pinned,
		Sign:       in.Sign,
	}, a.signFn)
	if err != nil {
		return Memory{}, false, fmt.Errorf("signet: write memory: %w", err)
	}

	m, err := a.db.Get(ctx, result.ID)
	if err != nil {
		return Memory{}, false, fmt.Errorf("signet: write memory: reload: %w", err)
	}
	pub := toPublicMemory(m)

	if !result.Duplicate {
		a.fireOnMemoryWritten(pub)
		go a.checkContradictions(pub)
	}
	return pub, result.Duplicate, nil
}

func (a *App) signFn(content []byte) (sig string, signerDID string, err error) {
	return base64.StdEncoding.EncodeToString(a.signer.Sign(content)), a.signer.DID(), nil
}

// SearchQuery is the set of inputs to Search.
type SearchQuery struct {
	Text    string
	Vector  []float32
	Filters SearchFilters
	Limit   int
}

// Search runs hybrid (keyword + vector) recall over stored memories.
func (a *App) Search(ctx context.Context, q SearchQuery) ([]Memory, error) {
	memories, _, err := a.searchEngine.Search(ctx, search.Query{
		Text:   q.Text,
		Vector: q.Vector,
		Filter: toMemoryFilter(q.Filters),
		Limit:  q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("signet: search: %w", err)
	}
	return toPublicMemories(memories), nil
}

// Forget soft-deletes a memory by id, recording reason as the deletion's
// audit trail entry.
func (a *App) Forget(ctx context.Context, id string, reason string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("signet: forget: parse id: %w", err)
	}
	return a.db.SoftDelete(ctx, uid, reason)
}

// Recover undoes a prior Forget, provided the memory hasn't been purged.
func (a *App) Recover(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("signet: recover: parse id: %w", err)
	}
	return a.db.Recover(ctx, uid)
}

// checkContradictions runs in the background after a non-duplicate write: it
// recalls similar existing memories and, if a Judge is configured, asks it
// to adjudicate each candidate pair. Confirmed contradictions are persisted
// and reported via OnContradictionDetected.
func (a *App) checkContradictions(m Memory) {
	if a.judge == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candidates, _, err := a.searchEngine.Search(ctx, search.Query{Text: m.Content, Limit: 6})
	if err != nil {
		a.logger.Warn("contradiction check: recall failed", "error", err)
		return
	}

	newID, err := uuid.Parse(m.ID)
	if err != nil {
		a.logger.Warn("contradiction check: parse new memory id", "error", err)
		return
	}

	for _, c := range candidates {
		if c.ID == newID {
			continue
		}
		contradiction := Contradiction{NewMemory: m, OldMemory: toPublicMemory(c)}
		verdict, err := a.judge.Adjudicate(ctx, contradiction)
		if err != nil {
			a.logger.Warn("judge adjudicate failed", "error", err)
			continue
		}
		if !verdict.Conflicting {
			continue
		}

		record := model.Contradiction{
			NewMemoryID: newID,
			OldMemoryID: c.ID,
			Reasoning:   verdict.Reasoning,
		}
		if _, err := a.db.InsertContradiction(ctx, record); err != nil {
			a.logger.Warn("insert contradiction failed", "error", err)
			continue
		}
		a.fireOnContradictionDetected(contradiction, verdict)
	}
}

func (a *App) fireOnMemoryWritten(m Memory) {
	if len(a.eventHooks) == 0 {
		return
	}
	hooks := a.eventHooks
	logger := a.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnMemoryWritten(ctx, m); err != nil {
				logger.Warn("event hook OnMemoryWritten failed", "error", err)
			}
		}
	}()
}

func (a *App) fireOnContradictionDetected(c Contradiction, v Verdict) {
	if len(a.eventHooks) == 0 {
		return
	}
	hooks := a.eventHooks
	logger := a.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, h := range hooks {
			if err := h.OnContradictionDetected(ctx, c, v); err != nil {
				logger.Warn("event hook OnContradictionDetected failed", "error", err)
			}
		}
	}()
}

// ── Adapters between public and internal interfaces ────────────────────

// embedderAdapter lets a user-supplied Embedder stand in for
// internal/embedding.Provider.
type embedderAdapter struct {
	e Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.e.Embed(ctx, text)
}

func (a *embedderAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return a.e.EmbedBatch(ctx, texts)
}

func (a *embedderAdapter) Dimensions() int { return a.e.Dimensions() }

// searcherAdapter lets a user-supplied Searcher stand in for
// internal/search.Searcher.
type searcherAdapter struct {
	s Searcher
}

func (a *searcherAdapter) Search(ctx context.Context, embedding []float32, filter model.MemoryFilter, limit int) ([]search.Result, error) {
	results, err := a.s.Search(ctx, embedding, toPublicFilters(filter), limit)
	if err != nil {
		return nil, err
	}
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.MemoryID)
		if err != nil {
			continue
		}
		out = append(out, search.Result{MemoryID: id, Score: r.Score, Source: "vector"})
	}
	return out, nil
}

func (a *searcherAdapter) Healthy(ctx context.Context) error {
	return a.s.Healthy(ctx)
}

// ── Converters ──────────────────────────────────────────────────────────

func toPublicMemory(m model.Memory) Memory {
	return Memory{
		ID:                m.ID.String(),
		ContentHash:       m.ContentHash,
		Content:           m.Content,
		NormalizedContent: m.NormalizedContent,
		Type:              MemoryType(m.Type),
		Category:          m.Category,
		Tags:              m.Tags,
		Who:               m.Who,
		Confidence:        m.Confidence,
		Importance:        m.Importance,
		Pinned:            m.Pinned,
		Strength:          m.Strength,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toPublicMemories(ms []model.Memory) []Memory {
	out := make([]Memory, len(ms))
	for i, m := range ms {
		out[i] = toPublicMemory(m)
	}
	return out
}

func toMemoryFilter(f SearchFilters) model.MemoryFilter {
	var mt *model.MemoryType
	if f.Type != nil {
		t := model.MemoryType(*f.Type)
		mt = &t
	}
	return model.MemoryFilter{
		Type:          mt,
		Category:      f.Category,
		Tags:          f.Tags,
		Who:           f.Who,
		Pinned:        f.Pinned,
		ImportanceMin: f.ImportanceMin,
		CreatedSince:  f.CreatedSince,
	}
}

func toPublicFilters(f model.MemoryFilter) SearchFilters {
	var mt *MemoryType
	if f.Type != nil {
		t := MemoryType(*f.Type)
		mt = &t
	}
	return SearchFilters{
		Type:          mt,
		Category:      f.Category,
		Tags:          f.Tags,
		Who:           f.Who,
		Pinned:        f.Pinned,
		ImportanceMin: f.ImportanceMin,
		CreatedSince:  f.CreatedSince,
	}
}
