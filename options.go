package signet

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	home            string
	port            int
	databasePath    string
	logger          *slog.Logger
	version         string
	embedder        Embedder
	searcher        Searcher
	judge           Judge
	chain           Chain
	eventHooks      []EventHook
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
	extraMigrations []fs.FS
}

// WithHome overrides the agent home directory (SIGNET_HOME env var), where
// agent.yaml, the key material, and the default database live.
func WithHome(home string) Option {
	return func(o *resolvedOptions) { o.home = home }
}

// WithPort overrides the federation listen port from config (SIGNET_PORT
// env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabasePath overrides the SQLite database path from agent.yaml.
func WithDatabasePath(path string) Option {
	return func(o *resolvedOptions) { o.databasePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and
// logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbedder replaces the auto-detected embedding provider
// (Ollama/OpenAI/noop). The provided implementation must satisfy the
// Embedder interface.
func WithEmbedder(e Embedder) Option {
	return func(o *resolvedOptions) { o.embedder = e }
}

// WithSearcher replaces the auto-detected Qdrant vector index or in-process
// fallback used for memory recall.
func WithSearcher(s Searcher) Option {
	return func(o *resolvedOptions) { o.searcher = s }
}

// WithJudge sets the Judge that confirms contradiction candidates. There is
// no built-in fallback: without a Judge, contradiction checking is skipped.
// Only the last call wins — if multiple are registered, only the last
// takes effect. Candidate finding still runs through the recall path; the
// Judge makes only the adjudication call.
func WithJudge(j Judge) Option {
	return func(o *resolvedOptions) { o.judge = j }
}

// WithChain configures external anchoring of Merkle roots. Only the last
// call wins. Without one, Merkle roots are still built, signed, and stored
// locally; there's simply nothing external to anchor them to.
func WithChain(c Chain) Option {
	return func(o *resolvedOptions) { o.chain = c }
}

// WithEventHook registers an event hook to receive memory lifecycle
// notifications. Multiple hooks may be registered; all registered hooks
// receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration
// order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every
// request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the built-in migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
