package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/core/store"
	"github.com/solatis/dispatchkeeper/internal/dispatch"
	"github.com/solatis/dispatchkeeper/internal/logging"
)

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "dispatchkeeper",
	Short: "DispatchKeeper alarm dispatch rule manager",
	Long: `DispatchKeeper stores prioritized alarm dispatch rule groups and previews
how historical alerts would be routed by them before changes are saved.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...), defaults to DK_DB_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

func newLogger() (*zap.Logger, error) {
	logger, err := logging.New(logLevel, logFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

func openDatabase() (*sqlx.DB, error) {
	url := dbURL
	if url == "" {
		url = os.Getenv("DK_DB_URL")
	}
	if url == "" {
		return nil, fmt.Errorf("--db-url required")
	}
	database, err := db.Open(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// storeEnv is the database, queries and store shared by the data commands.
type storeEnv struct {
	database *sqlx.DB
	queries  *db.Queries
	store    *store.Store
}

func (e *storeEnv) Close() error {
	return e.database.Close()
}

// openStore opens the database and wraps it in a store. A nil publisher
// drops group change events.
func openStore(publisher events.Publisher, logger *zap.Logger) (*storeEnv, error) {
	database, err := openDatabase()
	if err != nil {
		return nil, err
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load queries: %w", err)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &storeEnv{
		database: database,
		queries:  queries,
		store:    store.New(queries, publisher, logger),
	}, nil
}

// loadGroup returns the stored group id with its rules.
func loadGroup(ctx context.Context, st *store.Store, id int64) (*dispatch.Group, error) {
	info, err := st.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	g := dispatch.NewGroup(info)
	if err := dispatch.LoadGroupRules(ctx, g, st); err != nil {
		return nil, err
	}
	return g, nil
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "dispatchkeeper"
}
