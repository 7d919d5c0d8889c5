// Package appctx threads the application's constructed dependencies
// (config, logger, database) through the process as an
// explicit struct instead of ambient package-level singletons.
package appctx

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/internal/config"
)

// Context bundles process-wide dependencies constructed once at startup.
type Context struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
}

// New builds a Context from already-constructed dependencies.
func New(cfg *config.Config, logger *zap.Logger, db *sqlx.DB) *Context {
	return &Context{Config: cfg, Logger: logger, DB: db}
}
