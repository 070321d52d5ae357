// Package server hosts the bespoke agent HTTP API on a system under test.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fancylads/bespoke/internal/config"
)

const (
	ProductionServer string = "prod"
	DevServer        string = "dev"
	apiV1            string = "/api/v1"
)

type Server struct {
	srv *http.Server
}

func NewServer(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup)) (*Server, error) {
	gin.SetMode(gin.DebugMode)
	if cfg.Agent.ServerMode == ProductionServer {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.MaxMultipartMemory = 64 << 20 // max 64Mb

	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.Agent.HTTPPort),
		Handler: engine,
	}

	router := engine.Group(apiV1)

	router.Use(
		ginzap.Ginzap(zap.S().Desugar(), time.RFC3339, true),
		ginzap.RecoveryWithZap(zap.S().Desugar(), true),
	)

	if cfg.Auth.Enabled {
		secret, err := readJWTSecret(cfg.Auth.JWTSecretFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load jwt secret: %w", err)
		}
		router.Use(TokenAuth(secret))
	}

	registerHandlerFn(router)

	return &Server{srv: srv}, nil
}

func (r *Server) Start(ctx context.Context) error {
	return r.srv.ListenAndServe()
}

func (r *Server) Stop(ctx context.Context) {
	if err := r.srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("server shutdown", "error", err)
	}
}
