package control

import (
	"net/http"
	"time"

	"crushstore/internal/daemon"

	"github.com/gin-gonic/gin"
)

// NewServer builds the admin HTTP server for router, ready to
// ListenAndServe on addr. Mirrors the teacher's gin.New() +
// Logger/Recovery + http.Server construction.
func NewServer(addr string, router *daemon.Router) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(Logger(), Recovery())

	NewHandler(router).Register(engine)

	return &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
