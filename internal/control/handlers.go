// Package control implements the daemon's HTTP admin API: the surface a
// coordinator uses to push map transitions and maintain the peer roster.
// It performs no placement logic of its own — every handler just swaps
// the Pool value behind the daemon's read-mostly atomic pointer or
// updates the peer address table.
package control

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/http"

	"crushstore/internal/daemon"
	"crushstore/internal/placement"

	"github.com/gin-gonic/gin"
)

// Handler holds the dependencies injected from the daemon's entrypoint.
type Handler struct {
	router *daemon.Router
}

// NewHandler creates a Handler wrapping router.
func NewHandler(router *daemon.Router) *Handler {
	return &Handler{router: router}
}

// Register mounts every control-plane route on r.
func (h *Handler) Register(r *gin.Engine) {
	pools := r.Group("/pools/:pool")
	pools.PUT("/map", h.SetMap)
	pools.POST("/transition/prepare", h.PrepareTransition)
	pools.POST("/transition/commit", h.CommitTransition)
	pools.POST("/transition/finish", h.FinishTransition)
	pools.GET("", h.GetPool)

	peers := r.Group("/peers/:deviceId")
	peers.PUT("", h.UpsertPeer)
	peers.DELETE("", h.RemovePeer)

	r.GET("/healthz", h.Healthz)
}

// SetMap handles PUT /pools/:pool/map. Body is a placement.StorageMap;
// this is a bootstrap-only operation — it replaces whatever Pool state
// existed, skipping the transition state machine entirely, so it should
// only ever be called once per pool, before any client traffic.
func (h *Handler) SetMap(c *gin.Context) {
	pool := placement.PoolName(c.Param("pool"))

	var m placement.StorageMap
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.router.SetPool(pool, daemon.NewNormalPool(&m))
	c.JSON(http.StatusOK, gin.H{"pool": pool, "generation": m.Generation})
}

// PrepareTransition handles POST /pools/:pool/transition/prepare. Body is
// {"next": StorageMap}; moves Normal -> TransitionPrepare.
func (h *Handler) PrepareTransition(c *gin.Context) {
	pool := placement.PoolName(c.Param("pool"))

	var body struct {
		Next placement.StorageMap `json:"next" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := h.router.Pool(pool)
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pool"})
		return
	}

	h.router.SetPool(pool, current.PrepareTransition(&body.Next))
	c.JSON(http.StatusOK, gin.H{"pool": pool, "state": "transition_prepare"})
}

// CommitTransition handles POST /pools/:pool/transition/commit: moves
// TransitionPrepare -> Transition.
func (h *Handler) CommitTransition(c *gin.Context) {
	h.advance(c, "transition", func(p *daemon.PoolState) *daemon.PoolState {
		return p.BeginTransition()
	})
}

// FinishTransition handles POST /pools/:pool/transition/finish: moves
// Transition -> Normal(current), dropping the fallback map.
func (h *Handler) FinishTransition(c *gin.Context) {
	h.advance(c, "normal", func(p *daemon.PoolState) *daemon.PoolState {
		return p.FinishTransition()
	})
}

// advance runs a state-machine step behind a panic guard, since
// PoolState's transition methods panic when called out of sequence; here
// that becomes a 409 Conflict instead of crashing the daemon.
func (h *Handler) advance(c *gin.Context, newState string, step func(*daemon.PoolState) *daemon.PoolState) {
	pool := placement.PoolName(c.Param("pool"))

	current := h.router.Pool(pool)
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pool"})
		return
	}

	next, err := safeStep(current, step)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.router.SetPool(pool, next)
	c.JSON(http.StatusOK, gin.H{"pool": pool, "state": newState})
}

func safeStep(p *daemon.PoolState, step func(*daemon.PoolState) *daemon.PoolState) (next *daemon.PoolState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return step(p), nil
}

// GetPool handles GET /pools/:pool, reporting whether the pool is known
// at all; the detailed transition state is intentionally not exposed
// since PoolState's fields are unexported (see SPEC_FULL.md §5's
// read-mostly discipline — only the daemon's own request path reads the
// Pool's shape, the control plane only ever replaces it wholesale).
func (h *Handler) GetPool(c *gin.Context) {
	pool := placement.PoolName(c.Param("pool"))
	if h.router.Pool(pool) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown pool"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pool": pool, "known": true})
}

// UpsertPeer handles PUT /peers/:deviceId. Body: {"address": "host:port"}.
func (h *Handler) UpsertPeer(c *gin.Context) {
	device, err := parseDeviceId(c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr, err := net.ResolveUDPAddr("udp", body.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.router.SetPeer(device, daemon.Peer{Address: addr, Keys: h.router.PeerKeys()})
	c.JSON(http.StatusOK, gin.H{"device": device, "address": body.Address})
}

// RemovePeer handles DELETE /peers/:deviceId.
func (h *Handler) RemovePeer(c *gin.Context) {
	device, err := parseDeviceId(c.Param("deviceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.router.RemovePeer(device)
	c.JSON(http.StatusOK, gin.H{"device": device, "removed": true})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseDeviceId(s string) (placement.DeviceId, error) {
	var id placement.DeviceId
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid device id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("device id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
