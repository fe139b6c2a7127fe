package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/hub"
	"github.com/SunYerim/StockOfGalaxy/cmd/gateway/internal/repository"
	"github.com/SunYerim/StockOfGalaxy/pkg/catalog"
	"github.com/SunYerim/StockOfGalaxy/pkg/rowstore"
)

type Handler struct {
	hub       *hub.Hub
	catalog   *catalog.Catalog
	snapshots repository.SnapshotStore
	logger    *zap.Logger
}

func NewHandler(h *hub.Hub, cat *catalog.Catalog, snapshots repository.SnapshotStore, logger *zap.Logger) *Handler {
	return &Handler{hub: h, catalog: cat, snapshots: snapshots, logger: logger}
}

// NewRouter wires the websocket endpoint and the read-only REST routes.
func NewRouter(h *Handler, allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Upgrade", "Connection"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/ws", h.ServeWS)
	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/catalog", h.GetCatalog)
	api.GET("/rows", h.GetRows)
	return r
}

func (h *Handler) ServeWS(c *gin.Context) {
	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub, h.logger)
	client.Start()
}

// GetCatalog returns the instruments in display order.
func (h *Handler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": h.catalog.Instruments()})
}

// GetRows returns a one-shot board built from the stored snapshots. An empty
// codes query means the whole catalog.
func (h *Handler) GetRows(c *gin.Context) {
	instruments := h.catalog.Instruments()
	if q := c.Query("codes"); q != "" {
		parts := strings.Split(q, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		instruments = h.catalog.Subset(parts)
	}
	if len(instruments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no known codes requested"})
		return
	}

	codes := make([]string, len(instruments))
	for i, inst := range instruments {
		codes[i] = inst.Code
	}

	msgs, err := h.snapshots.GetSnapshots(c.Request.Context(), codes)
	if err != nil {
		h.logger.Error("Failed to fetch snapshots", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch prices"})
		return
	}

	rows := rowstore.Seed(instruments)
	for _, msg := range msgs {
		rows, _ = rowstore.Reconcile(rows, msg)
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.snapshots.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.hub.Sessions()})
}
