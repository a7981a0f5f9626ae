// Package api wires up the Gin HTTP router with all handler functions.
package api

import (
	"distributed-kvstore/internal/cluster"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	node *cluster.Node
}

// NewHandler creates a Handler.
func NewHandler(node *cluster.Node) *Handler {
	return &Handler{node: node}
}

// Register mounts all routes on r, per spec §6.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/routing_table", h.RoutingTable)
	r.GET("/kv", h.Get)
	r.PUT("/kv", h.Put)
	r.POST("/join", h.Join)
	r.POST("/gossip", h.Gossip)
}

// RoutingTable handles GET /routing_table.
func (h *Handler) RoutingTable(c *gin.Context) {
	g := h.node.Gossip()
	g.Lock()
	table := g.RoutingTable().Serialize()
	g.Unlock()
	c.JSON(http.StatusOK, table)
}

// putBody is the wire format for PUT /kv.
type putBody struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// Put handles PUT /kv. The Routing-Version header drives whether a fresher
// routing table is piggybacked onto the response.
func (h *Handler) Put(c *gin.Context) {
	var body putBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": cluster.ErrMalformedRequest.Error()})
		return
	}

	routingUpdate := h.node.CheckRoutingVersion(c.GetHeader("Routing-Version"))

	if err := h.node.Put(body.Key, body.Value); err != nil {
		h.respondError(c, err, routingUpdate)
		return
	}

	resp := gin.H{"status": "ok", "message": fmt.Sprintf("Key %s stored on %s", body.Key, h.node.NodeID)}
	if routingUpdate != nil {
		resp["routing_table"] = routingUpdate
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /kv?key=....
func (h *Handler) Get(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": cluster.ErrMalformedRequest.Error()})
		return
	}

	routingUpdate := h.node.CheckRoutingVersion(c.GetHeader("Routing-Version"))

	value, err := h.node.Get(key)
	if err != nil {
		h.respondError(c, err, routingUpdate)
		return
	}

	resp := gin.H{"key": key, "value": value}
	if routingUpdate != nil {
		resp["routing_table"] = routingUpdate
	}
	c.JSON(http.StatusOK, resp)
}

// joinBody is the wire format for POST /join.
type joinBody struct {
	Host string `json:"host" binding:"required"`
	Port int    `json:"port" binding:"required"`
}

// Join handles POST /join: adds the announcing node and fans out the
// updated routing table via gossip immediately.
func (h *Handler) Join(c *gin.Context) {
	var body joinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": cluster.ErrMalformedRequest.Error()})
		return
	}

	h.node.Join(body.Host, body.Port)
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": fmt.Sprintf("%s:%d added to routing table.", body.Host, body.Port),
	})
}

// Gossip handles POST /gossip.
func (h *Handler) Gossip(c *gin.Context) {
	var body cluster.GossipPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": cluster.ErrMalformedGossip.Error()})
		return
	}

	if err := h.node.Gossip().ReceiveGossip(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps a cluster error to its spec §7 status code, piggybacking
// a routing table update when present (most useful on ErrNotOwner).
func (h *Handler) respondError(c *gin.Context, err error, routingUpdate *cluster.SerializedTable) {
	resp := gin.H{"error": err.Error()}
	if routingUpdate != nil {
		resp["routing_table"] = routingUpdate
	}

	switch {
	case errors.Is(err, cluster.ErrNotOwner):
		c.JSON(http.StatusForbidden, resp)
	case errors.Is(err, cluster.ErrNotFound):
		c.JSON(http.StatusNotFound, resp)
	default:
		c.JSON(http.StatusInternalServerError, resp)
	}
}
