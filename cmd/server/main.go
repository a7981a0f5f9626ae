// cmd/server is the main entrypoint for a KV store node.
//
// Usage:
//
//	server [--bootstrap host:port] <host> <port>
//
// The --bootstrap flag must come before the positional arguments; flag
// parsing stops at the first positional argument.
//
// Every node is symmetric: the "bootstrap node" is just an ordinary node
// that happens to be started first at a well-known address. A later node
// bootstraps into the cluster by asking the bootstrap node for its routing
// table, then asking a random member of that table to add it.
package main

import (
	"context"
	"distributed-kvstore/internal/api"
	"distributed-kvstore/internal/cluster"
	"distributed-kvstore/internal/config"
	"distributed-kvstore/internal/store"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	bootstrap := flag.String("bootstrap", config.BootstrapNode, "host:port of the cluster's bootstrap node")
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: server [--bootstrap host:port] <host> <port>")
		os.Exit(1)
	}
	host := args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatalf("invalid port %q: %v", args[1], err)
	}

	bootstrapHost, bootstrapPort, err := splitHostPort(*bootstrap)
	if err != nil {
		log.Fatalf("invalid --bootstrap %q: %v", *bootstrap, err)
	}

	// ── Storage + node glue ─────────────────────────────────────────────────
	s := store.New()
	node := cluster.NewNode(host, port, s)

	if err := node.BootstrapJoin(bootstrapHost, bootstrapPort); err != nil {
		log.Printf("[join] failed to join via bootstrap %s: %v (continuing as singleton cluster)", *bootstrap, err)
	}

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(node)
	handler.Register(router)

	router.GET("/health", func(c *gin.Context) {
		g := node.Gossip()
		g.Lock()
		nodeCount := g.RoutingTable().NodeCount()
		g.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"node":   node.NodeID,
			"status": "ok",
			"nodes":  nodeCount,
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	go func() {
		log.Printf("Node %s listening (replicas=%d)", node.NodeID, config.VirtualNodeReplicas)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down node", node.NodeID)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := splitLast(addr, ':')
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

func splitLast(s string, sep byte) (string, string, error) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == sep {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing %q separator in %q", string(sep), s)
}
