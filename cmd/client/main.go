// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kvcli put mykey "hello world"   --server localhost:8080
//	kvcli get mykey                 --server localhost:8080
//	kvcli nodes                     --server localhost:8080
//	kvcli repl                      --server localhost:8080
//
// repl drops into the interactive shell from original_source/client.py's
// SmartClient: put/get/show_ring/refresh/exit.
package main

import (
	"bufio"
	"context"
	"distributed-kvstore/internal/client"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "CLI client for the distributed KV store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"127.0.0.1:8000", "bootstrap node address (host:port)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), nodesCmd(), replCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient(ctx context.Context) (*client.Client, error) {
	return client.New(ctx, serverAddr, timeout)
}

// ─── put ──────────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newClient(ctx)
			if err != nil {
				return err
			}
			resp, err := c.Put(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newClient(ctx)
			if err != nil {
				return err
			}
			resp, err := c.Get(ctx, args[0])
			if err == client.ErrNotFound {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── nodes ────────────────────────────────────────────────────────────────────

func nodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List all cluster nodes known to the routing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newClient(ctx)
			if err != nil {
				return err
			}
			printRing(c)
			return nil
		},
	}
}

// ─── repl ─────────────────────────────────────────────────────────────────────

func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive shell: put/get/show_ring/refresh/exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			c, err := newClient(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("[Info] Routing table loaded. Version: %d\n", c.Version())
			runRepl(ctx, c)
			return nil
		},
	}
}

func runRepl(ctx context.Context, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("[SmartClient] > ")
		if !scanner.Scan() {
			fmt.Println("\nBye!")
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		action := strings.ToLower(parts[0])

		switch {
		case action == "put" && len(parts) >= 3:
			resp, err := c.Put(ctx, parts[1], strings.Join(parts[2:], " "))
			if err != nil {
				fmt.Printf("[PUT Error] %v\n", err)
				continue
			}
			fmt.Printf("[PUT Success] %+v\n", resp)
		case action == "get" && len(parts) == 2:
			resp, err := c.Get(ctx, parts[1])
			if err == client.ErrNotFound {
				fmt.Printf("key %q not found\n", parts[1])
				continue
			}
			if err != nil {
				fmt.Printf("[GET Error] %v\n", err)
				continue
			}
			fmt.Printf("[GET Success] %+v\n", resp)
		case action == "show_ring" || action == "s":
			printRing(c)
		case action == "refresh" || action == "r":
			if err := c.Refresh(ctx, serverAddr); err != nil {
				fmt.Printf("[Error] %v\n", err)
				continue
			}
			fmt.Printf("[Info] Routing table updated to version %d.\n", c.Version())
		case action == "exit" || action == "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Commands: put <key> <value> | get <key> | show_ring | refresh | exit")
		}
	}
}

func printRing(c *client.Client) {
	nodes := c.Nodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })

	fmt.Println("\n[ Hash Ring ]")
	for _, n := range nodes {
		fmt.Printf("-> %s\n", n.NodeID)
	}
	if len(nodes) > 0 {
		fmt.Printf("-> back to %s\n\n", nodes[0].NodeID)
	}
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
