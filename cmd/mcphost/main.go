// Command mcphost connects to the servers in a configuration file, prints the
// aggregated tool and resource catalogs, and optionally invokes one tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/localrivet/mcphost/host"
	"github.com/localrivet/mcphost/logx"
)

func main() {
	configPath := flag.String("config", "mcphost.json", "path to the server configuration file")
	call := flag.String("call", "", "tool to invoke after startup")
	callArgs := flag.String("args", "{}", "JSON arguments for -call")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for startup and the optional call")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime)

	if err := run(*configPath, *call, *callArgs, *timeout); err != nil {
		log.Fatalf("mcphost: %v", err)
	}
}

func run(configPath, call, callArgs string, timeout time.Duration) error {
	configs, err := host.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger := logx.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	manager := host.NewManager(host.ConnectionOptions{Logger: logger})
	defer manager.DisconnectAll()

	if err := manager.Initialize(ctx, configs); err != nil {
		return err
	}

	fmt.Printf("status   %s\n", manager.OverallStatus())
	for _, name := range manager.ServerNames() {
		fmt.Printf("server %-20s %s\n", name, manager.Status(name))
	}
	for _, tool := range manager.Tools() {
		fmt.Printf("tool     %-20s %s\n", tool.Name, tool.Description)
	}
	for _, res := range manager.Resources() {
		fmt.Printf("resource %-20s %s\n", res.URI, res.Name)
	}

	if call == "" {
		return nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(callArgs), &args); err != nil {
		return fmt.Errorf("invalid -args JSON: %w", err)
	}
	result, err := manager.CallTool(ctx, call, args)
	if err != nil {
		return fmt.Errorf("tool call %s failed: %w", call, err)
	}
	for _, content := range result.Content {
		fmt.Println(content.Text)
	}
	if result.IsError {
		return fmt.Errorf("tool %s reported an error result", call)
	}
	return nil
}
