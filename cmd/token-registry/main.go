package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/d3v3l0/waiter/pkg/clustercalc"
	"github.com/d3v3l0/waiter/pkg/config"
	"github.com/d3v3l0/waiter/pkg/events"
	"github.com/d3v3l0/waiter/pkg/log"
	"github.com/d3v3l0/waiter/pkg/metrics"
	"github.com/d3v3l0/waiter/pkg/registry"
	"github.com/d3v3l0/waiter/pkg/tokenapi"
	"github.com/d3v3l0/waiter/pkg/tokenauthz"
	"github.com/d3v3l0/waiter/pkg/tokenkv"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "token-registry",
	Short:   "Token registry - named, versioned service-description storage",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("token-registry version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format; overrides config")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(tokenCmd)
}

var loadedConfig config.Config

func initLogging() {
	path, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if lvl, _ := rootCmd.PersistentFlags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if json, _ := rootCmd.PersistentFlags().GetBool("log-json"); json {
		cfg.LogJSON = true
	}
	loadedConfig = cfg

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
}

// serveCmd runs the registry process: it opens the bbolt store, wires
// the authorizer, cluster calculator, peer broadcaster and event bus,
// and serves the HTTP surface until it receives SIGINT/SIGTERM.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the token registry HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadedConfig

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", false, "opening")
		metrics.RegisterComponent("api", false, "starting")

		db, err := tokenkv.OpenBolt(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
		}
		defer db.Close()
		store := tokenkv.NewStore(db, cfg.CacheCapacity)
		metrics.RegisterComponent("store", true, "ready")

		authz := tokenauthz.NewRoleGate(cfg.Admins)

		cluster, err := loadCluster(cfg)
		if err != nil {
			return err
		}

		var peers registry.Broadcaster
		if len(cfg.Peers) > 0 {
			peers = registry.NewHTTPBroadcaster(cfg.Peers, time.Duration(cfg.PeerTimeoutSeconds)*time.Second)
		}

		bus := events.NewBroker()
		bus.Start()
		defer bus.Stop()

		sub := bus.Subscribe()
		defer bus.Unsubscribe(sub)
		go logEvents(sub)

		reserved := make(map[string]bool, len(cfg.ReservedNames))
		for _, n := range cfg.ReservedNames {
			reserved[n] = true
		}

		reg := registry.New(store, authz, cluster, nil, peers, bus, registry.Config{
			HistoryLimit: cfg.HistoryLimit,
			DefaultQuota: cfg.DefaultQuota,
			Reserved:     reserved,
		})

		collector := metrics.NewCollector(reg)
		collector.Start()
		defer collector.Stop()

		server := tokenapi.NewServer(reg, cluster, tokenapi.NewHeaderHostResolver("", nil), tokenapi.NewHeaderUserResolver(""))

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		time.Sleep(100 * time.Millisecond)
		metrics.RegisterComponent("api", true, "ready")

		log.Logger.Info().Str("addr", cfg.ListenAddr).Str("data-dir", cfg.DataDir).Msg("token registry listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func loadCluster(cfg config.Config) (clustercalc.Calculator, error) {
	if cfg.ClusterMapFile == "" {
		return &clustercalc.StaticCalculator{HostClusters: map[string]string{}}, nil
	}
	c, err := clustercalc.LoadStaticCalculator(cfg.ClusterMapFile)
	if err != nil {
		return nil, fmt.Errorf("load cluster map %s: %w", cfg.ClusterMapFile, err)
	}
	return c, nil
}

func logEvents(sub events.Subscriber) {
	for ev := range sub {
		logger := log.WithComponent("events")
		if ev.Token != "" {
			logger = log.WithToken(logger, ev.Token)
		}
		if ev.Owner != "" {
			logger = log.WithOwner(logger, ev.Owner)
		}
		logger.Info().Str("type", string(ev.Type)).Msg("token event")
	}
}

// reindexCmd rebuilds the owner directory and shards directly against
// the on-disk store, without going through a running server. It is
// meant for operators repairing an index after manual data-dir
// surgery, the same offline-maintenance posture as a standalone
// migration tool.
var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the owner directory and shards from the token records on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadedConfig
		db, err := tokenkv.OpenBolt(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
		}
		defer db.Close()
		store := tokenkv.NewStore(db, cfg.CacheCapacity)

		authz := tokenauthz.NewRoleGate(cfg.Admins)
		cluster, err := loadCluster(cfg)
		if err != nil {
			return err
		}
		reg := registry.New(store, authz, cluster, nil, nil, nil, registry.Config{HistoryLimit: cfg.HistoryLimit})

		names, err := reg.AllTokenNames()
		if err != nil {
			return fmt.Errorf("enumerate tokens: %w", err)
		}
		if err := reg.Reindex(names); err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		fmt.Printf("reindexed %d tokens\n", len(names))
		return nil
	},
}

// tokenCmd groups the end-user-facing token operations, each of which
// talks to a running server over HTTP rather than touching the data
// directory directly.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and mutate tokens on a running token-registry server",
}

func init() {
	tokenCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "Base URL of the token-registry server")
	tokenCmd.PersistentFlags().String("user", "", "Authenticated user to send as X-Authenticated-User")

	tokenCmd.AddCommand(tokenGetCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
	tokenCmd.AddCommand(tokenListCmd)

	tokenSetCmd.Flags().String("cmd", "", "Command the token launches")
	tokenSetCmd.Flags().Float64("cpus", 0, "CPU limit in cores")
	tokenSetCmd.Flags().Int64("mem", 0, "Memory limit in bytes")
	tokenSetCmd.Flags().String("health-check-url", "", "HTTP health check URL")
	tokenSetCmd.Flags().String("health-check-proto", "", "Health check protocol")
	tokenSetCmd.Flags().String("run-as-user", "", "Identity the token runs as")
	tokenSetCmd.Flags().String("permitted-user", "", "Identity permitted to invoke the token")
	tokenSetCmd.Flags().String("if-match", "", "ETag the update must match")
	tokenSetCmd.Flags().Bool("admin", false, "Perform the write in admin mode")

	tokenDeleteCmd.Flags().String("if-match", "", "ETag the delete must match")
	tokenDeleteCmd.Flags().Bool("hard", false, "Hard-delete instead of soft-delete")

	tokenGetCmd.Flags().Bool("include-deleted", false, "Include a soft-deleted token")
	tokenGetCmd.Flags().Bool("include-metadata", false, "Include system metadata and the ETag")

	tokenListCmd.Flags().String("owner", "", "Restrict the listing to one owner")
	tokenListCmd.Flags().Bool("include-deleted", false, "Include soft-deleted tokens")
}

var tokenGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Fetch a token's current record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		includeDeleted, _ := cmd.Flags().GetBool("include-deleted")
		includeMetadata, _ := cmd.Flags().GetBool("include-metadata")

		query := "?token=" + args[0]
		var include []string
		if includeDeleted {
			include = append(include, "include=deleted")
		}
		if includeMetadata {
			include = append(include, "include=metadata")
		}
		for _, v := range include {
			query += "&" + v
		}

		return doAndPrint(http.MethodGet, server+"/token"+query, nil, nil)
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		ifMatch, _ := cmd.Flags().GetString("if-match")
		admin, _ := cmd.Flags().GetBool("admin")

		body := map[string]any{}
		if v, _ := cmd.Flags().GetString("cmd"); v != "" {
			body["cmd"] = v
		}
		if v, _ := cmd.Flags().GetFloat64("cpus"); v != 0 {
			body["cpus"] = v
		}
		if v, _ := cmd.Flags().GetInt64("mem"); v != 0 {
			body["mem"] = v
		}
		if v, _ := cmd.Flags().GetString("health-check-url"); v != "" {
			body["health-check-url"] = v
		}
		if v, _ := cmd.Flags().GetString("health-check-proto"); v != "" {
			body["health-check-proto"] = v
		}
		if v, _ := cmd.Flags().GetString("run-as-user"); v != "" {
			body["run-as-user"] = v
		}
		if v, _ := cmd.Flags().GetString("permitted-user"); v != "" {
			body["permitted-user"] = v
		}

		target := server + "/token?token=" + args[0]
		if admin {
			target += "&update-mode=admin"
		}
		headers := map[string]string{"X-Authenticated-User": user}
		if ifMatch != "" {
			headers["If-Match"] = ifMatch
		}
		return doAndPrint(http.MethodPost, target, body, headers)
	},
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		user, _ := cmd.Flags().GetString("user")
		ifMatch, _ := cmd.Flags().GetString("if-match")
		hard, _ := cmd.Flags().GetBool("hard")

		target := server + "/token?token=" + args[0]
		if hard {
			target += "&hard-delete=true"
		}
		headers := map[string]string{"X-Authenticated-User": user}
		if ifMatch != "" {
			headers["If-Match"] = ifMatch
		}
		return doAndPrint(http.MethodDelete, target, nil, headers)
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		owner, _ := cmd.Flags().GetString("owner")
		includeDeleted, _ := cmd.Flags().GetBool("include-deleted")

		target := server + "/tokens?"
		if owner != "" {
			target += "owner=" + owner + "&"
		}
		if includeDeleted {
			target += "include=deleted"
		}
		return doAndPrint(http.MethodGet, target, nil, nil)
	},
}

// doAndPrint issues an HTTP request against the token registry server
// and pretty-prints the JSON response body to stdout.
func doAndPrint(method, url string, body map[string]any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, resp.Body); err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, out.Bytes(), "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(out.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
