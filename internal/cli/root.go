package cli

import (
	"fmt"
	"os"

	"github.com/lowc1012/authguard/internal/config"
	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main to record build information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "authguard",
		Short:         "Auth request loop guard",
		Long:          "authguard fronts an auth-session endpoint and stops browser sessions that check authentication in a loop.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newFlagsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExitWithError prints err and exits with status 1.
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	log.Sync()
	os.Exit(1)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// openStore returns the flag store selected by cfg and a close function.
// pinger is nil for the in-memory store.
func openStore(cfg *config.Config) (store flagstore.Store, pinger *flagstore.RedisStore, closeFn func() error) {
	if cfg.Redis.Addr == "" {
		return flagstore.NewMemoryStore(), nil, func() error { return nil }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rs := flagstore.NewRedisStore(client, cfg.Flags.TTL, cfg.Flags.KeyPrefix)
	return rs, rs, client.Close
}
