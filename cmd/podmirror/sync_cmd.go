package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/podmirror/podmirror/internal/config"
	"github.com/podmirror/podmirror/internal/kubectl"
	"github.com/podmirror/podmirror/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	forceFlag   bool
	yesFlag     bool
	noWatchFlag bool
	workersFlag int
)

var syncCmd = &cobra.Command{
	Use:   "sync <project>",
	Short: "Sync a project into its pod and watch for changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runSync(cmd, args[0])
	},
}

func init() {
	syncCmd.Flags().SortFlags = false
	syncCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "forced full resync (archive the whole tree, replace the remote copy)")
	syncCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "skip the confirmation prompt")
	syncCmd.Flags().BoolVar(&noWatchFlag, "no-watch", false, "exit after the initial sync instead of watching")
	syncCmd.Flags().IntVar(&workersFlag, "workers", 0, "max concurrent transfers (overrides config)")
}

func runSync(cmd *cobra.Command, project string) error {
	cfg, err := loadSyncConfig(cmd, project)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Debug {
		setupLogging(true)
	}

	ctx := cmd.Context()

	if !yesFlag && !cfg.SkipVerify {
		if ok := confirmSync(ctx, project, cfg); !ok {
			fmt.Println(red("aborted"))
			return nil
		}
	}

	// One sync per project; a second invocation should fail fast instead of
	// racing the first one's transfers.
	lock := flock.New(config.LockPath(project))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire project lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another sync for %q is already running", project)
	}
	defer lock.Unlock()

	client := kubectl.New(cfg.KubectlCommand, cfg.Cluster, cfg.Namespace, slog.Default())
	pod, err := client.ResolvePod(ctx, cfg.PodLabel)
	if err != nil {
		return err
	}
	slog.Info("resolved target pod", "pod", pod, "namespace", cfg.Namespace)

	policy := sync.DeleteIgnore
	if cfg.PropagateDeletes {
		policy = sync.DeletePropagate
	}

	engine := sync.NewEngine(client, sync.Options{
		LocalRoot:     cfg.LocalPath,
		RemoteRoot:    cfg.RemotePath,
		Exclude:       sync.NewExclusionSet(cfg.ExcludePaths...),
		Workers:       cfg.MaxWorkers,
		BulkThreshold: cfg.BulkThreshold,
		DebounceDelay: time.Duration(cfg.DebounceMs) * time.Millisecond,
		DeletePolicy:  policy,
		Log:           slog.Default(),
	})

	if forceFlag {
		if err := engine.ForceFullSync(ctx); err != nil {
			return err
		}
	} else {
		if _, err := engine.Reconcile(ctx); err != nil {
			return err
		}
	}

	if noWatchFlag || cfg.NoWatch {
		slog.Info("sync complete, watch disabled")
		return nil
	}

	err = engine.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("stopping")
		return nil
	}
	return err
}

// loadSyncConfig reads the project's JSON config through viper and overlays
// changed command-line flags and PODMIRROR_* environment variables.
func loadSyncConfig(cmd *cobra.Command, project string) (*config.Config, error) {
	path := filepath.Join(config.ProjectDir(project), "config.json")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("project %q is not configured, run `podmirror init --path <dir>` first", project)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config read %s: %w", path, err)
	}

	v.BindPFlag("max_workers", cmd.Flags().Lookup("workers"))
	v.SetEnvPrefix("PODMIRROR")
	v.AutomaticEnv()

	cfg := &config.Config{
		Cluster:          v.GetString("cluster"),
		Namespace:        v.GetString("namespace"),
		PodLabel:         v.GetString("pod_label"),
		RemotePath:       v.GetString("remote_path"),
		LocalPath:        v.GetString("local_path"),
		ExcludePaths:     v.GetStringSlice("exclude_paths"),
		KubectlCommand:   v.GetStringSlice("kubectl_command"),
		MaxWorkers:       v.GetInt("max_workers"),
		BulkThreshold:    v.GetInt("bulk_threshold"),
		DebounceMs:       v.GetInt("debounce_ms"),
		NoWatch:          v.GetBool("no_watch"),
		SkipVerify:       v.GetBool("skip_verify"),
		PropagateDeletes: v.GetBool("propagate_deletes"),
		Debug:            v.GetBool("debug"),
		Path:             path,
	}
	return cfg, nil
}

// confirmSync shows the settings that matter and waits for Enter. Returns
// false when the user interrupts instead.
func confirmSync(ctx context.Context, project string, cfg *config.Config) bool {
	fmt.Printf("%s\n", cyan("About to sync "+project))
	fmt.Printf("  local:     %s\n", cfg.LocalPath)
	fmt.Printf("  remote:    %s\n", cfg.RemotePath)
	fmt.Printf("  namespace: %s\n", cfg.Namespace)
	if cfg.Cluster != "" {
		fmt.Printf("  cluster:   %s\n", cfg.Cluster)
	}
	fmt.Printf("  pod label: %s\n", cfg.PodLabel)
	fmt.Print("\nPress Enter to continue (Ctrl-C to abort)... ")

	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()

	select {
	case <-done:
		fmt.Println(green("confirmed"))
		return true
	case <-ctx.Done():
		fmt.Println()
		return false
	}
}
