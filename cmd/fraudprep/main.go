package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/fraudprep/config"
	"github.com/malbeclabs/fraudprep/internal/dataset"
	"github.com/malbeclabs/fraudprep/internal/eda"
	"github.com/malbeclabs/fraudprep/internal/geo"
	"github.com/malbeclabs/fraudprep/internal/logging"
	"github.com/malbeclabs/fraudprep/internal/metrics"
	"github.com/malbeclabs/fraudprep/internal/pipeline"
)

var (
	configPath string
	envFile    string
	verbose    bool

	mmdbOut string

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fraudprep",
	Short: "Fraud detection data preparation",
	Long: `fraudprep cleans the e-commerce and credit card transaction datasets, maps IP
addresses to countries, derives behavioral features and writes train/test splits
with their fitted transformers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fraudprep %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full preparation pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Result, error) {
			return p.Run(ctx)
		})
	},
}

var edaCmd = &cobra.Command{
	Use:   "eda",
	Short: "Load, clean and enrich the datasets, then render exploratory plots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.Result, error) {
			return p.Explore(ctx)
		})
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <ip>...",
	Short: "Resolve IP addresses (integer or dotted IPv4) to countries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := newLogger()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		resolver, closeFn, err := openResolver(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetAutoFormatHeaders(false)
		table.SetBorder(true)
		table.SetHeader([]string{"IP", "Integer", "Country"})
		for _, arg := range args {
			ip, err := geo.ParseIP(arg)
			if err != nil {
				return err
			}
			addr := "-"
			if v4 := geo.IPv4(ip); v4 != nil {
				addr = v4.String()
			}
			table.Append([]string{addr, fmt.Sprintf("%d", ip), resolver.Country(ip)})
		}
		table.Render()
		return nil
	},
}

var buildMMDBCmd = &cobra.Command{
	Use:   "build-mmdb",
	Short: "Convert the IP range CSV into a GeoLite2-Country shaped MMDB",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if mmdbOut == "" {
			return fmt.Errorf("--out is required")
		}
		log := newLogger()
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		loader, err := dataset.Open(ctx, log)
		if err != nil {
			return err
		}
		defer loader.Close()
		ranges, err := loader.LoadIPRanges(ctx, cfg.Input.IPCountryPath)
		if err != nil {
			return err
		}

		f, err := os.Create(mmdbOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", mmdbOut, err)
		}
		n, err := geo.WriteMMDB(f, ranges)
		if err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", mmdbOut, err)
		}
		log.Info("geo: wrote mmdb", "path", mmdbOut, "ranges", len(ranges), "bytes", n)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with FRAUDPREP_* variables, ignored when missing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	addInputFlags(rootCmd.PersistentFlags())
	addRunFlags(runCmd.Flags())
	addRunFlags(edaCmd.Flags())
	buildMMDBCmd.Flags().StringVar(&mmdbOut, "out", "", "Output MMDB path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(edaCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(buildMMDBCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	log, _, _ := logging.New(logging.Options{Verbose: verbose, Console: os.Stderr})
	return log
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipeline(cmd *cobra.Command, exec func(context.Context, *pipeline.Pipeline) (*pipeline.Result, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, closeLog, err := logging.New(logging.Options{Verbose: verbose || cfg.Log.Verbose, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closeLog()

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := pipeline.New(cfg, log, pipeline.WithConsole(os.Stdout))
	if err != nil {
		return err
	}
	res, err := exec(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("pipeline: cancelled by signal")
		}
		return err
	}
	// The eda stage already printed the balance table.
	if len(res.Figures) == 0 {
		eda.RenderTable(os.Stdout, []eda.ClassBalance{res.Fraud.Balance, res.CreditCard.Balance})
	}
	return nil
}

// openResolver prefers the configured MMDB and falls back to the IP range CSV.
func openResolver(ctx context.Context, log *slog.Logger, cfg *config.Config) (geo.Resolver, func(), error) {
	if cfg.Geo.MMDBPath != "" {
		r, err := geo.OpenMMDB(log, cfg.Geo.MMDBPath)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}

	loader, err := dataset.Open(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	defer loader.Close()
	ranges, err := loader.LoadIPRanges(ctx, cfg.Input.IPCountryPath)
	if err != nil {
		return nil, nil, err
	}
	return geo.NewTable(ranges), func() {}, nil
}
