package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"webpify/internal/adapters/backup"
	"webpify/internal/adapters/converter"
	"webpify/internal/adapters/rewriter"
	"webpify/internal/core/domain"
	"webpify/internal/core/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	flags := newFlags(os.Stdout)
	if err := parseFlags(flags, os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
	if help, _ := flags.GetBool("help"); help {
		flags.Usage()
		os.Exit(0)
	}

	readConfig(flags)

	dryRun, _ := flags.GetBool("dry-run")
	force, _ := flags.GetBool("force")
	noWebP, _ := flags.GetBool("no-webp")
	restore, _ := flags.GetBool("restore")
	watch, _ := flags.GetBool("watch")

	cfg := domain.Config{
		MaxWidth:  viper.GetInt("images.max_width"),
		MaxHeight: viper.GetInt("images.max_height"),
		Quality:   viper.GetInt("images.quality"),
		DryRun:    dryRun,
		Force:     force,
		NoWebP:    noWebP,
		Watch:     watch,
		ImagesDir: viper.GetString("images.dir"),
		BackupDir: viper.GetString("images.backup_dir"),
		PostsDir:  viper.GetString("posts.dir"),
		PostsExt:  viper.GetString("posts.ext"),
	}

	if cfg.Quality < 1 || cfg.Quality > 100 {
		log.Fatal().Int("quality", cfg.Quality).Msg("quality must be between 1 and 100")
	}
	if cfg.MaxWidth < 1 || cfg.MaxHeight < 1 {
		log.Fatal().Msg("width and height bounds must be positive")
	}
	if restore && watch {
		log.Fatal().Msg("--watch cannot be combined with --restore")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	docs := rewriter.NewMarkdownRewriter(cfg.PostsDir, cfg.PostsExt, cfg.DryRun)
	store := backup.NewStore(cfg.BackupRoot())

	if restore {
		stats, err := service.NewRestorer(store, docs, cfg).Run()
		if err != nil {
			log.Fatal().Err(err).Msg("restore failed")
		}
		fmt.Printf("\nRestored %d image(s), reverted %d document(s).\n", stats.Restored, stats.DocsReverted)
		return
	}

	magick, err := converter.NewMagickTool()
	if err != nil {
		log.Fatal().Err(err).Msg("imagemagick is required but was not found")
	}
	if !cfg.NoWebP && !magick.SupportsWebP() {
		log.Fatal().Msg("imagemagick has no WebP support; install the webp delegate or pass --no-webp")
	}

	optimizer := service.NewOptimizer(magick, magick, docs, store, cfg)
	stats, err := optimizer.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("optimization aborted")
	}

	printSummary(stats, cfg)

	if cfg.Watch {
		if err := service.NewWatcher(optimizer, cfg).Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("watch failed")
		}
	}
}

func newFlags(out io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet("webpify", pflag.ContinueOnError)
	flags.SetOutput(out)

	flags.IntP("width", "w", 1200, "maximum width in pixels, shrink-only")
	flags.IntP("height", "h", 1200, "maximum height in pixels, shrink-only")
	flags.IntP("quality", "q", 85, "compression quality, 1-100")
	flags.BoolP("dry-run", "n", false, "report intended actions without touching any file")
	flags.BoolP("force", "f", false, "reprocess images regardless of freshness")
	flags.Bool("no-webp", false, "optimize in place, skip WebP conversion")
	flags.Bool("restore", false, "restore originals from the backup store and exit")
	flags.Bool("watch", false, "keep running and reprocess images as they change")
	flags.Bool("help", false, "print usage and exit")

	flags.Usage = func() {
		fmt.Fprintln(out, "usage: webpify [flags]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Batch-converts blog post images to WebP, resizes them to web-friendly")
		fmt.Fprintln(out, "bounds, backs up originals and keeps markdown references consistent.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, flags.FlagUsages())
	}

	return flags
}

// parseFlags parses args and, on a bad or unknown flag, prints the error and
// the usage text. With ContinueOnError pflag prints neither itself.
func parseFlags(flags *pflag.FlagSet, args []string, out io.Writer) error {
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(out, err)
		flags.Usage()
		return err
	}
	return nil
}

// readConfig loads the optional webpify.toml and binds the tunable flags so
// the precedence is flag > config file > flag default.
func readConfig(flags *pflag.FlagSet) {
	viper.SetConfigName("webpify")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")

	viper.SetDefault("images.dir", "assets/img/posts")
	viper.SetDefault("images.backup_dir", ".originals")
	viper.SetDefault("posts.dir", "_posts")
	viper.SetDefault("posts.ext", ".md")

	if err := viper.BindPFlag("images.max_width", flags.Lookup("width")); err != nil {
		log.Fatal().Err(err).Msg("could not bind flags")
	}
	if err := viper.BindPFlag("images.max_height", flags.Lookup("height")); err != nil {
		log.Fatal().Err(err).Msg("could not bind flags")
	}
	if err := viper.BindPFlag("images.quality", flags.Lookup("quality")); err != nil {
		log.Fatal().Err(err).Msg("could not bind flags")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatal().Err(err).Msg("could not read config file")
		}
	}
}

func printSummary(stats domain.Stats, cfg domain.Config) {
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  images found:      %d\n", stats.Found)
	fmt.Printf("  optimized:         %d\n", stats.Optimized)
	fmt.Printf("  skipped:           %d\n", stats.Skipped)
	fmt.Printf("  errors:            %d\n", stats.Errors)
	fmt.Printf("  documents updated: %d\n", stats.DocsUpdated)

	if cfg.DryRun {
		fmt.Println("\nDry run: no files were modified.")
		return
	}

	fmt.Printf("\nOptimization complete. Originals are kept in %s.\n", cfg.BackupRoot())
	fmt.Println("Run 'webpify --restore' to undo.")
}
