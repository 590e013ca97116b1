package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/db"
	"github.com/daviddao/mailagent/internal/display"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	cfgFile     string
	dbPath      string
	jsonOutput  bool
	quietFlag   bool
	verboseFlag bool

	cfg    config.Config
	logger zerolog.Logger
	store  *db.DB
)

var rootCmd = &cobra.Command{
	Use:           "ma",
	Short:         "ma - Chat with your Gmail inbox",
	Long:          "Mailagent: fetch Gmail messages, index them as embeddings and ask an LLM about them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		switch {
		case verboseFlag:
			level = zerolog.DebugLevel
		case quietFlag:
			level = zerolog.WarnLevel
		}
		logger = zerolog.New(
			zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
		).Level(level).With().Timestamp().Logger()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Skip DB for commands that don't need it
		switch cmd.Name() {
		case "init", "help", "version", "auth", "search", "fetch":
			return nil
		}

		// Discover database
		path := dbPath
		if path == "" {
			path = db.DiscoverDB()
		}
		if path == "" {
			return fmt.Errorf("no mailagent database found, run 'ma init' first")
		}

		store, err = db.Open(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		logger.Debug().Str("db", path).Msg("opened database")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ma version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .mailagent/ in the project root",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := db.FindProjectRoot()
		if root == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			root = wd
		}

		path := filepath.Join(root, db.DirName, "mail.db")
		s, err := db.Open(path)
		if err != nil {
			return err
		}
		s.Close()

		if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}

		ensureGitignore(root)

		if !quietFlag {
			fmt.Printf("Initialized mailagent at %s\n", path)
			fmt.Printf("Put your OAuth client secret in %s and run 'ma auth'.\n", cfg.ConfigDir)
		}
		return nil
	},
}

// ensureGitignore adds .mailagent/ and the token file to .gitignore if not already present.
func ensureGitignore(root string) {
	gitignorePath := filepath.Join(root, ".gitignore")
	entries := []string{db.DirName + "/", filepath.ToSlash(filepath.Join(cfg.ConfigDir, config.TokenFile))}

	present := map[string]bool{}
	if f, err := os.Open(gitignorePath); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			present[strings.TrimSpace(scanner.Text())] = true
		}
		f.Close()
	}

	var missing []string
	for _, e := range entries {
		if !present[e] && !present[strings.TrimSuffix(e, "/")] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return
	}

	data, _ := os.ReadFile(gitignorePath)
	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return // silently skip if can't write
	}
	defer f.Close()

	if len(data) > 0 && data[len(data)-1] != '\n' {
		f.WriteString("\n")
	}
	fmt.Fprintf(f, "\n# Mailagent database and OAuth token\n%s\n", strings.Join(missing, "\n"))
}

// printJSON writes v as indented JSON to stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: mailagent.toml in ~/.config/mailagent or .)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .mailagent/mail.db)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		display.ErrorMsg("%v", err)
		os.Exit(1)
	}
}
