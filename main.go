// Package main provides the entry point for the lector CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"lector/internal/library"
	"lector/internal/store"
	"lector/tts"
	"lector/tts/engines"
	"lector/tts/sentence"
	"lector/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	engineName   string
	voiceURI     string
	rate         float64
	locale       string
	storeBackend string
	storePath    string
	showAllFiles bool
	mouse        bool
	width        uint
	style        string

	// playback settings resolved from flags, environment and config file.
	playback tts.Config

	rootCmd = &cobra.Command{
		Use:   "lector [SOURCE|DIR]",
		Short: "Read books aloud on the CLI, sentence by sentence",
		Long: paragraph(
			fmt.Sprintf("\nRead books aloud on the CLI, %s.", keyword("sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		expanded, err := homedir.Expand(style)
		if err == nil {
			style = expanded
		}
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	showAllFiles = viper.GetBool("all")
	storeBackend = viper.GetString("store")
	storePath = viper.GetString("store_path")
	style = viper.GetString("style")

	var err error
	playback, err = tts.FromViper()
	if err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = "notty"
	}
	if err := validateStyle(style); err != nil {
		return err
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(_ *cobra.Command, args []string) error {
	// An explicit - reads the book from stdin.
	if len(args) == 1 && args[0] == "-" {
		return executeStdin(os.Stdout)
	}

	// If stdin is a pipe then use stdin for input.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes {
		return executeStdin(os.Stdout)
	}

	switch len(args) {
	// TUI running on cwd
	case 0:
		return runTUI("")

	// TUI on a directory or book file
	default:
		arg := args[0]
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("unable to open %s: %w", arg, err)
		}
		p, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("unable to get absolute path: %w", err)
		}

		// A book argument without a terminal prints the book card
		// instead of starting the TUI.
		if !info.IsDir() && !term.IsTerminal(int(os.Stdout.Fd())) {
			return executeArg(p, os.Stdout)
		}
		return runTUI(p)
	}
}

// executeArg renders the book card for a book file.
func executeArg(path string, w io.Writer) error {
	book, err := library.Load(path)
	if err != nil {
		return fmt.Errorf("unable to open book: %w", err)
	}
	return executeCard(book, w)
}

// executeStdin renders the book card for a book piped through stdin.
// Piped books are treated as markdown.
func executeStdin(w io.Writer) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("unable to read from stdin: %w", err)
	}
	return executeCard(library.Parse("(stdin)", data, true), w)
}

// executeCard renders a summary of the book to the writer: author,
// chapters, length and estimated listening time at the configured rate.
func executeCard(book *library.Book, w io.Writer) error {
	// initialize glamour
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamourStyle(style),
		glamour.WithWordWrap(int(width)), //nolint:gosec
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(bookCard(book, playback.Rate))
	if err != nil {
		return fmt.Errorf("unable to render book card: %w", err)
	}
	if _, err := fmt.Fprint(w, out); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

func glamourStyle(style string) glamour.TermRendererOption {
	if style == styles.AutoStyle {
		return glamour.WithAutoStyle()
	}
	return glamour.WithStylePath(style)
}

// bookCard builds the markdown summary executeCard renders.
func bookCard(book *library.Book, rate float64) string {
	sentences := sentence.Segment(book.FullText())
	words := 0
	for _, s := range sentences {
		words += len(s.Words)
	}
	timeline := sentence.NewTimeline(sentences, rate)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", book.Title)
	if book.Author != "" {
		fmt.Fprintf(&b, "by %s\n\n", book.Author)
	}
	fmt.Fprintf(&b, "- **Chapters:** %d\n", len(book.Chapters))
	fmt.Fprintf(&b, "- **Sentences:** %s\n", humanize.Comma(int64(len(sentences))))
	fmt.Fprintf(&b, "- **Words:** %s\n", humanize.Comma(int64(words)))
	fmt.Fprintf(&b, "- **Listening time:** about %s at %gx\n", listeningTime(timeline.Total), rate)

	if len(book.Chapters) > 1 {
		b.WriteString("\n## Chapters\n\n")
		const maxChapters = 12
		for i, ch := range book.Chapters[:min(len(book.Chapters), maxChapters)] {
			title := ch.Title
			if title == "" {
				title = fmt.Sprintf("Chapter %d", i+1)
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		}
		if n := len(book.Chapters) - maxChapters; n > 0 {
			fmt.Fprintf(&b, "\nand %d more.\n", n)
		}
	}
	return b.String()
}

// listeningTime renders an estimated duration in rough human terms.
func listeningTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dmin", h, m)
	case m > 0:
		return fmt.Sprintf("%dmin", m)
	default:
		return "a minute"
	}
}

func runTUI(path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Path = path
	cfg.ShowAllFiles = showAllFiles
	cfg.EnableMouse = mouse
	cfg.Rate = playback.Rate
	if cfg.ReaderWidth == 0 || rootCmd.Flags().Changed("width") {
		cfg.ReaderWidth = width
	}

	logger := log.Default()
	scope := gap.NewScope(gap.User, "lector")

	engCfg := engines.Config{
		Engine:    playback.Engine,
		Locale:    playback.Locale,
		CacheDir:  viper.GetString("cache_dir"),
		RemoteURL: viper.GetString("remote_url"),
		Binary:    viper.GetString("espeak_binary"),
	}
	if engCfg.CacheDir == "" {
		if dir, err := scope.CacheDir(); err == nil {
			engCfg.CacheDir = filepath.Join(dir, "audio")
		}
	} else if expanded, err := homedir.Expand(engCfg.CacheDir); err == nil {
		engCfg.CacheDir = expanded
	}

	backend, err := engines.New(context.Background(), engCfg, logger)
	if err != nil {
		return fmt.Errorf("unable to start the %s speech backend: %w", playback.Engine, err)
	}

	st, err := openStore(scope, logger)
	if err != nil {
		_ = backend.Close()
		return err
	}

	registry := tts.NewRegistry(backend, playback.Locale, logger)
	registry.Start()

	engine := tts.New(playback, backend, registry, st, logger)
	defer func() {
		_ = engine.Close()
		registry.Close()
		_ = backend.Close()
		if err := st.Close(); err != nil {
			logger.Warn("closing progress store", "error", err)
		}
	}()

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, ui.Session{Engine: engine, Registry: registry, Store: st}).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// openStore opens the progress store, defaulting its path into the user
// data directory.
func openStore(scope *gap.Scope, logger *log.Logger) (store.Store, error) {
	path := storePath
	var err error
	if path == "" {
		name := "progress"
		if storeBackend == "sqlite" {
			name = "progress.db"
		}
		path, err = scope.DataPath(name)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve data directory: %w", err)
		}
	} else {
		path, err = homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("unable to expand store path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create store directory: %w", err)
	}

	st, err := store.Open(store.Config{Backend: storeBackend, Path: path}, logger)
	if err != nil {
		return nil, fmt.Errorf("unable to open progress store: %w", err)
	}
	return st, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// Assigned here rather than in the literal: execute reaches runTUI,
	// which reads rootCmd, and that reference cycle is rejected in a
	// package-level initializer.
	rootCmd.RunE = execute

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&engineName, "engine", "e", "", "speech backend (espeak, google, remote, mock)")
	rootCmd.Flags().StringVar(&voiceURI, "voice", "", "preferred voice URI")
	rootCmd.Flags().Float64VarP(&rate, "rate", "r", 0, "speaking rate multiplier")
	rootCmd.Flags().StringVar(&locale, "locale", "", "reading locale, e.g. es-AR")
	rootCmd.Flags().StringVar(&storeBackend, "store", "", "progress store backend (badger, sqlite, memory)")
	rootCmd.Flags().StringVar(&storePath, "store-path", "", "progress store location")
	rootCmd.Flags().BoolVarP(&showAllFiles, "all", "a", false, "show system files and directories (TUI-mode only)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel and timeline scrubbing (TUI-mode only)")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "reader column width (set to 0 to follow the terminal)")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "book card style name or JSON path")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("locale", rootCmd.Flags().Lookup("locale"))
	_ = viper.BindPFlag("store", rootCmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("store_path", rootCmd.Flags().Lookup("store-path"))
	_ = viper.BindPFlag("all", rootCmd.Flags().Lookup("all"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))

	tts.SetViperDefaults()
	viper.SetDefault("store", "badger")
	viper.SetDefault("store_path", "")
	viper.SetDefault("all", false)
	viper.SetDefault("mouse", true)
	viper.SetDefault("width", 0)
	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("remote_url", "")
	viper.SetDefault("cache_dir", "")
	viper.SetDefault("espeak_binary", "")

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "lector")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "lector")}, dirs...)
	}

	if c := os.Getenv("LECTOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("lector")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("lector")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "lector.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
