package ui

// Config contains TUI-specific configuration.
type Config struct {
	ShowAllFiles bool
	EnableMouse  bool
	HomeDir      string `env:"HOME"`

	// ReaderWidth caps the reader's text column. Zero means the full
	// terminal width.
	ReaderWidth uint `env:"LECTOR_READER_WIDTH"`

	// Rate seeds the speaking rate for books without stored progress.
	Rate float64

	// Working directory or book file path.
	Path string
}
