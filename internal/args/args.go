package args

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/markis/ragsearch/internal/config"
)

// ErrHelp is returned when only usage was printed.
var ErrHelp = errors.New("help requested")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Query        string
	Endpoint     string
	Mode         string
	SearchUUID   string
	NoRelated    bool
	UsePlainText bool
	LogLevel     string
}

// ParseArgs parses command-line arguments and stdin input, returning an Arguments struct.
// Piped stdin is appended to the query given on the command line.
func ParseArgs(ctx context.Context, cfg config.Config) (Arguments, error) {
	var stdin io.Reader
	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		stdin = os.Stdin
	}
	return parse(ctx, cfg, os.Args[1:], stdin, os.Stdout)
}

func parse(ctx context.Context, cfg config.Config, argv []string, stdin io.Reader, out io.Writer) (Arguments, error) {
	args := Arguments{}
	ran := false

	rootCmd := &cobra.Command{
		Use:   "ragsearch [flags] [query]",
		Short: "Ask a retrieval-augmented answer service from the terminal",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			args.Query = strings.Join(cmdArgs, " ")
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}
	// cobra falls back to os.Args on nil.
	if argv == nil {
		argv = []string{}
	}
	rootCmd.SetArgs(argv)
	rootCmd.SetOut(out)

	flags := rootCmd.Flags()
	flags.StringVar(&args.Endpoint, "endpoint", cfg.Endpoint, "Base URL of the answer service")
	flags.StringVar(&args.Mode, "mode", cfg.Mode, "Protocol variant: stream or multi")
	flags.StringVar(&args.SearchUUID, "uuid", "", "Correlation id sent with the query (random when empty)")
	flags.BoolVar(&args.NoRelated, "no-related", !cfg.Related, "Do not ask for related questions")
	flags.BoolVar(&args.UsePlainText, "plain", shouldUsePlainText(cfg), "Disable markdown rendering")
	flags.StringVar(&args.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error)")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	if !ran {
		return Arguments{}, ErrHelp
	}

	if stdin != nil {
		piped, err := readAll(stdin)
		if err != nil {
			return Arguments{}, err
		}
		args.Query = strings.TrimSpace(strings.Join([]string{args.Query, piped}, "\n\n"))
	}

	if args.Query == "" {
		return Arguments{}, errors.New("no query provided")
	}

	return args, nil
}

// Apply copies flag values that override the loaded configuration.
func (a Arguments) Apply(cfg *config.Config) {
	cfg.Endpoint = a.Endpoint
	cfg.Mode = a.Mode
	cfg.LogLevel = a.LogLevel
	cfg.Related = !a.NoRelated
	if a.UsePlainText {
		cfg.Render.Format = "plain"
	}
}

func readAll(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrap(err, "failed to read stdin")
	}
	return strings.TrimSpace(buf.String()), nil
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if fd := os.Stdout.Fd(); !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return true
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if term := os.Getenv("TERM"); term == "dumb" {
		return true
	}

	return false
}
