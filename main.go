package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sharemind-vm/smas/api"
	"github.com/sharemind-vm/smas/assembler"
	"github.com/sharemind-vm/smas/config"
	"github.com/sharemind-vm/smas/inspector"
	"github.com/sharemind-vm/smas/instr"
	"github.com/sharemind-vm/smas/linker"
	"github.com/sharemind-vm/smas/parser"
	"github.com/sharemind-vm/smas/tools"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"     // Version number (set by git tag at build time)
	Commit  = "unknown" // Git commit hash
	Date    = "unknown" // Build date
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion   = flag.Bool("version", false, "Show version information")
		showHelp      = flag.Bool("help", false, "Show help information")
		outputPath    = flag.String("o", "", "Output file (default: input with the configured extension)")
		printTokens   = flag.Bool("tokens", false, "Print the token stream and stop")
		printDump     = flag.Bool("dump", false, "Print an executable listing after assembly")
		inspectMode   = flag.Bool("inspect", false, "Open the interactive executable inspector")
		apiServer     = flag.Bool("api-server", false, "Start HTTP API server mode")
		apiPort       = flag.Int("port", 0, "API server port (used with -api-server)")
		formatVersion = flag.Int("format-version", -1, "Output file format version")
		verboseMode   = flag.Bool("verbose", false, "Verbose output")
		configPath    = flag.String("config", "", "Configuration file path")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("smas %s (commit %s, built %s)\n", Version, Commit, Date)
		return 0
	}
	if *showHelp {
		printUsage()
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *printTokens {
		cfg.Listing.Tokens = true
	}
	if *printDump {
		cfg.Listing.Dump = true
	}
	if *formatVersion >= 0 {
		cfg.Output.FormatVersion = uint16(*formatVersion)
	}
	if *apiPort > 0 {
		cfg.API.Port = *apiPort
	}

	if *apiServer {
		return runAPIServer(cfg)
	}

	if flag.NArg() != 1 {
		printUsage()
		return 1
	}
	inputPath := flag.Arg(0)

	source, err := os.ReadFile(inputPath) // #nosec G304 -- user-supplied source path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tokens, lexErr := parser.Tokenize(string(source), inputPath)
	if lexErr != nil {
		renderError(string(source), lexErr)
		return 1
	}

	if cfg.Listing.Tokens {
		fmt.Print(tools.FormatTokens(tokens))
		return 0
	}

	x, err := assembler.Assemble(tokens, instr.Builtin())
	if err != nil {
		renderError(string(source), err)
		return 1
	}

	image, err := linker.Link(x, cfg.Output.FormatVersion)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Listing.Dump {
		fmt.Print(tools.Dump(x, instr.Builtin()))
	}
	if *inspectMode {
		if err := inspector.Run(x, instr.Builtin(), filepath.Base(inputPath)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	out := *outputPath
	if out == "" {
		out = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + cfg.Output.Extension
	}
	if err := os.WriteFile(out, image, 0644); err != nil { // #nosec G306 -- executable image
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *verboseMode {
		fmt.Printf("wrote %s (%d bytes, %d linking unit(s))\n", out, len(image), len(x.Units))
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// renderError prints a structured assembly or lex failure with its source
// line and a caret marking the column.
func renderError(source string, err error) {
	pos, ok := errorPosition(err)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if !ok || pos.Line <= 0 {
		return
	}
	lines := strings.Split(source, "\n")
	if pos.Line > len(lines) {
		return
	}
	line := lines[pos.Line-1]
	fmt.Fprintf(os.Stderr, "    %s\n", line)
	if pos.Column > 0 && pos.Column <= len(line)+1 {
		fmt.Fprintf(os.Stderr, "    %s^\n", strings.Repeat(" ", pos.Column-1))
	}
}

func errorPosition(err error) (parser.Position, bool) {
	var lexErr *parser.LexError
	if errors.As(err, &lexErr) {
		return lexErr.Pos, true
	}
	var asmErr *assembler.Error
	if errors.As(err, &asmErr) && asmErr.Token != nil {
		return asmErr.Token.Pos, true
	}
	return parser.Position{}, false
}

func runAPIServer(cfg *config.Config) int {
	server := api.NewServer(cfg.API.Port, Version)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	case <-sigCh:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

func printUsage() {
	fmt.Println("smas - SMVM assembler and linker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  smas [options] <input.sma>")
	fmt.Println("  smas -api-server [-port N]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}
