// Command world loads a module graph into a fresh world and inspects or
// calls its entry module.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/worlds/config"
	"github.com/wippyai/worlds/engine"
	"github.com/wippyai/worlds/linker"
	"github.com/wippyai/worlds/world"
)

type flags struct {
	entry       string
	dir         string
	configPath  string
	call        string
	args        string
	list        bool
	graph       bool
	interactive bool
}

func main() {
	var f flags
	flag.StringVar(&f.entry, "entry", "", "Entry module, relative to -dir (default ./index.js)")
	flag.StringVar(&f.dir, "dir", "", "Directory the entry is resolved against")
	flag.StringVar(&f.configPath, "config", "", "YAML config file")
	flag.StringVar(&f.call, "call", "", "Exported function of the entry to call")
	flag.StringVar(&f.args, "args", "", "Call arguments as a YAML or JSON list, e.g. '[1, \"a\"]'")
	flag.BoolVar(&f.list, "list", false, "List the exports of the entry and exit")
	flag.BoolVar(&f.graph, "graph", false, "Print the module graph")
	flag.BoolVar(&f.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: world [-config file.yaml] [-dir dir] [-entry ./index.js] [-call name [-args list]]")
		fmt.Fprintln(os.Stderr, "       world -entry ./index.js -list")
		fmt.Fprintln(os.Stderr, "       world -entry ./index.js -graph")
		fmt.Fprintln(os.Stderr, "       world -entry ./index.js -i  (interactive mode)")
		os.Exit(2)
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.entry != "" {
		cfg.Entry = f.entry
	}
	if f.dir != "" {
		cfg.Dir = f.dir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	linker.SetLogger(log.Named("linker"))
	engine.SetLogger(log.Named("engine"))
	world.SetLogger(log.Named("world"))

	opts := cfg.WorldOptions()
	if f.interactive {
		// Console output would tear the TUI.
		opts.Console = io.Discard
	} else {
		opts.Console = os.Stdout
	}

	w, err := world.New(ctx, cfg.Entry, opts)
	if err != nil {
		return err
	}
	defer w.Close(context.Background())

	if f.graph {
		printGraph(w)
	}
	if f.list {
		printExports(w)
		return nil
	}

	if f.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(ctx, w, cfg.Entry)
	}

	if f.call == "" {
		return nil
	}
	args, err := parseArgs(f.args)
	if err != nil {
		return err
	}
	result, err := w.Call(ctx, f.call, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", f.call, err)
	}
	fmt.Println(formatValue(result))
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	return zc.Build()
}

// parseArgs reads a YAML flow list. JSON arrays are valid YAML.
func parseArgs(s string) ([]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var args []any
	if err := yaml.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("parse -args: %w", err)
	}
	return args, nil
}

// parseArg reads one argument the way YAML reads a scalar: numbers,
// booleans and null are typed, everything else is a string.
func parseArg(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case string:
		return v
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return strings.TrimRight(string(out), "\n")
	}
	return fmt.Sprintf("%v", v)
}

func printExports(w *world.World) {
	fmt.Printf("Entry: %s\n", w.Entry().Identifier())
	fmt.Printf("\nExports:\n")
	for _, e := range w.Describe(w.Namespace()) {
		fmt.Printf("  %s\n", formatExport(e))
	}
}

func formatExport(e engine.Export) string {
	if e.Func {
		return e.Name + "(" + strings.Join(e.Params, ", ") + ")"
	}
	return e.Name + ": " + e.Type
}

func printGraph(w *world.World) {
	root := w.Root()
	short := func(id string) string {
		if rel, ok := strings.CutPrefix(id, root+"/"); ok {
			return "./" + rel
		}
		return id
	}

	fmt.Printf("Modules (%s):\n", root)
	for _, rec := range w.Linker().Cache().Records() {
		fmt.Printf("  %s [%s, %s]\n", short(rec.Identifier()), rec.Kind(), rec.Status())
		for _, dep := range rec.Dependencies() {
			fmt.Printf("    -> %s\n", short(dep.Identifier()))
		}
	}
	fmt.Println()
}
