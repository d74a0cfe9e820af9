// loxbc compiles and runs arithmetic expressions on the bytecode VM.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxbc/cache"
	"github.com/chazu/loxbc/compiler"
	"github.com/chazu/loxbc/manifest"
	"github.com/chazu/loxbc/pkg/bytecode"
	"github.com/chazu/loxbc/server"
	"github.com/chazu/loxbc/vm"

	_ "github.com/tliron/commonlog/simple"
)

// Exit codes follow sysexits.h.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65 // lex and compile errors
	exitSoftware = 70 // runtime errors
	exitIOErr    = 74
)

func main() {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitIOErr)
	}
	os.Exit(run(os.Args[1:], dir, os.Stdin, os.Stdout, os.Stderr))
}

// options collects the flags and manifest settings for one invocation.
type options struct {
	expr         string
	disassemble  bool
	trace        bool
	verbosity    int
	output       string
	runChunk     string
	cachePath    string
	lsp          bool
	lineComments bool
}

// run is main without the process exit, reading loxbc.toml from dir upward.
func run(args []string, dir string, stdin io.Reader, stdout, stderr io.Writer) int {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return exitIOErr
	}

	var opts options
	if m != nil {
		opts.disassemble = m.Output.Disassemble
		opts.trace = m.VM.Trace
		opts.cachePath = m.CachePath()
		opts.lineComments = m.Lexer.LineComments
	}

	fs := flag.NewFlagSet("loxbc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.expr, "e", "", "Evaluate an expression")
	fs.BoolVar(&opts.disassemble, "d", opts.disassemble, "Print the disassembled chunk")
	fs.BoolVar(&opts.trace, "trace", opts.trace, "Log the stack and each instruction as it executes")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (1 info, 2 debug)")
	fs.StringVar(&opts.output, "o", "", "Write the compiled chunk to a file instead of running it")
	fs.StringVar(&opts.runChunk, "run-chunk", "", "Execute a chunk written with -o")
	fs.StringVar(&opts.cachePath, "cache", opts.cachePath, "SQLite chunk cache path")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.BoolVar(&opts.lineComments, "comments", opts.lineComments, "Skip // line comments")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: loxbc [options] [file]\n\n")
		fmt.Fprintf(stderr, "Compiles and runs a single arithmetic expression. With no file or -e,\n")
		fmt.Fprintf(stderr, "starts a REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  loxbc -e '1 + 2 * 3'          # prints 7\n")
		fmt.Fprintf(stderr, "  loxbc -d calc.lox             # disassemble and run a file\n")
		fmt.Fprintf(stderr, "  loxbc -o calc.lxbc calc.lox   # compile to a chunk file\n")
		fmt.Fprintf(stderr, "  loxbc -run-chunk calc.lxbc    # run a compiled chunk\n")
		fmt.Fprintf(stderr, "  loxbc -lsp                    # language server\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.verbosity > 0 || opts.trace {
		verbosity := opts.verbosity
		if opts.trace && verbosity < 2 {
			verbosity = 2
		}
		commonlog.Configure(verbosity, nil)
	}

	var store *cache.Store
	if opts.cachePath != "" {
		store, err = cache.Open(opts.cachePath, cache.WithLineComments(opts.lineComments))
		if err != nil {
			fmt.Fprintf(stderr, "Error opening cache: %v\n", err)
			return exitIOErr
		}
		defer store.Close()
	}

	if opts.lsp {
		lspOpts := []server.Option{server.WithLineComments(opts.lineComments)}
		if store != nil {
			lspOpts = append(lspOpts, server.WithCache(store))
		}
		if err := server.NewLSP(lspOpts...).Run(); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return exitIOErr
		}
		return exitOK
	}

	d := &driver{opts: opts, store: store, stdout: stdout, stderr: stderr}

	if opts.runChunk != "" {
		data, err := os.ReadFile(opts.runChunk)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIOErr
		}
		chunk, err := bytecode.UnmarshalChunk(data)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", opts.runChunk, err)
			return exitDataErr
		}
		return d.execute(chunk)
	}

	var source string
	switch {
	case opts.expr != "":
		source = opts.expr
	case fs.NArg() == 1:
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIOErr
		}
		source = string(data)
	case fs.NArg() > 1:
		fs.Usage()
		return exitUsage
	default:
		return d.repl(stdin)
	}

	chunk, code := d.compile(source)
	if chunk == nil {
		return code
	}

	if opts.output != "" {
		data, err := bytecode.MarshalChunk(chunk)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitSoftware
		}
		if err := os.WriteFile(opts.output, data, 0644); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitIOErr
		}
		return exitOK
	}

	return d.execute(chunk)
}

// driver compiles and executes sources for one invocation.
type driver struct {
	opts   options
	store  *cache.Store
	stdout io.Writer
	stderr io.Writer
}

// compile returns the chunk for source, or nil and the exit code.
func (d *driver) compile(source string) (*bytecode.Chunk, int) {
	var (
		chunk *bytecode.Chunk
		err   error
	)
	if d.store != nil {
		chunk, _, err = d.store.Compile(source)
	} else {
		var copts []compiler.Option
		if d.opts.lineComments {
			copts = append(copts, compiler.WithLexerOptions(compiler.WithLineComments()))
		}
		chunk, err = compiler.Compile(source, copts...)
	}
	if err != nil {
		fmt.Fprintln(d.stderr, err)
		if _, ok := compiler.ErrorLine(err); ok {
			return nil, exitDataErr
		}
		return nil, exitIOErr
	}
	return chunk, exitOK
}

// execute runs chunk and prints its value.
func (d *driver) execute(chunk *bytecode.Chunk) int {
	if d.opts.disassemble {
		fmt.Fprint(d.stdout, chunk.Disassemble())
	}

	value, err := vm.New(vm.WithTrace(d.opts.trace)).Execute(chunk)
	if err != nil {
		fmt.Fprintln(d.stderr, err)
		return exitSoftware
	}
	fmt.Fprintln(d.stdout, value)
	return exitOK
}

// repl evaluates one expression per line. Errors are printed and the loop
// continues; the exit code is always 0.
func (d *driver) repl(stdin io.Reader) int {
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(d.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(d.stdout)
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if chunk, _ := d.compile(line); chunk != nil {
			d.execute(chunk)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(d.stderr, "Error reading input: %v\n", err)
		return exitIOErr
	}
	return exitOK
}
