package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/warthog-wasm/warthog"
	"github.com/warthog-wasm/warthog/imports/env"
)

func main() {
	doMain(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("wasminit", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var call string
	flags.StringVar(&call, "call", "", "name of an exported function without parameters to call after instantiation")

	var verbose bool
	flags.BoolVar(&verbose, "v", false, "log decoding, instantiation and traps to stderr")

	var noColor bool
	flags.BoolVar(&noColor, "no-color", false, "never style the report, even when stdout is a terminal")

	_ = flags.Parse(args)

	if help {
		printUsage(stdErr, flags)
		exit(0)
		return
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printUsage(stdErr, flags)
		exit(1)
		return
	}
	wasmPath := flags.Arg(0)

	logger := zap.NewNop()
	if verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(stdErr, "error creating logger: %v\n", err)
			exit(1)
			return
		}
		defer logger.Sync() //nolint
	}

	wasmFile, err := os.Open(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
		return
	}
	defer wasmFile.Close()

	r := warthog.NewRuntimeWithConfig(warthog.NewRuntimeConfig().WithLogger(logger))

	decoded, err := r.DecodeModule(wasmFile)
	if err != nil {
		fmt.Fprintf(stdErr, "error decoding wasm binary: %v\n", err)
		exit(1)
		return
	}

	if _, err = env.Instantiate(r, stdOut); err != nil {
		fmt.Fprintf(stdErr, "error instantiating env: %v\n", err)
		exit(1)
		return
	}

	mod, err := r.InstantiateModule(moduleName(wasmPath), decoded)
	if err != nil {
		fmt.Fprintf(stdErr, "error instantiating wasm binary: %v\n", err)
		exit(1)
		return
	}

	d := &dumper{w: stdOut, color: !noColor && isTerminal(stdOut)}
	d.dumpHost(r.Host(), mod.Addr())

	if call != "" {
		fn := mod.ExportedFunction(call)
		if fn == nil {
			fmt.Fprintf(stdErr, "function %q is not exported\n", call)
			exit(1)
			return
		}
		results, err := fn.Call()
		if err != nil {
			fmt.Fprintf(stdErr, "error calling %s: %v\n", call, err)
			exit(1)
			return
		}
		values := make([]string, len(results))
		for i, v := range results {
			values[i] = fmt.Sprintf("%s:%s", v.Type(), v)
		}
		fmt.Fprintf(stdOut, "%s() = [%s]\n", call, strings.Join(values, ", "))
	}
	exit(0)
}

// moduleName is the file name without its extension, or "unnamed" if that is empty.
func moduleName(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "unnamed"
	}
	return name
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wasminit: loads a wasm binary and reports the instances it creates")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasminit <options> <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
