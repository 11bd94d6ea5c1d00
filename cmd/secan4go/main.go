// Command secan4go analyzes a described class pool for source-to-sink
// flows: it paints an entry method with the configured rules and reports
// every place untrusted data reaches a declared sink.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colored"
	"github.com/vlsergey/secan4go/data"
	"github.com/vlsergey/secan4go/report"
	"github.com/vlsergey/secan4go/rules"
	"github.com/vlsergey/secan4go/session"
)

type analyzeOptions struct {
	poolPath     string
	rulesPaths   []string
	entry        string
	workers      int
	dumpPath     string
	noColor      bool
	builtinRules bool
	verbose      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "secan4go",
		Short:         "static taint analysis over JVM bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCommand())
	return root
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "paint an entry method and report source-to-sink flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.poolPath, "pool", "", "YAML class pool description (required)")
	cmd.Flags().StringSliceVar(&opts.rulesPaths, "rules", nil, "YAML rule documents")
	cmd.Flags().StringVar(&opts.entry, "entry", "", "entry method as class.method(descriptor) (required)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "painting workers (default: CPU count)")
	cmd.Flags().StringVar(&opts.dumpPath, "dump", "", "write findings as msgpack to this file")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable terminal styling")
	cmd.Flags().BoolVar(&opts.builtinRules, "builtin-rules", true, "include the built-in rule sets")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log task scheduling")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

func runAnalyze(ctx context.Context, opts *analyzeOptions) error {
	pool, err := loadPoolFile(opts.poolPath)
	if err != nil {
		return err
	}

	provider := data.NewProvider()
	if opts.builtinRules {
		if err := provider.AddAll(rules.Default()); err != nil {
			return err
		}
	}
	for _, path := range opts.rulesPaths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = provider.LoadYAML(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("rules %s: %w", path, err)
		}
	}

	method, err := resolveEntry(pool, opts.entry)
	if err != nil {
		return err
	}

	logger := log.New(io.Discard, "", 0)
	if opts.verbose {
		logger = log.New(os.Stderr, "secan4go: ", 0)
	}

	collector := report.NewCollector()
	paintingSession := session.NewPaintingSession(pool, provider, collector.OnIntersection, session.Options{
		Workers: opts.workers,
		Logger:  logger,
	})

	ins, outs, err := paintingSession.Analyze(ctx, method, nil, nil)
	if err != nil {
		return err
	}

	findings := collector.Findings()
	report.Render(os.Stdout, findings, !opts.noColor)
	printColorings(method, ins, outs)

	if opts.dumpPath != "" {
		f, err := os.Create(opts.dumpPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.Export(f, findings); err != nil {
			return err
		}
	}

	if len(findings) > 0 {
		os.Exit(1)
	}
	return nil
}

// printColorings writes the entry method's final parameter and result
// colorings, the same boundary Analyze returns.
func printColorings(method *classpool.CtBehavior, ins, outs []*colored.ColoredObject) {
	if ins == nil && outs == nil {
		fmt.Printf("%s has no body; nothing was painted\n", method.LongName())
		return
	}
	fmt.Printf("final colorings of %s\n", method.LongName())
	for i, co := range ins {
		fmt.Printf("  param %d: %s\n", i, co.Summary())
	}
	for i, co := range outs {
		fmt.Printf("  result %d: %s\n", i, co.Summary())
	}
}

// resolveEntry parses "class.method(descriptor)" into a pool method.
func resolveEntry(pool *classpool.ClassPool, entry string) (*classpool.CtBehavior, error) {
	open := strings.IndexByte(entry, '(')
	if open < 0 {
		return nil, fmt.Errorf("entry %q: want class.method(descriptor)", entry)
	}
	dot := strings.LastIndexByte(entry[:open], '.')
	if dot < 0 {
		return nil, fmt.Errorf("entry %q: want class.method(descriptor)", entry)
	}
	className, methodName, descriptor := entry[:dot], entry[dot+1:open], entry[open:]

	cls, err := pool.Get(className)
	if err != nil {
		return nil, err
	}
	if methodName == classpool.ConstructorName {
		return cls.Constructor(descriptor)
	}
	return cls.Method(methodName, descriptor)
}

