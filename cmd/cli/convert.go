package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"golang.org/x/term"

	"github.com/himanishpuri/playscore/internal/picker"
	"github.com/himanishpuri/playscore/pkg/config"
	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/playscore"
	"github.com/himanishpuri/playscore/pkg/utils"
)

// exitNoInputs matches the status of a missing input.
const exitNoInputs = 2

func handleConvert(cfg config.Config, args []string) int {
	log := logger.GetLogger()

	convertCmd := flag.NewFlagSet("convert", flag.ContinueOnError)
	output := convertCmd.String("o", "", "Output MusicXML path (single input or merge)")
	merge := convertCmd.Bool("merge", false, "Merge all inputs into one MusicXML score")
	overwrite := convertCmd.Bool("overwrite", false, "Replace existing output files")
	verbose := convertCmd.Bool("verbose", false, "Verbose output")

	inputs, err := parseInterspersed(convertCmd, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}
	if *verbose {
		log.SetLevel(logger.DEBUG)
	}

	stdin := bufio.NewReader(os.Stdin)
	interactive := isInteractive()

	if len(inputs) == 0 {
		inputs, err = selectInputs(stdin, interactive, *verbose)
		if err != nil && !errors.Is(err, picker.ErrCancelled) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		if len(inputs) == 0 {
			fmt.Fprintln(os.Stderr, "No valid input files selected. Exiting.")
			return exitNoInputs
		}
	}

	if len(inputs) > 1 && !*merge {
		*merge = askYesNo(stdin, os.Stdout, "Merge the selected files into one MusicXML?")
	}

	svc, err := createService(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		return 1
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *merge {
		out := *output
		if out == "" {
			out = playscore.DefaultMergeOutput(absAll(inputs))
		}
		fmt.Printf("🎼 Merging %d file(s) into %s\n", len(inputs), out)
		res := svc.MergeAll(ctx, inputs, out, *overwrite)
		printMergeResult(res, *verbose)
		return res.ExitCode()
	}

	batch := svc.ConvertBatch(ctx, inputs, *output, *overwrite)
	for _, res := range batch.Results {
		printResult(res, *verbose)
	}
	if len(batch.Results) < len(inputs) {
		fmt.Printf("⚠️  Stopped after %d of %d file(s)\n", len(batch.Results), len(inputs))
	}
	if len(inputs) > 1 {
		fmt.Printf("\n📊 %d of %d file(s) converted\n", batch.Succeeded(), len(inputs))
	}
	return batch.ExitCode()
}

// parseInterspersed parses fs while allowing positional arguments between
// flags. Everything after "--" is positional.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// selectInputs asks for inputs with the file picker on a terminal and falls
// back to line prompts otherwise.
func selectInputs(stdin *bufio.Reader, interactive, verbose bool) ([]string, error) {
	if interactive {
		return picker.Run("")
	}
	if verbose {
		fmt.Fprintln(os.Stderr, "No input files provided and no terminal available; using console prompts.")
	}
	return promptInputs(stdin, os.Stdout, utils.IsRegularFile), nil
}

func absAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out[i] = p
	}
	return out
}

func printResult(res playscore.Result, verbose bool) {
	switch {
	case res.Skipped:
		fmt.Printf("⏭️  %s exists and -overwrite not set; skipping\n", res.Output)
	case res.OK():
		fmt.Printf("✅ %s → %s\n", res.Input, res.Output)
		if verbose {
			fmt.Printf("   Payload: %s", res.Kind)
			if res.Parts > 0 {
				fmt.Printf(", %d part(s)", res.Parts)
			}
			fmt.Println()
		}
	default:
		fmt.Printf("❌ %s: %s\n", res.Input, res.Code.Message())
		if verbose && res.Err != nil {
			fmt.Printf("   %v\n", res.Err)
		}
		if res.Code == playscore.CodeEngineUnavailable {
			printEngineHint()
		}
	}
}

func printMergeResult(res playscore.Result, verbose bool) {
	if verbose || !res.OK() {
		for _, src := range res.Sources {
			if src.Code == playscore.CodeOK {
				fmt.Printf("   ✓ %s (%s, %d part(s))\n", src.Input, src.Kind, src.Parts)
				continue
			}
			fmt.Printf("   ✗ %s: %s\n", src.Input, src.Code.Message())
			if verbose && src.Err != nil {
				fmt.Printf("     %v\n", src.Err)
			}
		}
	}

	switch {
	case res.Skipped:
		fmt.Printf("⏭️  %s exists and -overwrite not set; skipping merge\n", res.Output)
	case res.OK():
		fmt.Printf("✅ Wrote %d part(s) to %s\n", res.Parts, res.Output)
	default:
		fmt.Printf("❌ Merge failed: %s\n", res.Code.Message())
		if verbose && res.Err != nil {
			fmt.Printf("   %v\n", res.Err)
		}
		if res.Code == playscore.CodeEngineUnavailable {
			printEngineHint()
		}
	}
}

func printEngineHint() {
	fmt.Println("   Install MuseScore, point -mscore at its binary, or use -engine native")
}
