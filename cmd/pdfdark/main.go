package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wudi/pdfdark/contentstream"
	"github.com/wudi/pdfdark/convert"
	"github.com/wudi/pdfdark/ir/semantic"
	"github.com/wudi/pdfdark/observability"
	"github.com/wudi/pdfdark/theme"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "themes":
		err = runThemes(os.Args[2:])
	case "tokens":
		err = runTokens(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfdark: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: pdfdark <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  convert [-theme classic] [-workers n] [-no-underlay] [-themes file.json] [-debug] in.pdf out.pdf")
	fmt.Fprintln(os.Stderr, "          (out.pdf may be - for stdout)")
	fmt.Fprintln(os.Stderr, "  themes  [-themes file.json]")
	fmt.Fprintln(os.Stderr, "  tokens  [-page n] in.pdf")
}

func loadRegistry(path string) (*theme.Catalog, error) {
	if path == "" {
		return theme.NewRegistry()
	}
	return theme.LoadFile(path)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	themeID := fs.String("theme", theme.Default, "theme id")
	workers := fs.Int("workers", 0, "concurrent units (0 = GOMAXPROCS)")
	noUnderlay := fs.Bool("no-underlay", false, "do not paint the page background")
	themesPath := fs.String("themes", "", "JSON file with additional themes")
	quality := fs.Int("jpeg-quality", 90, "quality of re-encoded JPEG images")
	debug := fs.Bool("debug", false, "verbose logging")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("convert needs an input and an output path")
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)
	if outPath == "-" && term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("refusing to write a PDF to a terminal")
	}

	reg, err := loadRegistry(*themesPath)
	if err != nil {
		return err
	}
	zl, err := newLogger(*debug)
	if err != nil {
		return err
	}
	defer zl.Sync()

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	conv := convert.New(convert.Config{
		Workers:     *workers,
		NoUnderlay:  *noUnderlay,
		JPEGQuality: *quality,
		Logger:      observability.NewZapLogger(zl),
		Registry:    reg,
	})
	res, err := conv.Convert(ctx, data, *themeID)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", w)
	}
	if outPath == "-" {
		_, err = os.Stdout.Write(res.Data)
		return err
	}
	return os.WriteFile(outPath, res.Data, 0o644)
}

func runThemes(args []string) error {
	fs := flag.NewFlagSet("themes", flag.ContinueOnError)
	themesPath := fs.String("themes", "", "JSON file with additional themes")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	reg, err := loadRegistry(*themesPath)
	if err != nil {
		return err
	}
	return printThemes(os.Stdout, reg.List())
}

func printThemes(w io.Writer, themes []theme.Theme) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBACKGROUND")
	for _, t := range themes {
		r, g, b := t.Background.RGB8()
		fmt.Fprintf(tw, "%s\t%s\t#%02x%02x%02x\n", t.ID, t.DisplayName, r, g, b)
	}
	return tw.Flush()
}

// runTokens lists the content stream tokens of one page, or of all pages.
func runTokens(args []string) error {
	fs := flag.NewFlagSet("tokens", flag.ContinueOnError)
	pageNum := fs.Int("page", 0, "page number (0 = all pages)")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("tokens needs an input path")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	doc, err := semantic.Open(context.Background(), data, semantic.Config{})
	if err != nil {
		return err
	}
	for _, p := range doc.Pages() {
		if *pageNum != 0 && p.Number() != *pageNum {
			continue
		}
		for _, s := range p.ContentStreams() {
			fmt.Printf("page %d stream %v\n", p.Number(), s.ID())
			if err := dumpTokens(os.Stdout, s); err != nil {
				fmt.Printf("  ERR: %v\n", err)
			}
		}
	}
	return nil
}

func dumpTokens(w io.Writer, s *semantic.Stream) error {
	data, err := s.Data()
	if err != nil {
		return err
	}
	tokens, err := contentstream.Tokenize(data)
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		if tok.Kind == contentstream.KindBypass {
			fmt.Fprintf(w, "  %d-%d bypass %d bytes\n", tok.Body, tok.End, tok.End-tok.Body)
			continue
		}
		fmt.Fprintf(w, "  %d-%d %s %q\n", tok.Body, tok.End, tok.Op, data[tok.Body:tok.End])
	}
	return nil
}
