package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/novvoo/go-pdffill/pkg/anchor"
	"github.com/novvoo/go-pdffill/pkg/config"
	"github.com/novvoo/go-pdffill/pkg/fill"
	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/logging"
	"github.com/novvoo/go-pdffill/pkg/render"
)

const version = "0.1.0"

// multiFlag collects a repeatable string flag
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

var (
	data        multiFlag
	find        multiFlag
	valuesFile  string
	batchFile   string
	configFile  string
	writeConfig string
	pages       string
	backendName string
	fontPath    string
	fontSize    float64
	threshold   float64
	outDir      string
	prefix      string
	workers     int
	keepTemp    bool
	jsonLog     bool
	verbose     bool
	quiet       bool
	printHelp   bool
	printVer    bool
)

func init() {
	flag.Var(&data, "data", "value to fill as keyword=value (repeatable)")
	flag.Var(&find, "find", "print where a keyword is located (repeatable)")
	flag.StringVar(&valuesFile, "values", "", "YAML or JSON mapping of keyword to value")
	flag.StringVar(&batchFile, "batch", "", "JSON, YAML or CSV records, one output per record")
	flag.StringVar(&configFile, "config", "", "configuration file")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective configuration and exit")
	flag.StringVar(&pages, "pages", "", "pages to search, one-based (\"all\", \"1,3-5\")")
	flag.StringVar(&backendName, "backend", "", "direct, overlay or raster")
	flag.StringVar(&fontPath, "font", "", "font file to draw with")
	flag.Float64Var(&fontSize, "size", 0, "font size in points")
	flag.Float64Var(&threshold, "threshold", -1, "minimum keyword match score, 0 to 1")
	flag.StringVar(&outDir, "outdir", "", "output directory")
	flag.StringVar(&prefix, "prefix", "", "output file name prefix")
	flag.IntVar(&workers, "j", 0, "concurrent batch fills")
	flag.BoolVar(&keepTemp, "keep-temp", false, "keep overlay temp files")
	flag.BoolVar(&jsonLog, "json", false, "log JSON lines")
	flag.BoolVar(&verbose, "verbose", false, "log debug messages")
	flag.BoolVar(&quiet, "q", false, "log errors only")
	flag.BoolVar(&printHelp, "h", false, "print usage information")
	flag.BoolVar(&printHelp, "help", false, "print usage information")
	flag.BoolVar(&printVer, "v", false, "print version info")

	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, "pdffill version %s\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage: pdffill [options] <PDF-file> [<output-file>]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  -data <k=v>        : value to fill as keyword=value (repeatable)\n")
	fmt.Fprintf(os.Stderr, "  -values <file>     : YAML or JSON mapping of keyword to value\n")
	fmt.Fprintf(os.Stderr, "  -batch <file>      : JSON, YAML or CSV records, one output per record\n")
	fmt.Fprintf(os.Stderr, "  -find <keyword>    : print where a keyword is located (repeatable)\n")
	fmt.Fprintf(os.Stderr, "  -pages <sel>       : pages to search, one-based (\"all\", \"1,3-5\")\n")
	fmt.Fprintf(os.Stderr, "  -backend <name>    : direct, overlay or raster\n")
	fmt.Fprintf(os.Stderr, "  -font <file>       : font file to draw with\n")
	fmt.Fprintf(os.Stderr, "  -size <fp>         : font size in points\n")
	fmt.Fprintf(os.Stderr, "  -threshold <fp>    : minimum keyword match score\n")
	fmt.Fprintf(os.Stderr, "  -outdir <dir>      : output directory\n")
	fmt.Fprintf(os.Stderr, "  -prefix <string>   : output file name prefix\n")
	fmt.Fprintf(os.Stderr, "  -j <int>           : concurrent batch fills\n")
	fmt.Fprintf(os.Stderr, "  -keep-temp         : keep overlay temp files\n")
	fmt.Fprintf(os.Stderr, "  -config <file>     : configuration file\n")
	fmt.Fprintf(os.Stderr, "  -write-config <f>  : write the effective configuration and exit\n")
	fmt.Fprintf(os.Stderr, "  -json              : log JSON lines\n")
	fmt.Fprintf(os.Stderr, "  -verbose           : log debug messages\n")
	fmt.Fprintf(os.Stderr, "  -q                 : log errors only\n")
	fmt.Fprintf(os.Stderr, "  -v                 : print version info\n")
	fmt.Fprintf(os.Stderr, "  -h                 : print usage information\n")
}

func main() {
	flag.Parse()

	if printVer {
		fmt.Printf("pdffill version %s\n", version)
		os.Exit(0)
	}
	if printHelp {
		flag.Usage()
		os.Exit(0)
	}

	logger := logging.New(os.Stderr, logging.Options{Verbose: verbose, Quiet: quiet, JSON: jsonLog})

	cfg, err := loadConfig()
	if err != nil {
		fail(logger, err)
	}
	if writeConfig != "" {
		if err := cfg.Save(writeConfig); err != nil {
			fail(logger, err)
		}
		logger.Info("configuration written", "path", writeConfig)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}
	input := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	filler := fill.NewFiller(cfg.FillerOptions(logger))

	switch {
	case len(find) > 0:
		err = runFind(filler, cfg, input)
	case batchFile != "":
		err = runBatch(ctx, filler, cfg, input, logger)
	default:
		output := ""
		if len(args) >= 2 {
			output = args[1]
		}
		err = runFill(ctx, filler, cfg, input, output)
	}
	if err != nil {
		fail(logger, err)
	}
}

// loadConfig reads the configuration and applies the command line on top
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	if pages != "" {
		cfg.Pages = pages
	}
	if backendName != "" {
		b, err := render.ParseBackend(backendName)
		if err != nil {
			return nil, fillerr.New(fillerr.ConfigInvalid, "flag -backend", err)
		}
		cfg.Render.Backend = b
	}
	if fontPath != "" {
		cfg.Style.FontPath = fontPath
	}
	if fontSize > 0 {
		cfg.Style.FontSize = fontSize
	}
	if threshold >= 0 {
		cfg.Matching.Threshold = threshold
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if prefix != "" {
		cfg.Output.Prefix = prefix
	}
	if workers > 0 {
		cfg.Render.Workers = workers
	}
	if keepTemp {
		cfg.Render.KeepTemp = true
	}
	return cfg, cfg.Validate()
}

// values merges -values with -data; -data wins on equal keys
func values() (fill.Values, error) {
	var vals fill.Values
	if valuesFile != "" {
		loaded, err := fill.LoadValues(valuesFile)
		if err != nil {
			return nil, err
		}
		vals = loaded
	}
	assigned, err := fill.ParseAssignments(data)
	if err != nil {
		return nil, fillerr.New(fillerr.ConfigInvalid, "flag -data", err)
	}
	for _, a := range assigned {
		replaced := false
		for i := range vals {
			if vals[i].Key == a.Key {
				vals[i].Value = a.Value
				replaced = true
			}
		}
		if !replaced {
			vals = append(vals, a)
		}
	}
	return vals, nil
}

func runFill(ctx context.Context, filler *fill.Filler, cfg *config.Config, input, output string) error {
	vals, err := values()
	if err != nil {
		return err
	}
	if len(vals.Sanitize()) == 0 {
		return fillerr.Errorf(fillerr.ConfigInvalid, "fill", "no values given, use -data or -values")
	}
	if output == "" {
		output = cfg.Naming().Path(input)
	}

	out, stats, err := filler.Fill(ctx, fill.Request{
		Input:  input,
		Values: vals,
		Pages:  cfg.Pages,
		Output: output,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%d/%d\t%s\t%s\n", output, len(stats.Matched), stats.Total, out.Executed, out.Digest)
	for _, tmp := range out.TempFiles {
		fmt.Printf("kept\t%s\n", tmp)
	}
	return nil
}

func runBatch(ctx context.Context, filler *fill.Filler, cfg *config.Config, input string, logger *slog.Logger) error {
	records, err := fill.LoadRecords(batchFile)
	if err != nil {
		return err
	}
	results, err := filler.Batch(ctx, fill.BatchRequest{
		Input:   input,
		Records: records,
		Pages:   cfg.Pages,
		Naming:  cfg.Naming(),
		Workers: cfg.Render.Workers,
		Retry:   cfg.Retry(),
	})
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("%d\tfailed\t%v\n", res.Index, res.Err)
			continue
		}
		fmt.Printf("%d\t%s\t%d/%d\t%s\t%s\n", res.Index, res.Output,
			len(res.Stats.Matched), res.Stats.Total, res.Executed, res.Digest)
	}
	logger.Info("batch done", "records", len(results), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d records failed", failed, len(results))
	}
	return nil
}

func runFind(filler *fill.Filler, cfg *config.Config, input string) error {
	src, err := fill.OpenPDF(input)
	if err != nil {
		return err
	}
	search := fill.ParsePageSelection(cfg.Pages, src.NumPages(), true, nil)
	if len(search) == 0 {
		search = []int{cfg.Matching.DefaultPage}
	}

	for _, raw := range find {
		found := false
		for _, keyword := range anchor.SplitAliases(raw, cfg.Separator()) {
			for _, page := range search {
				hit, err := filler.FindKeyword(src, keyword, page, -1)
				if err != nil {
					if fillerr.Is(err, fillerr.KeywordNotLocated) || fillerr.Is(err, fillerr.PageIndexOutOfRange) {
						continue
					}
					return err
				}
				found = true
				fmt.Printf("%s\tpage %d\tscore %.2f\tbox %.2f,%.2f,%.2f,%.2f\tanchor %.2f,%.2f\n",
					hit.Keyword, hit.PageIndex+1, hit.Score,
					hit.BBox.X0, hit.BBox.Top, hit.BBox.X1, hit.BBox.Bottom,
					hit.Anchor.X, hit.Anchor.Y)
			}
		}
		if !found {
			fmt.Printf("%s\tnot found\n", raw)
		}
	}
	return nil
}

// fail logs err and exits with 1
func fail(logger *slog.Logger, err error) {
	attrs := []any{"error", err}
	if kind := fillerr.KindOf(err); kind != nil {
		attrs = append(attrs, "code", kind.Code)
	}
	logger.Error("pdffill failed", attrs...)
	os.Exit(1)
}
