package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a3tai/pdf-field-reconciler/internal/config"
	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/reconcile"
)

// options are the flags this tool adds on top of the shared configuration.
type options struct {
	structure string
	geometric string
	vision    string
	acroform  string
	pdf       string
	out       string
	format    string
	trace     bool
	noFilter  bool
}

func defineFlags(fs *pflag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.structure, "structure", "", "JSON candidate file from the structure detector")
	fs.StringVar(&o.geometric, "geometric", "", "JSON candidate file from the geometric detector")
	fs.StringVar(&o.vision, "vision", "", "JSON candidate file from the vision detector")
	fs.StringVar(&o.acroform, "acroform", "", "JSON candidate file of AcroForm fields, resolved first")
	fs.StringVar(&o.pdf, "pdf", "", "PDF to read native widgets and printed text from")
	fs.StringVar(&o.out, "out", "", "Write the merged fields here instead of stdout")
	fs.StringVar(&o.format, "format", "json", "Output format: json, text")
	fs.BoolVar(&o.trace, "trace", false, "Print one line per merge decision to stderr")
	fs.BoolVar(&o.noFilter, "no-text-filter", false, "Keep fields that sit on printed text (with --pdf)")
	return o
}

func (o *options) validate() error {
	if o.format != "json" && o.format != "text" {
		return fmt.Errorf("unsupported output format: %s", o.format)
	}
	if o.pdf != "" && o.structure != "" {
		return errors.New("--structure cannot be combined with --pdf, which detects structure itself")
	}
	if o.pdf == "" && o.structure == "" && o.geometric == "" && o.vision == "" && o.acroform == "" {
		return errors.New("no input: pass --pdf or at least one candidate file")
	}
	return nil
}

type outcome struct {
	fields   []detection.Candidate
	summary  reconcile.Summary
	rejected []reconcile.RejectedField
	trace    []string
	warning  string
}

func execute(ctx context.Context, o *options, service *reconcile.Service) (*outcome, error) {
	if o.pdf != "" {
		result, err := service.ReconcileFile(ctx, reconcile.ReconcileFileRequest{
			Path:           o.pdf,
			GeometricPath:  o.geometric,
			VisionPath:     o.vision,
			AcroFormPath:   o.acroform,
			SkipTextFilter: o.noFilter,
			Trace:          o.trace,
		})
		if err != nil {
			return nil, err
		}
		return &outcome{
			fields:   result.Fields,
			summary:  result.Summary,
			rejected: result.Rejected,
			trace:    result.Trace,
			warning:  result.TextFilterError,
		}, nil
	}

	req := reconcile.MergeRequest{Trace: o.trace}
	inputs := []struct {
		flag string
		path string
		dst  *[]detection.Candidate
	}{
		{"structure", o.structure, &req.Structure},
		{"geometric", o.geometric, &req.Geometric},
		{"vision", o.vision, &req.Vision},
		{"acroform", o.acroform, &req.AcroForm},
	}
	for _, in := range inputs {
		cands, err := service.ReadCandidates(in.path)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", in.flag, err)
		}
		*in.dst = cands
	}

	result, err := service.Merge(req)
	if err != nil {
		return nil, err
	}
	return &outcome{fields: result.Fields, summary: result.Summary, trace: result.Trace}, nil
}

func write(w io.Writer, format string, res *outcome) error {
	if format == "json" {
		return detection.Encode(w, res.fields)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%d field(s) from %d candidate(s), %d absorbed, %d dropped, %d clamped (iou > %.2f)\n",
		res.summary.Output, res.summary.Input, res.summary.Absorbed, res.summary.Dropped, res.summary.Clamped,
		res.summary.Threshold)
	for i, f := range res.fields {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, f)
	}
	for _, r := range res.rejected {
		fmt.Fprintf(&b, "rejected %s: %.0f%% on printed text\n", r.Field, r.Overlap*100)
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("failed to write fields: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, o *options, stdout, stderr io.Writer) error {
	if err := o.validate(); err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	service, err := reconcile.NewService(cfg, logger)
	if err != nil {
		return err
	}

	res, err := execute(ctx, o, service)
	if err != nil {
		return err
	}

	for _, line := range res.trace {
		fmt.Fprintln(stderr, line)
	}
	if res.warning != "" {
		fmt.Fprintf(stderr, "warning: text filter skipped: %s\n", res.warning)
	}

	if o.out == "" {
		return write(stdout, o.format, res)
	}
	return writeFile(o.out, o.format, res)
}

// writeFile writes the result to path, reporting close errors too.
func writeFile(path, format string, res *outcome) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()
	return write(file, format, res)
}

func main() {
	opts := defineFlags(pflag.CommandLine)

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
