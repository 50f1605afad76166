// ABOUTME: "mammoscope predict" and "mammoscope compare" classify one image from the command line.
// ABOUTME: Runs in-process by default or against a server with --server; prints text, JSON, or CSV.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/client"
	"github.com/2389-research/mammoscope/predict"
	"github.com/2389-research/mammoscope/report"
)

// Output formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatCSV  = "csv"
)

// requestFlags are shared by predict and compare.
type requestFlags struct {
	server string
	mock   bool
	debug  bool
	format string
}

func (f *requestFlags) register(cmd *cobra.Command, formats string) {
	cmd.Flags().StringVar(&f.server, "server", "", "base URL of a running mammoscope server (default: run in-process)")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "return the canned result without running the engine")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "print engine diagnostics on failure")
	cmd.Flags().StringVarP(&f.format, "format", "f", formatText, "output format: "+formats)
}

func (f *requestFlags) options() client.Options {
	return client.Options{Mock: f.mock, Debug: f.debug}
}

// remote is what predict and compare need from either transport.
type remote interface {
	client.Predictor
	Compare(ctx context.Context, up client.Upload, opts client.Options) (*predict.Comparison, error)
}

var (
	_ remote = (*client.Client)(nil)
	_ remote = (*client.Local)(nil)
)

// connect returns an HTTP client for --server, or an in-process predictor.
func (f *requestFlags) connect(root *rootOptions, logOut io.Writer) (remote, error) {
	if f.server != "" {
		return client.New(f.server), nil
	}
	a, err := root.build(logOut)
	if err != nil {
		return nil, err
	}
	return &client.Local{
		Store:           a.store,
		Pipeline:        a.pipelines.Predict,
		ComparePipeline: a.pipelines.Compare,
	}, nil
}

func readUpload(path string) (client.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.Upload{}, fmt.Errorf("read image: %w", err)
	}
	return client.Upload{Name: filepath.Base(path), Data: data}, nil
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	var (
		flags  requestFlags
		pdfOut string
	)
	cmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a mammogram image and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format, formatText, formatJSON, formatCSV); err != nil {
				return err
			}
			up, err := readUpload(args[0])
			if err != nil {
				return err
			}
			p, err := flags.connect(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			res, err := p.Predict(cmd.Context(), up, flags.options())
			if err != nil {
				return explain(cmd.ErrOrStderr(), err)
			}
			if err := writeResult(cmd.OutOrStdout(), res, flags.format); err != nil {
				return err
			}
			if pdfOut != "" {
				return writePDF(cmd.Context(), res, pdfOut)
			}
			return nil
		},
	}
	flags.register(cmd, "text, json, csv")
	cmd.Flags().StringVar(&pdfOut, "pdf", "", "also print the report to this PDF file (needs Chrome)")
	return cmd
}

func newCompareCmd(root *rootOptions) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "compare <image>",
		Short: "Run the WOA and EWOA models on one image and compare them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.format, formatText, formatJSON); err != nil {
				return err
			}
			up, err := readUpload(args[0])
			if err != nil {
				return err
			}
			p, err := flags.connect(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmp, err := p.Compare(cmd.Context(), up, flags.options())
			if err != nil {
				return explain(cmd.ErrOrStderr(), err)
			}
			return writeComparison(cmd.OutOrStdout(), cmp, flags.format)
		},
	}
	flags.register(cmd, "text, json")
	return cmd
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(allowed, ", "))
}

// explain prints envelope diagnostics before returning err to cobra.
func explain(w io.Writer, err error) error {
	var envErr *client.EnvelopeError
	if errors.As(err, &envErr) && envErr.Diagnostics != "" {
		fmt.Fprintln(w, "diagnostics:")
		for _, line := range strings.Split(strings.TrimRight(envErr.Diagnostics, "\n"), "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
	return err
}

func writeResult(w io.Writer, res *predict.Result, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, res)
	case formatCSV:
		_, err := w.Write(report.CSV(res))
		return err
	}

	rep, err := report.Build(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-14s%s (%s)\n", "Prediction:", rep.Banner.Class, report.Percent(rep.Banner.Confidence))
	for _, c := range predict.Classes {
		fmt.Fprintf(w, "%-14s%s\n", string(c)+":", report.Percent(res.Probabilities.Of(c)))
	}
	if res.AbnormalityType != nil {
		fmt.Fprintf(w, "%-14s%s\n", "Abnormality:", *res.AbnormalityType)
	}
	if t := res.BackgroundTissue; t != nil {
		fmt.Fprintf(w, "%-14s%s (%s)\n", "Tissue:", t.Text, t.Code)
	}
	if e := res.Explanation; e != nil {
		for _, line := range e.Class {
			fmt.Fprintf(w, "%-14s%s\n", "Why:", line)
		}
		for _, line := range e.Abnormality {
			fmt.Fprintf(w, "%-14s%s\n", "Finding:", line)
		}
	}
	if len(rep.Features) > 0 {
		fmt.Fprintln(w, "Top features:")
		for _, f := range rep.Features {
			fmt.Fprintf(w, "  %2d. %-28s %s\n", f.Rank, f.Name, f.Percent)
		}
	}
	return nil
}

func writeComparison(w io.Writer, cmp *predict.Comparison, format string) error {
	if format == formatJSON {
		return writeJSON(w, cmp)
	}
	for _, m := range []struct {
		name string
		out  predict.ModelOutcome
	}{{"WOA", cmp.WOA}, {"EWOA", cmp.EWOA}} {
		fmt.Fprintf(w, "%-6s%s confidence %.3f in %.2fs\n", m.name, m.out.Prediction, m.out.Confidence, m.out.ExecutionTime)
		if len(m.out.TopFeatures) > 0 {
			fmt.Fprintf(w, "      top: %s\n", strings.Join(m.out.TopFeatures, ", "))
		}
	}
	verdict := "models disagree"
	if cmp.Agree() {
		verdict = "models agree"
	}
	fmt.Fprintf(w, "%s (total %.2fs)\n", verdict, cmp.TotalRuntime)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePDF prints the report through a headless browser.
func writePDF(ctx context.Context, res *predict.Result, path string) error {
	rep, err := report.Build(res)
	if err != nil {
		return err
	}
	html, err := report.PrintHTML(rep, time.Now())
	if err != nil {
		return err
	}
	browserCtx, cancel := report.NewBrowser(ctx)
	defer cancel()
	browserCtx, stop := context.WithTimeout(browserCtx, time.Minute)
	defer stop()

	pdf, err := report.PrintPDF(browserCtx, html)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
