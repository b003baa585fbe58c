package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/gookit/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"contract-analyzer/internal/analyses"
	"contract-analyzer/internal/apperr"
	"contract-analyzer/internal/bootstrap"
	"contract-analyzer/internal/export"
	"contract-analyzer/internal/extract"
	"contract-analyzer/internal/shared/storage/object"
	"contract-analyzer/internal/shared/telemetry"
)

var (
	analyzeConcurrency int
	analyzeOutDir      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Analyze contract files and write JSON exports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gw, err := bootstrap.NewGateway(cfg)
		if err != nil {
			return fmt.Errorf("build gateway: %w", err)
		}
		pipeline := &analyses.Pipeline{
			Extractor: extract.New(cfg.MaxUploadBytes),
			Generator: gw,
		}

		outcomes, err := analyzeFiles(ctx, pipeline, args, analyzeConcurrency)
		if err != nil {
			return err
		}
		for i := range outcomes {
			if outcomes[i].Err != nil {
				continue
			}
			path, err := writeExport(analyzeOutDir, outcomes[i].Result)
			if err != nil {
				outcomes[i].Err = err
				continue
			}
			outcomes[i].Output = path
		}

		printSummary(cmd.OutOrStdout(), outcomes)
		failed := lo.CountBy(outcomes, func(o outcome) bool { return o.Err != nil })
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 4, "max files analyzed at once")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out", ".", "directory for JSON exports")
	rootCmd.AddCommand(analyzeCmd)
}

type outcome struct {
	Path   string
	Result analyses.AnalysisResult
	Output string
	Err    error
}

// analyzeFiles runs the pipeline over paths with at most concurrency files in
// flight. Per-file failures are recorded on the outcome and never abort the run.
func analyzeFiles(ctx context.Context, pipeline *analyses.Pipeline, paths []string, concurrency int) ([]outcome, error) {
	outcomes := lo.Map(paths, func(p string, _ int) outcome { return outcome{Path: p} })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	var succeeded, failed atomic.Int64
	for i := range outcomes {
		g.Go(func() error {
			o := &outcomes[i]
			doc, err := loadDocument(o.Path)
			if err == nil {
				o.Result, err = pipeline.Analyze(gctx, doc)
			}
			if err != nil {
				failed.Add(1)
				o.Err = err
				telemetry.Warn("contractctl.analyze_failed", map[string]any{
					"file": o.Path,
					"code": string(apperr.KindOf(err)),
				})
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze files: %w", err)
	}

	telemetry.Info("contractctl.analyze_complete", map[string]any{
		"succeeded": succeeded.Load(),
		"failed":    failed.Load(),
	})
	return outcomes, nil
}

func loadDocument(path string) (extract.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Document{}, apperr.Wrap(apperr.KindFileRead, "Failed to read file", err)
	}
	head := data[:min(len(data), object.SniffLen)]
	return extract.Document{
		Data:     data,
		MimeType: object.DetectContentType(head),
		FileName: filepath.Base(path),
		Size:     int64(len(data)),
	}, nil
}

func writeExport(dir string, result analyses.AnalysisResult) (string, error) {
	path := filepath.Join(dir, export.FileName(result.FileName, export.FormatJSON))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	if err := export.WriteJSON(f, result); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return path, nil
}

var riskStyles = map[string]color.Color{
	analyses.RiskLow:    color.FgGreen,
	analyses.RiskMedium: color.FgYellow,
	analyses.RiskHigh:   color.FgRed,
}

func printSummary(w io.Writer, outcomes []outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			code := string(apperr.KindOf(o.Err))
			if code == "" {
				code = analyses.ErrorCodeInternal
			}
			fmt.Fprintf(w, "%s %s: %s\n", color.FgRed.Render("FAIL"), o.Path, failureMessage(o.Err))
			fmt.Fprintf(w, "     code=%s\n", code)
			continue
		}
		r := o.Result
		style, ok := riskStyles[r.RiskLevel]
		if !ok {
			style = color.FgWhite
		}
		fmt.Fprintf(w, "%s %s: %s risk=%s score=%.2f parties=%d\n",
			color.FgGreen.Render("OK"), o.Path, r.DocumentType, style.Render(r.RiskLevel), r.CompletionScore, len(r.Parties))
		if o.Output != "" {
			fmt.Fprintf(w, "     wrote %s\n", o.Output)
		}
	}
}

func failureMessage(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Message
	}
	return err.Error()
}
