// Package reconcile runs the field reconciliation pipeline behind the MCP
// tools and the CLI: file checks, native widget detection, merge and text
// filtering.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/a3tai/pdf-field-reconciler/internal/config"
	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/merge"
	"github.com/a3tai/pdf-field-reconciler/internal/structure"
	"github.com/a3tai/pdf-field-reconciler/internal/textfilter"
)

// Service wires the detectors, the merger and the filter together.
type Service struct {
	cfg      *config.Config
	paths    *PathValidator
	merger   *merge.Merger
	detector *structure.Detector
	filter   *textfilter.Filter
	prefixes []string
	log      zerolog.Logger
}

// NewService creates a Service from validated configuration.
func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	paths, err := NewPathValidator(cfg.PDFDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	merger, err := merge.New(cfg.MergeConfig(&logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create merger: %w", err)
	}

	labels, err := merge.NewLabelMatcher(cfg.GenericLabelPrefixes)
	if err != nil {
		return nil, fmt.Errorf("invalid generic label prefixes: %w", err)
	}

	return &Service{
		cfg:      cfg,
		paths:    paths,
		merger:   merger,
		detector: structure.New(structure.Config{InferLabels: cfg.InferLabels}, logger),
		filter:   textfilter.New(cfg.TextOverlap, logger),
		prefixes: labels.Prefixes(),
		log:      logger.With().Str("component", "reconcile").Logger(),
	}, nil
}

// Merge reconciles candidate lists passed in directly.
func (s *Service) Merge(req MergeRequest) (*MergeResult, error) {
	var (
		fields []detection.Candidate
		report merge.Report
	)
	if len(req.AcroForm) > 0 {
		others := slices.Concat(req.Structure, req.Geometric, req.Vision)
		fields, report = s.merger.MergeWithAcroFormReport(req.AcroForm, others)
	} else {
		fields, report = s.merger.MergeReport(req.Structure, req.Geometric, req.Vision)
	}

	result := &MergeResult{Fields: fields, Summary: summarize(report)}
	if req.Trace {
		result.Trace = report.Lines()
	}

	s.log.Info().
		Int("input", report.Input).
		Int("output", report.Output).
		Int("dropped", report.Dropped).
		Msg("merged candidates")
	return result, nil
}

// DetectStructure lists the native widgets of one PDF as Structure candidates.
func (s *Service) DetectStructure(ctx context.Context, req DetectStructureRequest) (*DetectStructureResult, error) {
	path, err := s.pdfPath(req.Path)
	if err != nil {
		return nil, err
	}

	fields, err := s.detector.DetectFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("structure detection failed: %w", err)
	}
	return &DetectStructureResult{Path: path, Fields: fields}, nil
}

// ReconcileFile runs native widget detection on the PDF, merges the result
// with the optional candidate files and drops fields sitting on text.
func (s *Service) ReconcileFile(ctx context.Context, req ReconcileFileRequest) (*ReconcileFileResult, error) {
	path, err := s.pdfPath(req.Path)
	if err != nil {
		return nil, err
	}

	geometric, err := s.ReadCandidates(req.GeometricPath)
	if err != nil {
		return nil, fmt.Errorf("geometric candidates: %w", err)
	}
	vision, err := s.ReadCandidates(req.VisionPath)
	if err != nil {
		return nil, fmt.Errorf("vision candidates: %w", err)
	}
	acroform, err := s.ReadCandidates(req.AcroFormPath)
	if err != nil {
		return nil, fmt.Errorf("acroform candidates: %w", err)
	}

	structural, err := s.detector.DetectFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("structure detection failed: %w", err)
	}

	merged, err := s.Merge(MergeRequest{
		Structure: structural,
		Geometric: geometric,
		Vision:    vision,
		AcroForm:  acroform,
		Trace:     req.Trace,
	})
	if err != nil {
		return nil, err
	}

	result := &ReconcileFileResult{
		Path:      path,
		Fields:    merged.Fields,
		Summary:   merged.Summary,
		Structure: len(structural),
		Trace:     merged.Trace,
	}
	if req.SkipTextFilter {
		return result, nil
	}

	kept, rejected, err := s.filter.ApplyFile(ctx, path, merged.Fields)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.TextFilterError = err.Error()
		return result, nil
	}

	result.Fields = kept
	for _, r := range rejected {
		result.Rejected = append(result.Rejected, RejectedField{Field: r.Candidate, Overlap: r.Overlap})
	}
	return result, nil
}

// ServerInfo describes the running configuration and the available tools.
func (s *Service) ServerInfo() *ServerInfoResult {
	return &ServerInfoResult{
		ServerName:       s.cfg.ServerName,
		Version:          s.cfg.Version,
		DefaultDirectory: s.paths.Root(),
		MaxFileSize:      s.cfg.MaxFileSize,
		IoUThreshold:     s.merger.Threshold(),
		TextOverlap:      s.filter.Threshold(),
		LabelPrefixes:    slices.Clone(s.prefixes),
		AvailableTools:   availableTools(),
		UsageGuidance:    usageGuidance(s.cfg.MaxFileSize),
	}
}

// Threshold returns the merger's IoU threshold.
func (s *Service) Threshold() float64 {
	return s.merger.Threshold()
}

func (s *Service) pdfPath(path string) (string, error) {
	resolved, err := s.paths.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	if err := validateFile(resolved, ".pdf", s.cfg.MaxFileSize); err != nil {
		return "", err
	}
	return resolved, nil
}

// ReadCandidates loads an optional candidate file after the same path and
// file checks as PDFs, with a .json extension. An empty path is no
// candidates.
func (s *Service) ReadCandidates(path string) ([]detection.Candidate, error) {
	if path == "" {
		return []detection.Candidate{}, nil
	}
	resolved, err := s.paths.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	if err := validateFile(resolved, ".json", s.cfg.MaxFileSize); err != nil {
		return nil, err
	}
	return detection.ReadFile(resolved)
}
