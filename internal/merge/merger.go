// Package merge reconciles field candidates from several detectors into one
// non-overlapping list per page.
//
// Detectors are resolved in a fixed priority order rather than clustered
// together: structure first, then geometric, then vision. Each incoming
// candidate is compared with everything already accepted on its page. If it
// overlaps an accepted candidate by more than the IoU threshold it is
// absorbed, donating its label, type and confidence according to the
// conflict rules; otherwise it is accepted unchanged. Geometry never changes
// after acceptance, so accepted candidates stay pairwise below the
// threshold.
package merge

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
)

// DefaultIoUThreshold is the overlap above which two candidates are the
// same field. Detectors rarely agree on exact extents, so it is loose.
const DefaultIoUThreshold = 0.30

// ErrInvalidThreshold is returned by New for thresholds outside [0,1].
var ErrInvalidThreshold = errors.New("iou threshold must be within [0, 1]")

// Config controls a Merger.
type Config struct {
	// IoUThreshold is the same-field cutoff; candidates match when IoU > it.
	IoUThreshold float64
	// Debug logs every merge decision at debug level. Results are unchanged.
	Debug bool
	// MarkMerged tags keepers that absorbed at least one donor with
	// detection.SourceMerged instead of their own source.
	MarkMerged bool
	// Workers bounds how many pages are reconciled at once. Values below 2
	// reconcile pages sequentially.
	Workers int
	// TypeRules overrides DefaultTypeRules when non-nil.
	TypeRules []TypeRule
	// GenericLabelPrefixes overrides DefaultGenericLabelPrefixes when non-empty.
	GenericLabelPrefixes []string
	// Logger receives sanitation warnings and debug traces. Nil discards.
	Logger *zerolog.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		IoUThreshold: DefaultIoUThreshold,
		Workers:      1,
	}
}

// Merger reconciles candidate lists. It holds no per-call state and is
// safe for concurrent use.
type Merger struct {
	threshold  float64
	debug      bool
	markMerged bool
	workers    int
	resolver   Resolver
	log        zerolog.Logger
}

// New validates cfg and builds a Merger.
func New(cfg Config) (*Merger, error) {
	if math.IsNaN(cfg.IoUThreshold) || cfg.IoUThreshold < 0 || cfg.IoUThreshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, cfg.IoUThreshold)
	}

	labels, err := NewLabelMatcher(cfg.GenericLabelPrefixes)
	if err != nil {
		return nil, fmt.Errorf("invalid generic label prefixes: %w", err)
	}

	rules := cfg.TypeRules
	if rules == nil {
		rules = DefaultTypeRules
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "merger").Logger()
	}

	return &Merger{
		threshold:  cfg.IoUThreshold,
		debug:      cfg.Debug,
		markMerged: cfg.MarkMerged,
		workers:    max(cfg.Workers, 1),
		resolver:   Resolver{Rules: slices.Clone(rules), Labels: labels},
		log:        logger,
	}, nil
}

// Threshold returns the configured IoU threshold.
func (m *Merger) Threshold() float64 {
	return m.threshold
}

// Merge reconciles the three detector outputs into one list in reading
// order. Empty or nil lists are valid.
func (m *Merger) Merge(structure, geometric, vision []detection.Candidate) []detection.Candidate {
	out, _ := m.MergeReport(structure, geometric, vision)
	return out
}

// MergeReport is Merge plus a trace of every decision taken.
func (m *Merger) MergeReport(structure, geometric, vision []detection.Candidate) ([]detection.Candidate, Report) {
	return m.reconcile([][]detection.Candidate{structure, geometric, vision})
}

// MergeWithAcroForm resolves AcroForm candidates ahead of everything else,
// so they win every overlap. The other candidates follow in source order.
func (m *Merger) MergeWithAcroForm(acroform, others []detection.Candidate) []detection.Candidate {
	out, _ := m.MergeWithAcroFormReport(acroform, others)
	return out
}

// MergeWithAcroFormReport is MergeWithAcroForm plus the decision trace.
func (m *Merger) MergeWithAcroFormReport(acroform, others []detection.Candidate) ([]detection.Candidate, Report) {
	rest := slices.Clone(others)
	slices.SortStableFunc(rest, func(a, b detection.Candidate) int {
		return a.Source().Rank() - b.Source().Rank()
	})
	return m.reconcile([][]detection.Candidate{acroform, rest})
}

type pageBucket struct {
	page  int
	cands []detection.Candidate
}

type pageResult struct {
	cands     []detection.Candidate
	decisions []Decision
}

func (m *Merger) reconcile(tiers [][]detection.Candidate) ([]detection.Candidate, Report) {
	report := Report{Threshold: m.threshold}

	byPage := make(map[int][]detection.Candidate)
	for _, tier := range tiers {
		for _, c := range tier {
			report.Input++
			clean, anomaly, ok := sanitize(c)
			if anomaly != nil {
				report.Anomalies = append(report.Anomalies, *anomaly)
				m.log.Warn().
					Int("page", c.Page()).
					Str("source", string(c.Source())).
					Str("label", c.Label()).
					Bool("dropped", !ok).
					Msg(anomaly.Reason)
			}
			if !ok {
				report.Dropped++
				continue
			}
			if anomaly != nil {
				report.Clamped++
			}
			byPage[clean.Page()] = append(byPage[clean.Page()], clean)
		}
	}

	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	slices.Sort(pages)

	buckets := make([]pageBucket, len(pages))
	for i, p := range pages {
		buckets[i] = pageBucket{page: p, cands: byPage[p]}
	}

	results := m.reconcilePages(buckets)

	var merged []detection.Candidate
	for _, r := range results {
		merged = append(merged, r.cands...)
		report.Decisions = append(report.Decisions, r.decisions...)
	}

	out := Sort(merged)
	report.Output = len(out)

	if m.debug {
		m.log.Debug().
			Int("input", report.Input).
			Int("output", report.Output).
			Int("dropped", report.Dropped).
			Int("clamped", report.Clamped).
			Msg("merge complete")
	}

	return out, report
}

func (m *Merger) reconcilePages(buckets []pageBucket) []pageResult {
	results := make([]pageResult, len(buckets))

	if m.workers < 2 || len(buckets) < 2 {
		for i, b := range buckets {
			results[i] = m.reconcilePage(b)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, b := range buckets {
		g.Go(func() error {
			results[i] = m.reconcilePage(b)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

type slot struct {
	cand     detection.Candidate
	absorbed int
}

// reconcilePage resolves one page. Candidates arrive in tier order, so
// every accepted slot outranks or ties whatever is compared against it.
func (m *Merger) reconcilePage(b pageBucket) pageResult {
	var (
		slots     []slot
		decisions []Decision
	)

	for _, c := range b.cands {
		// Slots are in acceptance order, which is priority order, so the
		// first match is the highest-priority overlapping keeper.
		best, bestIoU := -1, 0.0
		for i := range slots {
			if iou := slots[i].cand.IoU(c); iou > m.threshold {
				best, bestIoU = i, iou
				break
			}
		}

		if best < 0 {
			slots = append(slots, slot{cand: c})
			decisions = append(decisions, Decision{Page: b.page, Action: ActionAccepted, Keeper: c})
			continue
		}

		before := slots[best].cand
		res := m.resolver.Resolve(before, c)
		slots[best].cand = res.Keeper
		slots[best].absorbed++

		decisions = append(decisions, Decision{
			Page:           b.page,
			Action:         ActionAbsorbed,
			Keeper:         res.Keeper,
			Previous:       before,
			Donor:          c,
			IoU:            bestIoU,
			TypeRule:       res.TypeRule,
			TypeChanged:    res.TypeChanged,
			LabelInherited: res.LabelInherits,
		})
	}

	out := make([]detection.Candidate, len(slots))
	for i, s := range slots {
		out[i] = s.cand
		if m.markMerged && s.absorbed > 0 {
			out[i] = s.cand.WithSource(detection.SourceMerged)
		}
	}

	if m.debug {
		for _, d := range decisions {
			m.log.Debug().Int("page", d.Page).Str("action", string(d.Action)).Msg(d.String())
		}
		for _, o := range ResidualOverlaps(out, m.threshold) {
			m.log.Error().
				Int("page", b.page).
				Str("first", out[o.I].String()).
				Str("second", out[o.J].String()).
				Float64("iou", o.IoU).
				Msg("residual duplicate after merge")
		}
	}

	return pageResult{cands: out, decisions: decisions}
}
