package merge

import (
	"fmt"
	"math"
	"strings"

	"github.com/a3tai/pdf-field-reconciler/internal/detection"
)

// Action is what happened to one incoming candidate.
type Action string

const (
	ActionAccepted Action = "accepted"
	ActionAbsorbed Action = "absorbed"
)

// Decision records how one incoming candidate was handled.
type Decision struct {
	Page   int
	Action Action
	// Keeper is the accepted candidate after this step.
	Keeper detection.Candidate
	// Previous is the keeper before absorbing Donor. Empty when accepted.
	Previous detection.Candidate
	// Donor is the absorbed candidate. Empty when accepted.
	Donor          detection.Candidate
	IoU            float64
	TypeRule       string
	TypeChanged    bool
	LabelInherited bool
}

// String explains the decision in one line.
func (d Decision) String() string {
	if d.Action == ActionAccepted {
		return fmt.Sprintf("page %d: accepted %s %s %q at %s, no overlap above threshold",
			d.Page, d.Keeper.Source(), d.Keeper.FieldType(), d.Keeper.Label(), d.Keeper.BBox())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "page %d: %s %q absorbed %s %q (iou=%.3f)",
		d.Page, d.Previous.Source(), d.Previous.Label(), d.Donor.Source(), d.Donor.Label(), d.IoU)

	switch {
	case d.TypeChanged:
		fmt.Fprintf(&b, "; type %s -> %s by %s", d.Previous.FieldType(), d.Keeper.FieldType(), d.TypeRule)
	case d.TypeRule != "":
		fmt.Fprintf(&b, "; type %s kept by %s", d.Keeper.FieldType(), d.TypeRule)
	default:
		fmt.Fprintf(&b, "; type %s kept by priority", d.Keeper.FieldType())
	}

	if d.LabelInherited {
		fmt.Fprintf(&b, "; label %q inherited from %s", d.Keeper.Label(), d.Donor.Source())
	}
	return b.String()
}

// Anomaly is a malformed input candidate that was repaired or dropped.
type Anomaly struct {
	Candidate detection.Candidate
	Reason    string
	Dropped   bool
}

// Report summarizes one merge call.
type Report struct {
	Threshold float64
	Input     int
	Output    int
	Dropped   int
	Clamped   int
	Anomalies []Anomaly
	Decisions []Decision
}

// Absorbed counts the candidates folded into a keeper.
func (r Report) Absorbed() int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action == ActionAbsorbed {
			n++
		}
	}
	return n
}

// Lines renders the trace, one decision per line, anomalies first.
func (r Report) Lines() []string {
	lines := make([]string, 0, len(r.Anomalies)+len(r.Decisions))
	for _, a := range r.Anomalies {
		verb := "clamped"
		if a.Dropped {
			verb = "dropped"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", verb, a.Candidate, a.Reason))
	}
	for _, d := range r.Decisions {
		lines = append(lines, d.String())
	}
	return lines
}

// sanitize repairs what it can of an untrusted candidate. It drops
// candidates with non-finite numbers or a negative page and clamps
// everything else into the normalized page.
func sanitize(c detection.Candidate) (detection.Candidate, *Anomaly, bool) {
	if c.Page() < 0 {
		return c, &Anomaly{Candidate: c, Reason: "negative page index", Dropped: true}, false
	}
	if !c.BBox().IsFinite() {
		return c, &Anomaly{Candidate: c, Reason: "non-finite bbox coordinate", Dropped: true}, false
	}
	conf := c.Confidence()
	if math.IsNaN(conf) || math.IsInf(conf, 0) {
		return c, &Anomaly{Candidate: c, Reason: "non-finite confidence", Dropped: true}, false
	}

	var reasons []string
	if err := c.BBox().Validate(); err != nil {
		c = c.WithBBox(c.BBox().Clamp())
		reasons = append(reasons, "bbox clamped to page")
	}
	if conf < 0 || conf > 1 {
		c = c.WithConfidence(math.Max(0, math.Min(1, conf)))
		reasons = append(reasons, "confidence clamped to [0,1]")
	}
	if !c.FieldType().Valid() {
		c = c.WithFieldType(detection.FieldTypeUnknown)
		reasons = append(reasons, "unrecognized field type treated as unknown")
	}

	if len(reasons) == 0 {
		return c, nil, true
	}
	return c, &Anomaly{Candidate: c, Reason: strings.Join(reasons, ", ")}, true
}
