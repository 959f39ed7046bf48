package reconcile

import (
	"github.com/a3tai/pdf-field-reconciler/internal/detection"
	"github.com/a3tai/pdf-field-reconciler/internal/merge"
)

// MergeRequest carries detector outputs produced elsewhere.
type MergeRequest struct {
	Structure []detection.Candidate
	Geometric []detection.Candidate
	Vision    []detection.Candidate
	// AcroForm, when non-empty, is resolved ahead of every other source.
	AcroForm []detection.Candidate
	// Trace adds the per-decision explanation to the result.
	Trace bool
}

// DetectStructureRequest asks for the native widgets of one PDF.
type DetectStructureRequest struct {
	Path string `json:"path"`
}

// ReconcileFileRequest runs the whole pipeline for one PDF: native widgets,
// the optional candidate files of the other detectors, merge, text filter.
type ReconcileFileRequest struct {
	Path          string `json:"path"`
	GeometricPath string `json:"geometric_path,omitempty"`
	VisionPath    string `json:"vision_path,omitempty"`
	AcroFormPath  string `json:"acroform_path,omitempty"`
	// SkipTextFilter returns the merged fields without the text overlap pass.
	SkipTextFilter bool `json:"skip_text_filter,omitempty"`
	Trace          bool `json:"trace,omitempty"`
}

// Summary condenses a merge.Report.
type Summary struct {
	Threshold float64 `json:"iou_threshold"`
	Input     int     `json:"input"`
	Output    int     `json:"output"`
	Absorbed  int     `json:"absorbed"`
	Dropped   int     `json:"dropped"`
	Clamped   int     `json:"clamped"`
}

func summarize(r merge.Report) Summary {
	return Summary{
		Threshold: r.Threshold,
		Input:     r.Input,
		Output:    r.Output,
		Absorbed:  r.Absorbed(),
		Dropped:   r.Dropped,
		Clamped:   r.Clamped,
	}
}

// MergeResult is the reconciled field list.
type MergeResult struct {
	Fields  []detection.Candidate `json:"fields"`
	Summary Summary               `json:"summary"`
	Trace   []string              `json:"trace,omitempty"`
}

// DetectStructureResult lists the Structure candidates found in a PDF.
type DetectStructureResult struct {
	Path   string                `json:"path"`
	Fields []detection.Candidate `json:"fields"`
}

// RejectedField is a merged field dropped for sitting on printed text.
type RejectedField struct {
	Field   detection.Candidate `json:"field"`
	Overlap float64             `json:"text_overlap"`
}

// ReconcileFileResult is the outcome of the full pipeline.
type ReconcileFileResult struct {
	Path      string                `json:"path"`
	Fields    []detection.Candidate `json:"fields"`
	Summary   Summary               `json:"summary"`
	Structure int                   `json:"structure_fields"`
	Rejected  []RejectedField       `json:"rejected,omitempty"`
	// TextFilterError is set when text could not be read; Fields are then
	// the unfiltered merge output.
	TextFilterError string   `json:"text_filter_error,omitempty"`
	Trace           []string `json:"trace,omitempty"`
}

// ServerInfoResult describes the server and its tools.
type ServerInfoResult struct {
	ServerName       string     `json:"server_name"`
	Version          string     `json:"version"`
	DefaultDirectory string     `json:"default_directory"`
	MaxFileSize      int64      `json:"max_file_size"`
	IoUThreshold     float64    `json:"iou_threshold"`
	TextOverlap      float64    `json:"text_overlap"`
	LabelPrefixes    []string   `json:"generic_label_prefixes"`
	AvailableTools   []ToolInfo `json:"available_tools"`
	UsageGuidance    string     `json:"usage_guidance"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
