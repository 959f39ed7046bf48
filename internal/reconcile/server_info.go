package reconcile

import "fmt"

// Tool names shared by the MCP server and the server info listing.
const (
	ToolMerge           = "fields_merge"
	ToolDetectStructure = "fields_detect_structure"
	ToolReconcileFile   = "fields_reconcile_file"
	ToolServerInfo      = "fields_server_info"
)

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        ToolMerge,
			Description: "Merge field candidates from several detectors into one deduplicated list",
			Usage: "Use this tool when the detector outputs are already available as JSON. " +
				"Overlapping candidates collapse into the one from the highest priority source.",
			Parameters: "structure, geometric, vision, acroform (optional): JSON arrays of candidates, " +
				"trace (optional): include one line per merge decision",
		},
		{
			Name:        ToolDetectStructure,
			Description: "List the native form widgets of a PDF as structure candidates",
			Usage:       "Use this tool to see which fields the PDF itself declares before merging.",
			Parameters:  "path (required): PDF file, relative paths resolve against the default directory",
		},
		{
			Name:        ToolReconcileFile,
			Description: "Detect native widgets, merge with candidate files and drop fields on printed text",
			Usage: "Use this tool for the full pipeline on one PDF. Geometric and vision detector " +
				"output is read from JSON files next to the PDF.",
			Parameters: "path (required): PDF file, geometric_path, vision_path, acroform_path (optional): " +
				"candidate JSON files, skip_text_filter (optional), trace (optional)",
		},
		{
			Name:        ToolServerInfo,
			Description: "Get server information, thresholds and usage guidance",
			Usage:       "Use this tool to check the active IoU and text overlap thresholds.",
			Parameters:  "none",
		},
	}
}

func usageGuidance(maxFileSize int64) string {
	return `PDF Field Reconciler Usage Guide:

1. INSPECT THE FORM:
   - Use '` + ToolDetectStructure + `' to list the widgets the PDF declares

2. MERGE DETECTOR OUTPUT:
   - Use '` + ToolMerge + `' with JSON arrays from the structure, geometric and vision detectors
   - Each candidate is {"page_index", "bbox": {"x","y","width","height"}, "field_type", "label", "confidence", "source"}
   - Coordinates are normalized to [0,1] with the origin at the bottom-left of the page

3. RUN THE WHOLE PIPELINE:
   - Use '` + ToolReconcileFile + `' with the PDF path and optional candidate files
   - Fields covered by printed text are reported under 'rejected'

PRIORITY:
- structure > geometric > vision on overlap
- AcroForm candidates, when given, are resolved first and win every overlap
- Structure field types are never overridden
- Generic labels such as "Field 3" are replaced by descriptive labels from absorbed candidates

IMPORTANT NOTES:
- Output is ordered by page, then top to bottom, then left to right
- The server can handle files up to ` + fmt.Sprintf("%d", maxFileSize/(1024*1024)) + `MB`
}
