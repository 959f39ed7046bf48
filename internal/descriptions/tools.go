package descriptions

import (
	"slices"

	"github.com/a3tai/pdf-field-reconciler/internal/reconcile"
)

// Tool descriptions shown to MCP clients, with examples and workflows.

const (
	MergeDescription = `Merge form field candidates from several detectors into one deduplicated, ordered list.

**When to use:** The structure, geometric and vision detectors have already run and their output is at hand as JSON.

**How overlaps resolve:** Two candidates on the same page whose boxes overlap above the IoU threshold are one field. The keeper comes from the higher priority source (structure > geometric > vision). It inherits a descriptive label when its own is generic ("Field 3") and may take a checkbox type from a small square donor. Structure types are never overridden.

**Examples:**
• Combine detector runs: "Merge these structure and vision candidates for page 1"
• Lock in native fields: pass AcroForm candidates in 'acroform' so they win every overlap

**Output:** fields ordered by page, then top to bottom, then left to right, plus a summary of absorbed, dropped and clamped candidates. Set 'trace' to see every decision.`

	DetectStructureDescription = `List the native form widgets a PDF declares, as structure candidates.

**When to use:** Before merging, to see what the document itself says about its fields.

**What you get:** one candidate per widget with a normalized box, a field type (text, multiline, checkbox or signature), confidence 0.98 and the best label available: tooltip, then field name, then nearby printed text.

**Examples:**
• "Which fields does application.pdf declare?"
• "Does contract.pdf have a signature field?"

**Best practices:** Scanned forms have no widgets; an empty list means the other detectors have to carry the page.`

	ReconcileFileDescription = `Run the full reconciliation pipeline on one PDF.

**When to use:** You have a PDF and, optionally, JSON candidate files from the geometric and vision detectors.

**Pipeline:**
1. Read the native widgets of the PDF
2. Load the candidate files named in 'geometric_path', 'vision_path' and 'acroform_path'
3. Merge everything by source priority
4. Drop fields that sit mostly on printed text (reported under 'rejected')

**Examples:**
• "Reconcile w9.pdf with vision.json"
• "Reconcile lease.pdf without the text check" (set 'skip_text_filter')

**Notes:** When the text layer cannot be read the merged fields are returned unfiltered and 'text_filter_error' says why.`

	ServerInfoDescription = `Get server status, active thresholds, available tools and a usage guide.

**When to use:** To check the IoU and text overlap thresholds or the default directory before calling other tools.

**Examples:**
• "What IoU threshold is the reconciler using?"
• "Which directory do relative paths resolve against?"`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	reconcile.ToolMerge:           MergeDescription,
	reconcile.ToolDetectStructure: DetectStructureDescription,
	reconcile.ToolReconcileFile:   ReconcileFileDescription,
	reconcile.ToolServerInfo:      ServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the described tool names in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
