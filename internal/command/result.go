package command

import "github.com/dshills/rustbridge/internal/analyzer"

// Result is what a command hands back to the caller: a one-line summary plus
// a command-specific payload that marshals cleanly to JSON.
type Result struct {
	Command string `json:"command"`
	Summary string `json:"summary"`
	Data    any    `json:"data,omitempty"`
}

// LocationInfo is a file position in caller-friendly form.
type LocationInfo struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	EndLine   int    `json:"end_line"`
	EndChar   int    `json:"end_character"`
}

func locationInfo(loc analyzer.Location) LocationInfo {
	return LocationInfo{
		Path:      analyzer.URIToFilePath(loc.URI),
		Line:      loc.Range.Start.Line,
		Character: loc.Range.Start.Character,
		EndLine:   loc.Range.End.Line,
		EndChar:   loc.Range.End.Character,
	}
}

// DiagnosticInfo is one diagnostic in caller-friendly form.
type DiagnosticInfo struct {
	Severity  string `json:"severity"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Source    string `json:"source,omitempty"`
}

func diagnosticInfo(d analyzer.Diagnostic) DiagnosticInfo {
	return DiagnosticInfo{
		Severity:  d.Severity.String(),
		Code:      d.CodeString(),
		Message:   d.Message,
		Line:      d.Range.Start.Line,
		Character: d.Range.Start.Character,
		Source:    d.Source,
	}
}

// SymbolInfo is one workspace symbol in caller-friendly form.
type SymbolInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Container string `json:"container,omitempty"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
}

func symbolInfo(s analyzer.SymbolInformation) SymbolInfo {
	return SymbolInfo{
		Name:      s.Name,
		Kind:      s.Kind.String(),
		Container: s.ContainerName,
		Path:      analyzer.URIToFilePath(s.Location.URI),
		Line:      s.Location.Range.Start.Line,
	}
}

// FileChange records one file a command rewrote, with the edit count that
// was applied to it.
type FileChange struct {
	Path  string `json:"path"`
	Edits int    `json:"edits"`
}
