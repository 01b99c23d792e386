package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/dshills/rustbridge/internal/analyzer"
)

// resolvePath joins a relative path onto the workspace root; absolute paths
// pass through unchanged.
func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// offsetOf converts an LSP position (zero-based line, UTF-16 character) to a
// byte offset in content. Positions past the end of a line or file clamp to
// the nearest valid offset, matching how editors treat analyzer output.
func offsetOf(content string, pos analyzer.Position) int {
	offset := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(content[offset:], '\n')
		if next < 0 {
			return len(content)
		}
		offset += next + 1
	}

	units := 0
	for i, r := range content[offset:] {
		if units >= pos.Character || r == '\n' {
			return offset + i
		}
		units += utf16.RuneLen(r)
		if units > pos.Character {
			// Position fell inside a surrogate pair; snap to the rune start.
			return offset + i
		}
	}
	return len(content)
}

// applyEdits applies a set of text edits to content. Edits are applied
// last-to-first so earlier offsets stay valid.
func applyEdits(content string, edits []analyzer.TextEdit) string {
	sorted := make([]analyzer.TextEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	for _, e := range sorted {
		start := offsetOf(content, e.Range.Start)
		end := offsetOf(content, e.Range.End)
		if end < start {
			end = start
		}
		content = content[:start] + e.NewText + content[end:]
	}
	return content
}

// applyWorkspaceEdit writes a workspace edit to disk, keeping the analyzer's
// view of each touched file in sync. It returns one FileChange per file.
func applyWorkspaceEdit(ctx context.Context, s Session, edit *analyzer.WorkspaceEdit) ([]FileChange, error) {
	if edit == nil {
		return nil, nil
	}

	perFile := make(map[string][]analyzer.TextEdit)
	for uri, edits := range edit.Changes {
		path := analyzer.URIToFilePath(uri)
		perFile[path] = append(perFile[path], edits...)
	}
	for _, dc := range edit.DocumentChanges {
		path := analyzer.URIToFilePath(dc.TextDocument.URI)
		perFile[path] = append(perFile[path], dc.Edits...)
	}

	paths := make([]string, 0, len(perFile))
	for path := range perFile {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	changes := make([]FileChange, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return changes, fmt.Errorf("read %s: %w", path, err)
		}
		updated := applyEdits(string(data), perFile[path])
		if err := s.UpdateFile(ctx, path, updated); err != nil {
			return changes, err
		}
		changes = append(changes, FileChange{Path: path, Edits: len(perFile[path])})
	}
	return changes, nil
}

// requestCodeActions asks the analyzer for code actions over a range,
// optionally restricted to one kind.
func requestCodeActions(ctx context.Context, e *Execution, path string, rng analyzer.Range, only ...analyzer.CodeActionKind) ([]analyzer.CodeAction, error) {
	if err := e.requireCapability("codeAction"); err != nil {
		return nil, err
	}
	params := analyzer.CodeActionParams{
		TextDocument: analyzer.TextDocumentIdentifier{URI: analyzer.FilePathToURI(path)},
		Range:        rng,
		Context: analyzer.CodeActionContext{
			Diagnostics: e.Session.Diagnostics(path),
			Only:        only,
		},
	}
	raw, err := e.Request(ctx, "textDocument/codeAction", params)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var actions []analyzer.CodeAction
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("%w: code action payload: %v", analyzer.ErrMalformedMessage, err)
	}
	return actions, nil
}

// resolveActionEdit returns the action's workspace edit, asking the analyzer
// to resolve it when it was sent lazily.
func resolveActionEdit(ctx context.Context, e *Execution, action analyzer.CodeAction) (*analyzer.WorkspaceEdit, error) {
	if action.Edit != nil {
		return action.Edit, nil
	}

	raw, err := e.Request(ctx, "codeAction/resolve", action)
	if err != nil {
		return nil, err
	}
	var resolved analyzer.CodeAction
	if err := json.Unmarshal(raw, &resolved); err != nil {
		return nil, fmt.Errorf("%w: resolved code action: %v", analyzer.ErrMalformedMessage, err)
	}
	if resolved.Edit == nil {
		return nil, fmt.Errorf("%w: action %q resolved without an edit", ErrNoActionAvailable, action.Title)
	}
	return resolved.Edit, nil
}

// runActionCommand executes one code action end to end: resolve its edit and
// apply it to the workspace.
func runActionCommand(ctx context.Context, e *Execution, action analyzer.CodeAction) ([]FileChange, error) {
	edit, err := resolveActionEdit(ctx, e, action)
	if err != nil {
		return nil, err
	}
	return applyWorkspaceEdit(ctx, e.Session, edit)
}

// pointRange is the zero-width range at a cursor position.
func pointRange(line, character int) analyzer.Range {
	p := analyzer.Position{Line: line, Character: character}
	return analyzer.Range{Start: p, End: p}
}
