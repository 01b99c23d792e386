package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dshills/rustbridge/internal/analyzer"
)

func registerRefactor(r *Registry) {
	r.mustRegister(&Descriptor{
		Name: "rename_symbol",
		Schema: append(Schema{
			{Name: "new_name", Type: TString, Required: true},
		}, positionSchema...),
		Class: ClassRefactor,
		Run:   runRenameSymbol,
	})
	r.mustRegister(&Descriptor{
		Name: "format_code",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runFormatCode,
	})
	r.mustRegister(&Descriptor{
		Name: "extract_function",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
			{Name: "start_line", Type: TInt, Required: true},
			{Name: "start_character", Type: TInt, Required: true},
			{Name: "end_line", Type: TInt, Required: true},
			{Name: "end_character", Type: TInt, Required: true},
			{Name: "function_name", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runExtractFunction,
	})
	r.mustRegister(&Descriptor{
		Name:   "inline_function",
		Schema: positionSchema,
		Class:  ClassRefactor,
		Run:    runInlineFunction,
	})
	r.mustRegister(&Descriptor{
		Name: "change_signature",
		Schema: append(Schema{
			{Name: "new_signature", Type: TString, Required: true},
		}, positionSchema...),
		Class: ClassRefactor,
		Run:   runChangeSignature,
	})
	r.mustRegister(&Descriptor{
		Name: "organize_imports",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runOrganizeImports,
	})
	r.mustRegister(&Descriptor{
		Name: "apply_clippy_suggestions",
		Schema: Schema{
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runApplyClippy,
	})
	r.mustRegister(&Descriptor{
		Name: "move_items",
		Schema: Schema{
			{Name: "source_file", Type: TString, Required: true},
			{Name: "target_file", Type: TString, Required: true},
			{Name: "item_names", Type: TList, Required: true},
		},
		Class: ClassRefactor,
		Run:   runMoveItems,
	})
}

// runRenameSymbol renames the symbol at a position across the workspace.
// prepareRename runs first so a position with nothing renameable fails
// before any edit is requested; a name collision surfaces as the analyzer's
// own error and leaves every file untouched.
func runRenameSymbol(ctx context.Context, e *Execution) (*Result, error) {
	if err := e.requireCapability("rename"); err != nil {
		return nil, err
	}
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	pos := positionParams(e, path)
	prep, err := e.Request(ctx, "textDocument/prepareRename", pos)
	if err != nil {
		return nil, err
	}
	if len(prep) == 0 || string(prep) == "null" {
		return nil, fmt.Errorf("%w: nothing renameable at %s:%d:%d", ErrNoActionAvailable,
			e.Args.Str("file_path"), e.Args.Int("line"), e.Args.Int("character"))
	}
	var target analyzer.PrepareRenameResult
	if err := json.Unmarshal(prep, &target); err != nil {
		return nil, fmt.Errorf("%w: prepareRename payload: %v", analyzer.ErrMalformedMessage, err)
	}

	params := analyzer.RenameParams{
		TextDocumentPositionParams: pos,
		NewName:                    e.Args.Str("new_name"),
	}
	raw, err := e.Request(ctx, "textDocument/rename", params)
	if err != nil {
		return nil, err
	}

	var edit analyzer.WorkspaceEdit
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &edit); err != nil {
			return nil, fmt.Errorf("%w: rename payload: %v", analyzer.ErrMalformedMessage, err)
		}
	}
	changes, err := applyWorkspaceEdit(ctx, e.Session, &edit)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("renamed to %s across %d files", e.Args.Str("new_name"), len(changes))
	if target.Placeholder != "" {
		summary = fmt.Sprintf("renamed %s to %s across %d files", target.Placeholder, e.Args.Str("new_name"), len(changes))
	}
	return &Result{
		Summary: summary,
		Data:    changes,
	}, nil
}

// runFormatCode formats one file with the analyzer's formatter.
func runFormatCode(ctx context.Context, e *Execution) (*Result, error) {
	if err := e.requireCapability("formatting"); err != nil {
		return nil, err
	}
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	params := analyzer.DocumentFormattingParams{
		TextDocument: analyzer.TextDocumentIdentifier{URI: analyzer.FilePathToURI(path)},
		Options:      analyzer.FormattingOptions{TabSize: 4, InsertSpaces: true},
	}
	raw, err := e.Request(ctx, "textDocument/formatting", params)
	if err != nil {
		return nil, err
	}

	var edits []analyzer.TextEdit
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, fmt.Errorf("%w: formatting payload: %v", analyzer.ErrMalformedMessage, err)
		}
	}
	if len(edits) == 0 {
		return &Result{Summary: "already formatted", Data: []FileChange{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := e.Session.UpdateFile(ctx, path, applyEdits(string(data), edits)); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("formatted %s", e.Args.Str("file_path")),
		Data:    []FileChange{{Path: path, Edits: len(edits)}},
	}, nil
}

// runExtractFunction extracts a source range into a new function. The
// analyzer names the extracted function itself; the requested name is
// applied afterwards within the edited file.
func runExtractFunction(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	rng := analyzer.Range{
		Start: analyzer.Position{Line: e.Args.Int("start_line"), Character: e.Args.Int("start_character")},
		End:   analyzer.Position{Line: e.Args.Int("end_line"), Character: e.Args.Int("end_character")},
	}
	actions, err := requestCodeActions(ctx, e, path, rng, analyzer.CodeActionExtract)
	if err != nil {
		return nil, err
	}
	action, ok := pickAction(actions, analyzer.CodeActionExtract, "function")
	if !ok {
		return nil, fmt.Errorf("%w: extract function at %d:%d", ErrNoActionAvailable, rng.Start.Line, rng.Start.Character)
	}

	changes, err := runActionCommand(ctx, e, action)
	if err != nil {
		return nil, err
	}

	// rust-analyzer names extractions fun_name; rewrite definition and call
	// site to the requested name.
	name := e.Args.Str("function_name")
	if name != "" && name != "fun_name" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		renamed := strings.ReplaceAll(string(data), "fun_name", name)
		if renamed != string(data) {
			if err := e.Session.UpdateFile(ctx, path, renamed); err != nil {
				return nil, err
			}
		}
	}
	return &Result{
		Summary: fmt.Sprintf("extracted %s", name),
		Data:    changes,
	}, nil
}

// runInlineFunction inlines the function or call at the cursor.
func runInlineFunction(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	rng := pointRange(e.Args.Int("line"), e.Args.Int("character"))
	actions, err := requestCodeActions(ctx, e, path, rng, analyzer.CodeActionInline)
	if err != nil {
		return nil, err
	}
	action, ok := pickAction(actions, analyzer.CodeActionInline, "inline")
	if !ok {
		return nil, fmt.Errorf("%w: inline at %d:%d", ErrNoActionAvailable, rng.Start.Line, rng.Start.Character)
	}

	changes, err := runActionCommand(ctx, e, action)
	if err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("inlined across %d files", len(changes)),
		Data:    changes,
	}, nil
}

// runChangeSignature rewrites the signature of the function at the cursor.
// The new signature replaces the whole declaration up to the body's opening
// brace; indentation and the body are preserved.
func runChangeSignature(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	line := e.Args.Int("line")
	newSig := strings.TrimSpace(e.Args.Str("new_signature"))

	updated, oldSig, err := replaceSignature(content, line, newSig)
	if err != nil {
		return nil, err
	}
	if err := e.Session.UpdateFile(ctx, path, updated); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("signature changed: %s", newSig),
		Data: map[string]string{
			"old_signature": oldSig,
			"new_signature": newSig,
		},
	}, nil
}

// replaceSignature swaps the function signature found at or after the given
// line for newSig, preserving indentation and the body.
func replaceSignature(content string, line int, newSig string) (updated, oldSig string, err error) {
	lines := strings.Split(content, "\n")
	if line < 0 || line >= len(lines) {
		return "", "", fmt.Errorf("line %d out of range", line)
	}

	// Find the fn keyword on or after the requested line.
	fnLine := -1
	for i := line; i < len(lines) && i <= line+2; i++ {
		if strings.Contains(lines[i], "fn ") {
			fnLine = i
			break
		}
	}
	if fnLine < 0 {
		return "", "", fmt.Errorf("no function at line %d", line)
	}

	// The signature runs from fn to the body's opening brace, possibly
	// spanning lines.
	endLine, brace := fnLine, -1
	for ; endLine < len(lines); endLine++ {
		if idx := strings.IndexByte(lines[endLine], '{'); idx >= 0 {
			brace = idx
			break
		}
		if strings.HasSuffix(strings.TrimSpace(lines[endLine]), ";") {
			return "", "", fmt.Errorf("line %d declares a function without a body", line)
		}
	}
	if brace < 0 {
		return "", "", fmt.Errorf("no function body after line %d", line)
	}

	indent := lines[fnLine][:len(lines[fnLine])-len(strings.TrimLeft(lines[fnLine], " \t"))]

	var sigParts []string
	for i := fnLine; i <= endLine; i++ {
		s := lines[i]
		if i == endLine {
			s = s[:brace]
		}
		sigParts = append(sigParts, strings.TrimSpace(s))
	}
	oldSig = strings.TrimSpace(strings.Join(sigParts, " "))

	newSig = strings.TrimSuffix(newSig, "{")
	newSig = strings.TrimSpace(newSig)
	replacement := indent + newSig + " " + lines[endLine][brace:]

	out := append([]string{}, lines[:fnLine]...)
	out = append(out, replacement)
	out = append(out, lines[endLine+1:]...)
	return strings.Join(out, "\n"), oldSig, nil
}

// runOrganizeImports runs the analyzer's import organizer over a file.
func runOrganizeImports(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	fullRange := analyzer.Range{
		Start: analyzer.Position{Line: 0, Character: 0},
		End:   analyzer.Position{Line: strings.Count(string(data), "\n") + 1, Character: 0},
	}

	actions, err := requestCodeActions(ctx, e, path, fullRange, analyzer.CodeActionOrganizeImports)
	if err != nil {
		return nil, err
	}
	action, ok := pickAction(actions, analyzer.CodeActionOrganizeImports, "")
	if !ok {
		return &Result{Summary: "imports already organized", Data: []FileChange{}}, nil
	}

	changes, err := runActionCommand(ctx, e, action)
	if err != nil {
		return nil, err
	}
	return &Result{Summary: "imports organized", Data: changes}, nil
}

// runApplyClippy applies every quickfix the analyzer offers for clippy
// findings in the file.
func runApplyClippy(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	var clippy []analyzer.Diagnostic
	for _, d := range e.Session.Diagnostics(path) {
		if strings.EqualFold(d.Source, "clippy") {
			clippy = append(clippy, d)
		}
	}
	if len(clippy) == 0 {
		return &Result{Summary: "no clippy findings", Data: []FileChange{}}, nil
	}

	applied := 0
	var allChanges []FileChange
	for _, d := range clippy {
		actions, err := requestCodeActions(ctx, e, path, d.Range, analyzer.CodeActionQuickFix)
		if err != nil {
			return nil, err
		}
		action, ok := pickAction(actions, analyzer.CodeActionQuickFix, "")
		if !ok {
			continue
		}
		changes, err := runActionCommand(ctx, e, action)
		if err != nil {
			return nil, err
		}
		allChanges = append(allChanges, changes...)
		applied++
	}
	return &Result{
		Summary: fmt.Sprintf("applied %d of %d clippy suggestions", applied, len(clippy)),
		Data:    allChanges,
	}, nil
}

// runMoveItems moves named top-level items from one file to another.
func runMoveItems(ctx context.Context, e *Execution) (*Result, error) {
	source := e.Path(e.Args.Str("source_file"))
	target := e.Path(e.Args.Str("target_file"))
	names := e.Args.Strings("item_names")
	if len(names) == 0 {
		return nil, invalidArgs("move_items", "item_names must not be empty")
	}

	if err := e.Session.EnsureOpen(ctx, source); err != nil {
		return nil, err
	}

	srcData, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	srcContent := string(srcData)

	var moved []string
	var carried []string
	for _, name := range names {
		item, remaining, ok := extractItem(srcContent, name)
		if !ok {
			return nil, fmt.Errorf("item %q not found in %s", name, e.Args.Str("source_file"))
		}
		srcContent = remaining
		carried = append(carried, item)
		moved = append(moved, name)
	}

	tgtContent := ""
	if data, err := os.ReadFile(target); err == nil {
		tgtContent = string(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if tgtContent != "" && !strings.HasSuffix(tgtContent, "\n") {
		tgtContent += "\n"
	}
	if tgtContent != "" {
		tgtContent += "\n"
	}
	tgtContent += strings.Join(carried, "\n\n") + "\n"

	if err := e.Session.UpdateFile(ctx, source, srcContent); err != nil {
		return nil, err
	}
	if err := e.Session.UpdateFile(ctx, target, tgtContent); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("moved %d items to %s", len(moved), e.Args.Str("target_file")),
		Data: map[string]any{
			"moved":  moved,
			"source": source,
			"target": target,
		},
	}, nil
}

// pickAction selects the first action of the wanted kind whose title
// contains the hint, preferring analyzer-marked preferred actions. An empty
// hint matches any title.
func pickAction(actions []analyzer.CodeAction, kind analyzer.CodeActionKind, hint string) (analyzer.CodeAction, bool) {
	var fallback analyzer.CodeAction
	found := false
	for _, a := range actions {
		if a.Kind != "" && !kind.Matches(a.Kind) && a.Kind != kind {
			continue
		}
		if hint != "" && !strings.Contains(strings.ToLower(a.Title), strings.ToLower(hint)) {
			continue
		}
		if a.IsPreferred {
			return a, true
		}
		if !found {
			fallback = a
			found = true
		}
	}
	return fallback, found
}

// extractItem removes the top-level item with the given name from content,
// returning the item's text and the remaining content. Items end at the
// matching closing brace, or at the terminating semicolon for braceless
// declarations.
func extractItem(content, name string) (item, remaining string, ok bool) {
	lines := strings.Split(content, "\n")

	keywords := []string{"fn", "struct", "enum", "trait", "mod", "const", "static", "type", "union"}
	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "pub ")
		trimmed = strings.TrimPrefix(trimmed, "pub(crate) ")
		trimmed = strings.TrimPrefix(trimmed, "async ")
		trimmed = strings.TrimPrefix(trimmed, "unsafe ")
		for _, kw := range keywords {
			if strings.HasPrefix(trimmed, kw+" ") {
				rest := strings.TrimPrefix(trimmed, kw+" ")
				if rest == name || strings.HasPrefix(rest, name+"(") || strings.HasPrefix(rest, name+"<") ||
					strings.HasPrefix(rest, name+" ") || strings.HasPrefix(rest, name+":") ||
					strings.HasPrefix(rest, name+";") || strings.HasPrefix(rest, name+"{") {
					start = i
				}
				break
			}
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", content, false
	}

	// Include attribute and doc comment lines directly above.
	first := start
	for first > 0 {
		t := strings.TrimSpace(lines[first-1])
		if strings.HasPrefix(t, "#[") || strings.HasPrefix(t, "///") {
			first--
			continue
		}
		break
	}

	depth := 0
	end := -1
	for i := start; i < len(lines); i++ {
		opened := strings.Count(lines[i], "{")
		closed := strings.Count(lines[i], "}")
		depth += opened - closed
		if depth == 0 {
			if opened > 0 || closed > 0 {
				end = i
				break
			}
			if strings.HasSuffix(strings.TrimSpace(lines[i]), ";") {
				end = i
				break
			}
		}
		if depth < 0 {
			return "", content, false
		}
	}
	if end < 0 {
		return "", content, false
	}

	item = strings.Join(lines[first:end+1], "\n")

	rest := append([]string{}, lines[:first]...)
	tail := lines[end+1:]
	// Swallow one blank separator line.
	if len(tail) > 0 && strings.TrimSpace(tail[0]) == "" {
		tail = tail[1:]
	}
	rest = append(rest, tail...)
	return item, strings.Join(rest, "\n"), true
}
