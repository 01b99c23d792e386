package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/rustbridge/internal/analyzer"
)

func TestRenameSymbolAppliesEdits(t *testing.T) {
	d, fake := newTestDispatcher(t)

	path := filepath.Join(fake.root, "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn old() {}\n"), 0o644))

	uri := string(analyzer.FilePathToURI(path))
	fake.respond("textDocument/prepareRename",
		`{"range":{"start":{"line":0,"character":3},"end":{"line":0,"character":6}},"placeholder":"old"}`)
	fake.respond("textDocument/rename",
		`{"changes":{"`+uri+`":[{"range":{"start":{"line":0,"character":3},"end":{"line":0,"character":6}},"newText":"fresh"}]}}`)

	result, err := d.Execute(context.Background(), "rename_symbol",
		jsonArgs(t, map[string]any{"file_path": "lib.rs", "line": 0, "character": 4, "new_name": "fresh"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"textDocument/prepareRename", "textDocument/rename"}, fake.requests)
	assert.Equal(t, "fn fresh() {}\n", fake.updated[path])
	assert.Contains(t, result.Summary, "renamed old to fresh")
}

func TestRenameSymbolNotRenameable(t *testing.T) {
	d, fake := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(fake.root, "lib.rs"), []byte("// comment\n"), 0o644))
	fake.respond("textDocument/prepareRename", `null`)

	_, err := d.Execute(context.Background(), "rename_symbol",
		jsonArgs(t, map[string]any{"file_path": "lib.rs", "line": 0, "character": 3, "new_name": "x"}))

	assert.ErrorIs(t, err, ErrNoActionAvailable)
	// The rename request itself never goes out.
	assert.Equal(t, []string{"textDocument/prepareRename"}, fake.requests)
	assert.Empty(t, fake.updated)
}

func TestRenameSymbolCollisionPassesThrough(t *testing.T) {
	d, fake := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(fake.root, "lib.rs"), []byte("fn a() {}\n"), 0o644))
	fake.respond("textDocument/prepareRename",
		`{"range":{"start":{"line":0,"character":3},"end":{"line":0,"character":4}},"placeholder":"a"}`)
	fake.failOn = map[string]error{
		"textDocument/rename": &analyzer.RPCError{Code: analyzer.CodeRequestFailed, Message: "name conflicts with existing item"},
	}

	_, err := d.Execute(context.Background(), "rename_symbol",
		jsonArgs(t, map[string]any{"file_path": "lib.rs", "line": 0, "character": 4, "new_name": "a"}))

	var rpcErr *analyzer.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Empty(t, fake.updated)
}

func TestFormatCodeUnsupported(t *testing.T) {
	d, fake := newTestDispatcher(t)
	fake.unsupported = map[string]bool{"formatting": true}

	_, err := d.Execute(context.Background(), "format_code",
		jsonArgs(t, map[string]any{"file_path": "lib.rs"}))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, fake.requests)
}

func TestFormatCodeNoEdits(t *testing.T) {
	d, fake := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(fake.root, "lib.rs"), []byte("fn a() {}\n"), 0o644))
	fake.respond("textDocument/formatting", `null`)

	result, err := d.Execute(context.Background(), "format_code",
		jsonArgs(t, map[string]any{"file_path": "lib.rs"}))
	require.NoError(t, err)

	assert.Equal(t, "already formatted", result.Summary)
	assert.Empty(t, fake.updated)
}

func TestInlineFunctionNoAction(t *testing.T) {
	d, fake := newTestDispatcher(t)
	fake.respond("textDocument/codeAction", `[]`)

	_, err := d.Execute(context.Background(), "inline_function",
		jsonArgs(t, map[string]any{"file_path": "lib.rs", "line": 2, "character": 5}))
	assert.ErrorIs(t, err, ErrNoActionAvailable)
}

func TestPickAction(t *testing.T) {
	actions := []analyzer.CodeAction{
		{Title: "Extract into variable", Kind: analyzer.CodeActionExtract},
		{Title: "Extract into function", Kind: analyzer.CodeActionExtract, IsPreferred: true},
		{Title: "Inline call", Kind: analyzer.CodeActionInline},
	}

	got, ok := pickAction(actions, analyzer.CodeActionExtract, "function")
	require.True(t, ok)
	assert.Equal(t, "Extract into function", got.Title)

	got, ok = pickAction(actions, analyzer.CodeActionExtract, "")
	require.True(t, ok)
	// Preferred wins over first match.
	assert.Equal(t, "Extract into function", got.Title)

	_, ok = pickAction(actions, analyzer.CodeActionInline, "nothing matches")
	assert.False(t, ok)
}

func TestReplaceSignature(t *testing.T) {
	content := "struct S;\n\nimpl S {\n    pub fn get(&self, key: &str) -> Option<String> {\n        None\n    }\n}\n"

	updated, oldSig, err := replaceSignature(content, 3, "pub fn get(&self, key: &str, default: String) -> String")
	require.NoError(t, err)
	assert.Equal(t, "pub fn get(&self, key: &str) -> Option<String>", oldSig)
	assert.Contains(t, updated, "    pub fn get(&self, key: &str, default: String) -> String {\n        None")
}

func TestReplaceSignatureMultiline(t *testing.T) {
	content := "fn build(\n    a: u8,\n    b: u8,\n) -> u16 {\n    0\n}\n"

	updated, oldSig, err := replaceSignature(content, 0, "fn build(a: u8) -> u16")
	require.NoError(t, err)
	assert.Equal(t, "fn build( a: u8, b: u8, ) -> u16", oldSig)
	assert.Contains(t, updated, "fn build(a: u8) -> u16 {\n    0\n}")
}

func TestReplaceSignatureNoFunction(t *testing.T) {
	_, _, err := replaceSignature("const X: u8 = 1;\n", 0, "fn x()")
	assert.Error(t, err)
}

func TestExtractItem(t *testing.T) {
	content := `use std::fmt;

#[derive(Debug)]
pub struct Config {
    pub name: String,
}

pub fn helper(n: u8) -> u8 {
    n + 1
}

const LIMIT: usize = 10;
`

	item, remaining, ok := extractItem(content, "helper")
	require.True(t, ok)
	assert.Contains(t, item, "pub fn helper(n: u8) -> u8 {")
	assert.NotContains(t, remaining, "helper")
	assert.Contains(t, remaining, "pub struct Config")

	item, remaining, ok = extractItem(content, "Config")
	require.True(t, ok)
	// Attributes move with the item.
	assert.Contains(t, item, "#[derive(Debug)]")
	assert.Contains(t, item, "pub struct Config {")
	assert.NotContains(t, remaining, "Config")

	item, _, ok = extractItem(content, "LIMIT")
	require.True(t, ok)
	assert.Equal(t, "const LIMIT: usize = 10;", item)

	_, _, ok = extractItem(content, "nonexistent")
	assert.False(t, ok)
}

func TestMoveItems(t *testing.T) {
	d, fake := newTestDispatcher(t)
	source := filepath.Join(fake.root, "lib.rs")
	target := filepath.Join(fake.root, "util.rs")
	require.NoError(t, os.WriteFile(source, []byte("pub fn keep() {}\n\npub fn go(n: u8) -> u8 {\n    n\n}\n"), 0o644))

	result, err := d.Execute(context.Background(), "move_items",
		jsonArgs(t, map[string]any{
			"source_file": "lib.rs",
			"target_file": "util.rs",
			"item_names":  []string{"go"},
		}))
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "moved 1 items")
	assert.NotContains(t, fake.updated[source], "fn go")
	assert.Contains(t, fake.updated[source], "fn keep")
	assert.Contains(t, fake.updated[target], "pub fn go(n: u8) -> u8 {")
}
