package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStruct(t *testing.T) {
	d, fake := newTestDispatcher(t)

	result, err := d.Execute(context.Background(), "generate_struct",
		jsonArgs(t, map[string]any{
			"struct_name": "User",
			"fields": []map[string]string{
				{"name": "id", "type": "u64"},
				{"name": "email", "type": "String"},
			},
			"derives":   []string{"Debug", "Clone"},
			"file_path": "models.rs",
		}))
	require.NoError(t, err)

	path := filepath.Join(fake.root, "models.rs")
	content := fake.updated[path]
	assert.Contains(t, content, "#[derive(Debug, Clone)]")
	assert.Contains(t, content, "pub struct User {")
	assert.Contains(t, content, "    pub id: u64,")
	assert.Contains(t, content, "    pub email: String,")
	assert.Contains(t, result.Summary, "generated struct User with 2 fields")
}

func TestGenerateStructStringFields(t *testing.T) {
	d, fake := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "generate_struct",
		jsonArgs(t, map[string]any{
			"struct_name": "Point",
			"fields":      []string{"x: f64", "y: f64"},
			"file_path":   "geo.rs",
		}))
	require.NoError(t, err)

	content := fake.updated[filepath.Join(fake.root, "geo.rs")]
	assert.Contains(t, content, "    pub x: f64,")
	assert.NotContains(t, content, "#[derive")
}

func TestGenerateStructBadFields(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "generate_struct",
		jsonArgs(t, map[string]any{
			"struct_name": "Bad",
			"fields":      []string{"no_type_here"},
			"file_path":   "x.rs",
		}))
	var argErr *InvalidArgumentsError
	assert.ErrorAs(t, err, &argErr)
}

func TestGenerateStructAppendsToExisting(t *testing.T) {
	d, fake := newTestDispatcher(t)
	path := filepath.Join(fake.root, "models.rs")
	require.NoError(t, os.WriteFile(path, []byte("pub struct Existing;\n"), 0o644))

	_, err := d.Execute(context.Background(), "generate_struct",
		jsonArgs(t, map[string]any{
			"struct_name": "Second",
			"fields":      []string{"v: u8"},
			"file_path":   "models.rs",
		}))
	require.NoError(t, err)

	content := fake.updated[path]
	assert.Contains(t, content, "pub struct Existing;\n\npub struct Second {")
}

func TestGenerateEnum(t *testing.T) {
	d, fake := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "generate_enum",
		jsonArgs(t, map[string]any{
			"enum_name": "State",
			"variants":  []string{"Idle", "Running(u32)", "Done { code: i32 }"},
			"derives":   []string{"Debug"},
			"file_path": "state.rs",
		}))
	require.NoError(t, err)

	content := fake.updated[filepath.Join(fake.root, "state.rs")]
	assert.Contains(t, content, "pub enum State {")
	assert.Contains(t, content, "    Idle,")
	assert.Contains(t, content, "    Running(u32),")
	assert.Contains(t, content, "    Done { code: i32 },")
}

func TestGenerateTraitImpl(t *testing.T) {
	d, fake := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "generate_trait_impl",
		jsonArgs(t, map[string]any{
			"trait_name":  "Display",
			"struct_name": "User",
			"file_path":   "models.rs",
		}))
	require.NoError(t, err)

	content := fake.updated[filepath.Join(fake.root, "models.rs")]
	assert.Contains(t, content, "impl std::fmt::Display for User {")
	assert.Contains(t, content, "fn fmt(&self, f: &mut std::fmt::Formatter<'_>)")
}

func TestGenerateTraitImplUnknownTrait(t *testing.T) {
	d, fake := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), "generate_trait_impl",
		jsonArgs(t, map[string]any{
			"trait_name":  "Repository",
			"struct_name": "UserStore",
			"file_path":   "store.rs",
		}))
	require.NoError(t, err)

	content := fake.updated[filepath.Join(fake.root, "store.rs")]
	assert.Contains(t, content, "impl Repository for UserStore {\n}")
}

func TestGenerateTests(t *testing.T) {
	d, fake := newTestDispatcher(t)

	result, err := d.Execute(context.Background(), "generate_tests",
		jsonArgs(t, map[string]any{
			"target_function": "parse_header",
			"file_path":       "parser.rs",
			"test_cases":      []string{"empty input", "valid header"},
		}))
	require.NoError(t, err)

	content := fake.updated[filepath.Join(fake.root, "parser.rs")]
	assert.Contains(t, content, "#[cfg(test)]")
	assert.Contains(t, content, "mod tests {")
	assert.Contains(t, content, "fn test_parse_header_empty_input()")
	assert.Contains(t, content, "fn test_parse_header_valid_header()")
	assert.Contains(t, result.Summary, "generated 2 tests")
}

func TestSanitizeIdent(t *testing.T) {
	assert.Equal(t, "test_f_empty_input", sanitizeIdent("test_f_empty input"))
	assert.Equal(t, "weird_name", sanitizeIdent("  Weird--Name!! "))
}

func TestCreateModule(t *testing.T) {
	d, fake := newTestDispatcher(t)
	src := filepath.Join(fake.root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "lib.rs"), []byte("pub mod existing;\n"), 0o644))

	result, err := d.Execute(context.Background(), "create_module",
		jsonArgs(t, map[string]any{"module_name": "storage", "is_public": true}))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(src, "storage.rs"))
	parent, err2 := os.ReadFile(filepath.Join(src, "lib.rs"))
	require.NoError(t, err2)
	assert.Contains(t, string(parent), "pub mod storage;")
	assert.Contains(t, result.Summary, "created module storage")
}

func TestCreateModuleAlreadyExists(t *testing.T) {
	d, fake := newTestDispatcher(t)
	src := filepath.Join(fake.root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "storage.rs"), []byte(""), 0o644))

	_, err := d.Execute(context.Background(), "create_module",
		jsonArgs(t, map[string]any{"module_name": "storage"}))
	assert.Error(t, err)
}
