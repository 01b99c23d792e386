package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

func registerGenerate(r *Registry) {
	r.mustRegister(&Descriptor{
		Name: "generate_struct",
		Schema: Schema{
			{Name: "struct_name", Type: TString, Required: true},
			{Name: "fields", Type: TList, Required: true},
			{Name: "derives", Type: TList, Required: false},
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runGenerateStruct,
	})
	r.mustRegister(&Descriptor{
		Name: "generate_enum",
		Schema: Schema{
			{Name: "enum_name", Type: TString, Required: true},
			{Name: "variants", Type: TList, Required: true},
			{Name: "derives", Type: TList, Required: false},
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runGenerateEnum,
	})
	r.mustRegister(&Descriptor{
		Name: "generate_trait_impl",
		Schema: Schema{
			{Name: "trait_name", Type: TString, Required: true},
			{Name: "struct_name", Type: TString, Required: true},
			{Name: "file_path", Type: TString, Required: true},
		},
		Class: ClassRefactor,
		Run:   runGenerateTraitImpl,
	})
	r.mustRegister(&Descriptor{
		Name: "generate_tests",
		Schema: Schema{
			{Name: "target_function", Type: TString, Required: true},
			{Name: "file_path", Type: TString, Required: true},
			{Name: "test_cases", Type: TList, Required: false},
		},
		Class: ClassRefactor,
		Run:   runGenerateTests,
	})
	r.mustRegister(&Descriptor{
		Name: "create_module",
		Schema: Schema{
			{Name: "module_name", Type: TString, Required: true},
			{Name: "module_path", Type: TString, Required: false},
			{Name: "is_public", Type: TBool, Required: false},
		},
		Class: ClassRefactor,
		Run:   runCreateModule,
	})
}

// fieldDef is one struct field from the arguments; elements may be objects
// {"name","type"} or strings "name: Type".
type fieldDef struct {
	Name string
	Type string
}

func parseFields(items []gjson.Result) ([]fieldDef, error) {
	out := make([]fieldDef, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsObject():
			name := item.Get("name").String()
			typ := item.Get("type").String()
			if name == "" || typ == "" {
				return nil, fmt.Errorf("field %s needs name and type", item.Raw)
			}
			out = append(out, fieldDef{Name: name, Type: typ})
		case item.Type == gjson.String:
			name, typ, ok := strings.Cut(item.String(), ":")
			if !ok {
				return nil, fmt.Errorf("field %q must look like \"name: Type\"", item.String())
			}
			out = append(out, fieldDef{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
		default:
			return nil, fmt.Errorf("field %s has unsupported shape", item.Raw)
		}
	}
	return out, nil
}

func deriveLine(derives []string) string {
	if len(derives) == 0 {
		return ""
	}
	return fmt.Sprintf("#[derive(%s)]\n", strings.Join(derives, ", "))
}

// appendToFile appends a code block to a file (creating it if needed) and
// pushes the new content to the analyzer.
func appendToFile(ctx context.Context, e *Execution, path, block string) error {
	content := ""
	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if content != "" {
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += "\n"
	}
	content += block
	return e.Session.UpdateFile(ctx, path, content)
}

func runGenerateStruct(ctx context.Context, e *Execution) (*Result, error) {
	name := e.Args.Str("struct_name")
	fields, err := parseFields(e.Args.List("fields"))
	if err != nil {
		return nil, invalidArgs("generate_struct", "%v", err)
	}

	var b strings.Builder
	b.WriteString(deriveLine(e.Args.Strings("derives")))
	fmt.Fprintf(&b, "pub struct %s {\n", name)
	for _, f := range fields {
		fmt.Fprintf(&b, "    pub %s: %s,\n", f.Name, f.Type)
	}
	b.WriteString("}\n")

	path := e.Path(e.Args.Str("file_path"))
	if err := appendToFile(ctx, e, path, b.String()); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("generated struct %s with %d fields", name, len(fields)),
		Data:    map[string]any{"file": path, "code": b.String()},
	}, nil
}

func runGenerateEnum(ctx context.Context, e *Execution) (*Result, error) {
	name := e.Args.Str("enum_name")
	variants := e.Args.Strings("variants")
	if len(variants) == 0 {
		return nil, invalidArgs("generate_enum", "variants must not be empty")
	}

	var b strings.Builder
	b.WriteString(deriveLine(e.Args.Strings("derives")))
	fmt.Fprintf(&b, "pub enum %s {\n", name)
	for _, v := range variants {
		fmt.Fprintf(&b, "    %s,\n", strings.TrimSuffix(strings.TrimSpace(v), ","))
	}
	b.WriteString("}\n")

	path := e.Path(e.Args.Str("file_path"))
	if err := appendToFile(ctx, e, path, b.String()); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("generated enum %s with %d variants", name, len(variants)),
		Data:    map[string]any{"file": path, "code": b.String()},
	}, nil
}

// traitTemplates holds method skeletons for the common std traits; anything
// else gets an empty impl block to fill in.
var traitTemplates = map[string]string{
	"Display": "    fn fmt(&self, f: &mut std::fmt::Formatter<'_>) -> std::fmt::Result {\n        write!(f, \"{:?}\", self)\n    }\n",
	"Default": "    fn default() -> Self {\n        todo!()\n    }\n",
	"Drop":    "    fn drop(&mut self) {\n    }\n",
	"Clone":   "    fn clone(&self) -> Self {\n        todo!()\n    }\n",
	"Iterator": "    type Item = ();\n\n" +
		"    fn next(&mut self) -> Option<Self::Item> {\n        None\n    }\n",
	"From": "    fn from(value: _) -> Self {\n        todo!()\n    }\n",
}

func runGenerateTraitImpl(ctx context.Context, e *Execution) (*Result, error) {
	traitName := e.Args.Str("trait_name")
	structName := e.Args.Str("struct_name")

	qualified := traitName
	if traitName == "Display" {
		qualified = "std::fmt::Display"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "impl %s for %s {\n", qualified, structName)
	if body, ok := traitTemplates[traitName]; ok {
		b.WriteString(body)
	}
	b.WriteString("}\n")

	path := e.Path(e.Args.Str("file_path"))
	if err := appendToFile(ctx, e, path, b.String()); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("generated impl %s for %s", traitName, structName),
		Data:    map[string]any{"file": path, "code": b.String()},
	}, nil
}

func runGenerateTests(ctx context.Context, e *Execution) (*Result, error) {
	target := e.Args.Str("target_function")
	cases := e.Args.Strings("test_cases")
	if len(cases) == 0 {
		cases = []string{"basic"}
	}

	var b strings.Builder
	b.WriteString("#[cfg(test)]\nmod tests {\n    use super::*;\n")
	for _, c := range cases {
		testName := sanitizeIdent(fmt.Sprintf("test_%s_%s", target, c))
		fmt.Fprintf(&b, "\n    #[test]\n    fn %s() {\n", testName)
		fmt.Fprintf(&b, "        // %s: %s\n", target, c)
		b.WriteString("        todo!()\n    }\n")
	}
	b.WriteString("}\n")

	path := e.Path(e.Args.Str("file_path"))
	if err := appendToFile(ctx, e, path, b.String()); err != nil {
		return nil, err
	}
	return &Result{
		Summary: fmt.Sprintf("generated %d tests for %s", len(cases), target),
		Data:    map[string]any{"file": path, "code": b.String()},
	}, nil
}

// sanitizeIdent turns arbitrary text into a valid snake_case identifier.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}

// runCreateModule creates a new source file for a module and declares it in
// the parent module when one can be found.
func runCreateModule(ctx context.Context, e *Execution) (*Result, error) {
	name := e.Args.Str("module_name")
	dir := e.Path(e.Args.Str("module_path"))
	if dir == "" {
		dir = filepath.Join(e.Session.Root(), "src")
	}

	modFile := filepath.Join(dir, name+".rs")
	if _, err := os.Stat(modFile); err == nil {
		return nil, fmt.Errorf("module file %s already exists", modFile)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	stub := fmt.Sprintf("//! %s module.\n", name)
	if err := e.Session.UpdateFile(ctx, modFile, stub); err != nil {
		return nil, err
	}

	decl := fmt.Sprintf("mod %s;", name)
	if e.Args.Bool("is_public") {
		decl = fmt.Sprintf("pub mod %s;", name)
	}

	parent, declared := declareInParent(dir, decl)
	if declared {
		data, err := os.ReadFile(parent)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", parent, err)
		}
		if err := e.Session.UpdateFile(ctx, parent, string(data)); err != nil {
			return nil, err
		}
	}

	return &Result{
		Summary: fmt.Sprintf("created module %s", name),
		Data: map[string]any{
			"file":     modFile,
			"declared": declared,
			"parent":   parent,
		},
	}, nil
}

// declareInParent appends the mod declaration to the directory's root module
// file (mod.rs, lib.rs, or main.rs). It reports the parent used, if any.
func declareInParent(dir, decl string) (string, bool) {
	for _, candidate := range []string{"mod.rs", "lib.rs", "main.rs"} {
		parent := filepath.Join(dir, candidate)
		data, err := os.ReadFile(parent)
		if err != nil {
			continue
		}
		content := string(data)
		if strings.Contains(content, strings.TrimPrefix(decl, "pub ")) {
			return parent, false
		}
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		content += decl + "\n"
		if err := os.WriteFile(parent, []byte(content), 0o644); err != nil {
			return parent, false
		}
		return parent, true
	}
	return "", false
}
