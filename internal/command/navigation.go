package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/rustbridge/internal/analyzer"
)

// positionSchema is shared by every command addressing a cursor position.
var positionSchema = Schema{
	{Name: "file_path", Type: TString, Required: true},
	{Name: "line", Type: TInt, Required: true},
	{Name: "character", Type: TInt, Required: true},
}

func positionParams(e *Execution, path string) analyzer.TextDocumentPositionParams {
	return analyzer.TextDocumentPositionParams{
		TextDocument: analyzer.TextDocumentIdentifier{URI: analyzer.FilePathToURI(path)},
		Position: analyzer.Position{
			Line:      e.Args.Int("line"),
			Character: e.Args.Int("character"),
		},
	}
}

func registerNavigation(r *Registry) {
	r.mustRegister(&Descriptor{
		Name:   "find_definition",
		Schema: positionSchema,
		Class:  ClassNavigation,
		Run:    runFindDefinition,
	})
	r.mustRegister(&Descriptor{
		Name:   "find_references",
		Schema: positionSchema,
		Class:  ClassNavigation,
		Run:    runFindReferences,
	})
	r.mustRegister(&Descriptor{
		Name: "workspace_symbols",
		Schema: Schema{
			{Name: "query", Type: TString, Required: true},
		},
		Class: ClassNavigation,
		Run:   runWorkspaceSymbols,
	})
	r.mustRegister(&Descriptor{
		Name:   "get_type_hierarchy",
		Schema: positionSchema,
		Class:  ClassNavigation,
		Run:    runTypeHierarchy,
	})
}

func runFindDefinition(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	raw, err := e.Request(ctx, "textDocument/definition", positionParams(e, path))
	if err != nil {
		return nil, err
	}
	locs, err := analyzer.ParseLocationResult(raw)
	if err != nil {
		return nil, err
	}

	infos := make([]LocationInfo, 0, len(locs))
	for _, loc := range locs {
		infos = append(infos, locationInfo(loc))
	}
	summary := "no definition found"
	if len(infos) > 0 {
		summary = fmt.Sprintf("definition at %s:%d", infos[0].Path, infos[0].Line+1)
	}
	return &Result{Summary: summary, Data: infos}, nil
}

func runFindReferences(ctx context.Context, e *Execution) (*Result, error) {
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	params := analyzer.ReferenceParams{
		TextDocumentPositionParams: positionParams(e, path),
		Context:                    analyzer.ReferenceContext{IncludeDeclaration: true},
	}
	raw, err := e.Request(ctx, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	locs, err := analyzer.ParseLocationResult(raw)
	if err != nil {
		return nil, err
	}

	infos := make([]LocationInfo, 0, len(locs))
	for _, loc := range locs {
		infos = append(infos, locationInfo(loc))
	}
	return &Result{
		Summary: fmt.Sprintf("%d references", len(infos)),
		Data:    infos,
	}, nil
}

func runWorkspaceSymbols(ctx context.Context, e *Execution) (*Result, error) {
	if err := e.requireCapability("workspaceSymbol"); err != nil {
		return nil, err
	}
	params := analyzer.WorkspaceSymbolParams{Query: e.Args.Str("query")}
	raw, err := e.Request(ctx, "workspace/symbol", params)
	if err != nil {
		return nil, err
	}

	var symbols []analyzer.SymbolInformation
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &symbols); err != nil {
			return nil, fmt.Errorf("%w: symbol payload: %v", analyzer.ErrMalformedMessage, err)
		}
	}

	infos := make([]SymbolInfo, 0, len(symbols))
	for _, s := range symbols {
		infos = append(infos, symbolInfo(s))
	}
	return &Result{
		Summary: fmt.Sprintf("%d symbols match %q", len(infos), e.Args.Str("query")),
		Data:    infos,
	}, nil
}

// TypeHierarchyNode is one type with its direct supertypes and subtypes.
type TypeHierarchyNode struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Path       string   `json:"path"`
	Line       int      `json:"line"`
	Supertypes []string `json:"supertypes"`
	Subtypes   []string `json:"subtypes"`
}

func runTypeHierarchy(ctx context.Context, e *Execution) (*Result, error) {
	if err := e.requireCapability("typeHierarchy"); err != nil {
		return nil, err
	}
	path := e.Path(e.Args.Str("file_path"))
	if err := e.Session.EnsureOpen(ctx, path); err != nil {
		return nil, err
	}

	prepareParams := analyzer.TypeHierarchyPrepareParams{
		TextDocumentPositionParams: positionParams(e, path),
	}
	raw, err := e.Request(ctx, "textDocument/prepareTypeHierarchy", prepareParams)
	if err != nil {
		return nil, err
	}

	var items []analyzer.TypeHierarchyItem
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: type hierarchy payload: %v", analyzer.ErrMalformedMessage, err)
		}
	}
	if len(items) == 0 {
		return &Result{Summary: "no type at position", Data: []TypeHierarchyNode{}}, nil
	}

	// Expand each prepared item with its direct neighbors; the prepared
	// item carries opaque analyzer data that must round-trip unchanged.
	nodes := make([]TypeHierarchyNode, 0, len(items))
	for _, item := range items {
		supers, err := typeHierarchyNeighbors(ctx, e, "typeHierarchy/supertypes", item)
		if err != nil {
			return nil, err
		}
		subs, err := typeHierarchyNeighbors(ctx, e, "typeHierarchy/subtypes", item)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, TypeHierarchyNode{
			Name:       item.Name,
			Kind:       item.Kind.String(),
			Path:       analyzer.URIToFilePath(item.URI),
			Line:       item.SelectionRange.Start.Line,
			Supertypes: supers,
			Subtypes:   subs,
		})
	}
	return &Result{
		Summary: fmt.Sprintf("type hierarchy for %s", items[0].Name),
		Data:    nodes,
	}, nil
}

func typeHierarchyNeighbors(ctx context.Context, e *Execution, method string, item analyzer.TypeHierarchyItem) ([]string, error) {
	raw, err := e.Request(ctx, method, analyzer.TypeHierarchyItemParams{Item: item})
	if err != nil {
		return nil, err
	}
	var neighbors []analyzer.TypeHierarchyItem
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &neighbors); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", analyzer.ErrMalformedMessage, method, err)
		}
	}
	names := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		names = append(names, n.Name)
	}
	return names, nil
}
