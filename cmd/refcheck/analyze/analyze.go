// Copyright 2025 The sharedref Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package analyze finds common sharedref handle misuse in Go source.
//
// The checks are syntactic. A variable is tracked as an owner or observer
// when it is assigned from a producing call (shared.Make, shared.MakeWith,
// shared.NewWeak, or Clone, Move, Lock and Weak on a tracked handle) or is a
// parameter typed *shared.Shared[...] or *shared.Weak[...]. Names are
// tracked per top-level function; shadowing is not modeled.
package analyze

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultImportPath is the import path of the handle package.
const DefaultImportPath = "github.com/kolkov/sharedref/shared"

type handleKind int

const (
	kindNone handleKind = iota
	kindOwner
	kindWeak
)

func (k handleKind) String() string {
	if k == kindWeak {
		return "observer"
	}
	return "owner"
}

// Methods that neither release nor hand off the receiver.
var observing = map[string]bool{
	"Get":       true,
	"Deref":     true,
	"Valid":     true,
	"UseCount":  true,
	"WeakCount": true,
	"IsUnique":  true,
	"Expired":   true,
	"String":    true,
	"Clone":     true,
	"Weak":      true,
	"Lock":      true,
}

// Methods that give up the receiver's ownership.
var releasing = map[string]bool{
	"Reset": true,
	"Move":  true,
	"Swap":  true,
}

// Source parses src and checks it. filename is used for positions only.
func Source(filename string, src []byte, importPath string) ([]*Finding, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filename)
	}
	return File(fset, f, importPath), nil
}

// File checks a parsed file. Files that do not import importPath yield no
// findings. Findings are sorted by position.
func File(fset *token.FileSet, f *ast.File, importPath string) []*Finding {
	if importPath == "" {
		importPath = DefaultImportPath
	}
	pkg := importName(f, importPath)
	if pkg == "" {
		return nil
	}

	c := &checker{fset: fset, pkg: pkg}
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		c.function(fn)
	}

	sort.SliceStable(c.findings, func(i, j int) bool {
		a, b := c.findings[i], c.findings[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return c.findings
}

// importName returns the local name under which f imports path, or "" if it
// does not (or only imports it for side effects or into the file scope).
func importName(f *ast.File, path string) string {
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil || p != path {
			continue
		}
		if spec.Name != nil {
			if spec.Name.Name == "_" || spec.Name.Name == "." {
				return ""
			}
			return spec.Name.Name
		}
		return p[strings.LastIndex(p, "/")+1:]
	}
	return ""
}

type checker struct {
	fset     *token.FileSet
	pkg      string
	findings []*Finding
}

// report records a finding, at most one per code and position.
func (c *checker) report(pos token.Pos, code, msg, suggestion string) {
	f := newFinding(c.fset, pos, code, msg, suggestion)
	for _, prev := range c.findings {
		if prev.Code == f.Code && prev.Line == f.Line && prev.Column == f.Column {
			return
		}
	}
	c.findings = append(c.findings, f)
}

// scope is the per-function tracking state.
type scope struct {
	kinds    map[string]handleKind
	created  map[string]token.Pos // local owners, by first assignment
	order    []string
	consumed map[string]bool
	locked   map[string]bool // assigned from Lock, no Valid check seen yet

	// Identifier positions that are not ownership-relevant uses.
	skip map[token.Pos]bool
}

func (c *checker) function(fn *ast.FuncDecl) {
	s := &scope{
		kinds:    make(map[string]handleKind),
		created:  make(map[string]token.Pos),
		consumed: make(map[string]bool),
		locked:   make(map[string]bool),
		skip:     make(map[token.Pos]bool),
	}
	if fn.Recv != nil {
		c.params(s, fn.Recv)
	}
	c.params(s, fn.Type.Params)

	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			c.assign(s, n)
		case *ast.ValueSpec:
			c.valueSpec(s, n)
		case *ast.ExprStmt:
			c.exprStmt(s, n)
		case *ast.CallExpr:
			c.call(s, n)
		case *ast.StarExpr:
			c.star(s, n)
		case *ast.Ident:
			if s.kinds[n.Name] != kindNone && !s.skip[n.Pos()] {
				s.consumed[n.Name] = true
			}
		}
		return true
	})

	for _, name := range s.order {
		if !s.consumed[name] {
			c.report(s.created[name], CodeUnreleased,
				fmt.Sprintf("owner %s is never released", name),
				fmt.Sprintf("Call %s.Reset() (for example with defer) or hand it off with Move", name))
		}
	}
}

// params tracks parameters typed as handles. Parameters are borrowed, so
// they are never reported as unreleased.
func (c *checker) params(s *scope, fields *ast.FieldList) {
	if fields == nil {
		return
	}
	for _, field := range fields.List {
		kind := c.handleType(field.Type)
		if kind == kindNone {
			continue
		}
		for _, name := range field.Names {
			s.kinds[name.Name] = kind
		}
	}
}

// handleType reports whether t is *pkg.Shared[...] or *pkg.Weak[...].
func (c *checker) handleType(t ast.Expr) handleKind {
	ptr, ok := t.(*ast.StarExpr)
	if !ok {
		return kindNone
	}
	var base ast.Expr
	switch x := ptr.X.(type) {
	case *ast.IndexExpr:
		base = x.X
	case *ast.IndexListExpr:
		base = x.X
	default:
		return kindNone
	}
	sel, ok := base.(*ast.SelectorExpr)
	if !ok || !c.isPkg(sel.X) {
		return kindNone
	}
	switch sel.Sel.Name {
	case "Shared":
		return kindOwner
	case "Weak":
		return kindWeak
	}
	return kindNone
}

func (c *checker) isPkg(e ast.Expr) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == c.pkg
}

// produced returns the kind of handle the call e creates, and whether it
// came from Lock.
func (c *checker) produced(s *scope, e ast.Expr) (handleKind, bool) {
	call, ok := ast.Unparen(e).(*ast.CallExpr)
	if !ok {
		return kindNone, false
	}
	fun := call.Fun
	switch x := fun.(type) {
	case *ast.IndexExpr:
		fun = x.X
	case *ast.IndexListExpr:
		fun = x.X
	}
	sel, ok := fun.(*ast.SelectorExpr)
	if !ok {
		return kindNone, false
	}
	if c.isPkg(sel.X) {
		switch sel.Sel.Name {
		case "Make", "MakeWith":
			return kindOwner, false
		case "NewWeak":
			return kindWeak, false
		}
		return kindNone, false
	}

	recv := c.kindOf(s, sel.X)
	switch {
	case recv == kindNone:
		return kindNone, false
	case sel.Sel.Name == "Clone" || sel.Sel.Name == "Move":
		return recv, false
	case sel.Sel.Name == "Lock" && recv == kindWeak:
		return kindOwner, true
	case sel.Sel.Name == "Weak" && recv == kindOwner:
		return kindWeak, false
	}
	return kindNone, false
}

// kindOf returns the handle kind of a tracked identifier or producing call.
func (c *checker) kindOf(s *scope, e ast.Expr) handleKind {
	e = ast.Unparen(e)
	if id, ok := e.(*ast.Ident); ok {
		return s.kinds[id.Name]
	}
	kind, _ := c.produced(s, e)
	return kind
}

func (c *checker) assign(s *scope, n *ast.AssignStmt) {
	switch {
	case len(n.Lhs) == len(n.Rhs):
		for i, rhs := range n.Rhs {
			c.bind(s, n.Lhs[i], rhs)
		}
	case len(n.Rhs) == 1 && len(n.Lhs) == 2:
		// s, err := shared.MakeWith(...)
		c.bind(s, n.Lhs[0], n.Rhs[0])
	}
}

func (c *checker) valueSpec(s *scope, n *ast.ValueSpec) {
	if kind := c.handleType(n.Type); kind != kindNone && len(n.Values) == 0 {
		for _, name := range n.Names {
			s.kinds[name.Name] = kind
			s.skip[name.Pos()] = true
		}
		return
	}
	switch {
	case len(n.Names) == len(n.Values):
		for i, v := range n.Values {
			c.bind(s, n.Names[i], v)
		}
	case len(n.Values) == 1 && len(n.Names) == 2:
		c.bind(s, n.Names[0], n.Values[0])
	}
}

// bind records lhs as holding whatever rhs produces.
func (c *checker) bind(s *scope, lhs, rhs ast.Expr) {
	id, ok := lhs.(*ast.Ident)
	if !ok {
		return
	}
	kind, fromLock := c.produced(s, rhs)
	if kind == kindNone {
		return
	}
	s.skip[id.Pos()] = true
	if id.Name == "_" {
		c.report(rhs.Pos(), CodeDiscarded,
			fmt.Sprintf("new %s from %s is assigned to _", kind, render(rhs)),
			"Keep the handle and Reset it when done")
		return
	}
	s.kinds[id.Name] = kind
	if kind == kindOwner {
		if _, seen := s.created[id.Name]; !seen {
			s.created[id.Name] = id.Pos()
			s.order = append(s.order, id.Name)
		}
	}
	if fromLock {
		s.locked[id.Name] = true
	} else {
		delete(s.locked, id.Name)
	}
}

func (c *checker) exprStmt(s *scope, n *ast.ExprStmt) {
	kind, _ := c.produced(s, n.X)
	if kind == kindNone {
		return
	}
	c.report(n.X.Pos(), CodeDiscarded,
		fmt.Sprintf("result of %s is discarded", render(n.X)),
		fmt.Sprintf("The call creates a new %s; assign it and Reset it when done", kind))
}

func (c *checker) call(s *scope, n *ast.CallExpr) {
	sel, ok := n.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	method := sel.Sel.Name

	// Chained use of a fresh handle: w.Lock().Deref(), shared.Make(v).Weak().
	if inner, ok := ast.Unparen(sel.X).(*ast.CallExpr); ok {
		kind, fromLock := c.produced(s, inner)
		switch {
		case fromLock && (method == "Deref" || method == "Get"):
			c.report(n.Pos(), CodeUncheckedLock,
				fmt.Sprintf("%s dereferences a Lock result without checking it", render(n)),
				"Lock returns an empty handle once the payload is gone; check Valid first and Reset the result")
		case kind != kindNone && observing[method]:
			c.report(inner.Pos(), CodeDiscarded,
				fmt.Sprintf("new %s from %s is only used by %s and never released", kind, render(inner), method),
				"Assign the handle to a variable and Reset it when done")
		}
		return
	}

	id, ok := ast.Unparen(sel.X).(*ast.Ident)
	if !ok || s.kinds[id.Name] == kindNone {
		return
	}
	// Releasing calls count as a use in the identifier visit. Assign and
	// MoveFrom refill the receiver without releasing it.
	if !releasing[method] {
		s.skip[id.Pos()] = true
	}

	switch method {
	case "Valid", "Expired":
		delete(s.locked, id.Name)
	case "Deref", "Get":
		if s.locked[id.Name] {
			delete(s.locked, id.Name)
			c.report(n.Pos(), CodeUncheckedLock,
				fmt.Sprintf("%s is dereferenced without checking the Lock result", id.Name),
				fmt.Sprintf("Check %s.Valid() before %s.%s()", id.Name, id.Name, method))
		}
	}
}

func (c *checker) star(s *scope, n *ast.StarExpr) {
	id, ok := ast.Unparen(n.X).(*ast.Ident)
	if !ok || s.kinds[id.Name] == kindNone {
		return
	}
	s.skip[id.Pos()] = true
	c.report(n.Pos(), CodeCopiedHandle,
		fmt.Sprintf("*%s copies a handle by value", id.Name),
		fmt.Sprintf("Use %s.Clone() for another %s or %s.Move() to transfer it", id.Name, s.kinds[id.Name], id.Name))
}

// render prints a short form of a call for messages.
func render(e ast.Expr) string {
	switch e := ast.Unparen(e).(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return render(e.X) + "." + e.Sel.Name
	case *ast.IndexExpr:
		return render(e.X) + "[...]"
	case *ast.IndexListExpr:
		return render(e.X) + "[...]"
	case *ast.CallExpr:
		args := ""
		if len(e.Args) > 0 {
			args = "..."
		}
		return render(e.Fun) + "(" + args + ")"
	}
	return "expression"
}
