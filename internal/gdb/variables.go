package gdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/muurk/trbr/internal/crash"
)

// Defaults for compound variable expansion.
const (
	DefaultMaxVarDepth    = 3
	DefaultMaxVarChildren = 16
)

// VarLimits bounds how far a compound variable is expanded.
type VarLimits struct {
	// Depth is the number of nested levels below the variable itself.
	Depth int
	// Children is the number of children kept per level.
	Children int
}

// DefaultVarLimits returns the default expansion limits.
func DefaultVarLimits() VarLimits {
	return VarLimits{Depth: DefaultMaxVarDepth, Children: DefaultMaxVarChildren}
}

// accessSpecifiers are the pseudo-children gdb inserts for C++ classes.
var accessSpecifiers = map[string]bool{
	"public":    true,
	"private":   true,
	"protected": true,
}

// ExpandVariable evaluates expr in the selected frame and expands its
// children up to limits. The variable object is deleted afterwards.
func (s *MISession) ExpandVariable(ctx context.Context, expr string, limits VarLimits) (crash.Variable, error) {
	raw, err := s.Exec(ctx, fmt.Sprintf("-var-create - * %s", quote(expr)))
	if err != nil {
		return crash.Variable{}, err
	}
	rec := ParseResultRecord(raw)
	obj := rec["name"]
	if obj == "" {
		return crash.Variable{}, &ParseError{Script: "var-create", Field: "name", Output: raw,
			Err: fmt.Errorf("no variable object created for %q", expr)}
	}
	defer func() {
		// Deleting the root removes every child object as well.
		_, _ = s.Exec(context.WithoutCancel(ctx), "-var-delete "+obj)
	}()

	v := crash.Variable{Name: expr, Type: rec["type"], Value: rec["value"]}
	if numChildren(rec) > 0 && limits.Depth > 0 {
		children, err := s.listChildren(ctx, obj, limits, 1)
		if err != nil {
			return crash.Variable{}, err
		}
		v.Children = children
	}
	return v, nil
}

func (s *MISession) listChildren(ctx context.Context, obj string, limits VarLimits, depth int) ([]crash.Variable, error) {
	raw, err := s.Exec(ctx, "-var-list-children --all-values "+obj)
	if err != nil {
		return nil, err
	}
	list, ok := ExtractList(raw, "children")
	if !ok {
		return nil, nil
	}

	var out []crash.Variable
	for _, child := range ParseTupleList(list, "child") {
		if len(out) >= limits.Children {
			break
		}
		name := child["exp"]

		// Access specifiers are flattened into their parent without
		// costing a level or a child slot.
		if accessSpecifiers[name] && child["type"] == "" {
			nested, err := s.listChildren(ctx, child["name"], limits, depth)
			if err != nil {
				return nil, err
			}
			room := limits.Children - len(out)
			if len(nested) > room {
				nested = nested[:room]
			}
			out = append(out, nested...)
			continue
		}

		v := crash.Variable{Name: name, Type: child["type"], Value: child["value"]}
		if numChildren(child) > 0 && depth < limits.Depth {
			nested, err := s.listChildren(ctx, child["name"], limits, depth+1)
			if err != nil {
				return nil, err
			}
			v.Children = nested
		}
		out = append(out, v)
	}
	return out, nil
}

func numChildren(fields map[string]string) int {
	n, err := strconv.Atoi(fields["numchild"])
	if err != nil {
		return 0
	}
	return n
}

// quote wraps an expression for an MI command argument.
func quote(expr string) string {
	return strconv.Quote(expr)
}
