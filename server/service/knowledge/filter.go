package knowledge

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/granary-ai/granary/internal/errors"
	"github.com/granary-ai/granary/store"
)

// filterAttributes are the variables a document filter expression may use,
// e.g. `status == "failed" && filename.endsWith(".md")`.
var filterAttributes = []cel.EnvOption{
	cel.Variable("uid", cel.StringType),
	cel.Variable("title", cel.StringType),
	cel.Variable("filename", cel.StringType),
	cel.Variable("mime", cel.StringType),
	cel.Variable("status", cel.StringType),
}

// documentFilter is a compiled document filter expression.
type documentFilter struct {
	program cel.Program
}

// compileFilter compiles a CEL expression once so it can be evaluated per
// document.
func compileFilter(expression string) (*documentFilter, error) {
	env, err := cel.NewEnv(filterAttributes...)
	if err != nil {
		return nil, errors.Internal("failed to create filter environment", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.InvalidArgument(fmt.Sprintf("invalid filter: %v", issues.Err()))
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.InvalidArgument(fmt.Sprintf("invalid filter: %v", err))
	}

	return &documentFilter{program: program}, nil
}

// Matches reports whether the document satisfies the filter. Statuses are
// matched lower-case, so `status == "failed"` works as expected.
func (f *documentFilter) Matches(doc *store.Document) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"uid":      doc.UID,
		"title":    doc.Title,
		"filename": doc.Filename,
		"mime":     doc.ContentType,
		"status":   strings.ToLower(doc.Status.String()),
	})
	if err != nil {
		return false, errors.InvalidArgument(fmt.Sprintf("filter evaluation failed: %v", err))
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.InvalidArgument("filter must evaluate to a boolean")
	}
	return matched, nil
}
