// Package inspect generates the ephemeral Python introspection scripts the
// kernel execution bridge runs to produce variable listings (§4.12 of
// spec.md). The templated script defines helpers, runs them against the
// user namespace, emits a JSON payload, and deletes its own helpers and any
// transient variables it introduced.
package inspect

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Detail is one of the three reporting levels (§4.12).
type Detail string

const (
	DetailBasic  Detail = "basic"
	DetailSchema Detail = "schema"
	DetailFull   Detail = "full"
)

// transientPrefix marks every helper and scratch variable the injected
// script introduces, so the cleanup step can sweep them by prefix alone
// (§4.12: "deletes every helper it introduced plus any transient variables
// sharing a reserved prefix").
const transientPrefix = "__notebook_engine_inspect_"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects anything that isn't a bare Python identifier,
// preventing injection through a crafted variable name (§4.12:
// "inspect_variable(names) validates each name as an identifier before
// templating to prevent injection").
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return &notebookerr.ConflictingArgs{Detail: "not a valid identifier: " + name}
	}
	return nil
}

// ListOptions configures get_kernel_variables (§6).
type ListOptions struct {
	Detail         Detail
	NameFilter     string
	IncludePrivate bool
	MaxVariables   int
	MaxItems       int
	MaxNameLength  int
}

// NamesOptions configures inspect_variable (§6), scoped to an explicit
// name list instead of a namespace scan.
type NamesOptions struct {
	Names         []string
	Detail        Detail
	MaxItems      int
	MaxNameLength int
}

var scriptTemplate = template.Must(template.New("inspect").Parse(`
import json as {{.Prefix}}json

def {{.Prefix}}helper(value, detail, max_items):
    info = {"type": type(value).__name__}
    if detail in ("basic", "schema", "full"):
        try:
            info["repr"] = repr(value)[:200]
        except Exception:
            info["repr"] = "<unrepr-able>"
    if detail in ("schema", "full"):
        if hasattr(value, "shape"):
            info["shape"] = list(getattr(value, "shape"))
        if hasattr(value, "dtypes"):
            try:
                info["columns"] = {str(k): str(v) for k, v in dict(getattr(value, "dtypes")).items()}
            except Exception:
                pass
    if detail == "full":
        if hasattr(value, "__len__"):
            try:
                info["length"] = len(value)
            except Exception:
                pass
        if isinstance(value, dict):
            info["keys"] = list(value.keys())[:max_items]
        if hasattr(value, "__sizeof__"):
            try:
                info["memory_bytes"] = value.__sizeof__()
            except Exception:
                pass
    return info

{{.Prefix}}result = {}
{{if .NamespaceScan}}
for {{.Prefix}}name, {{.Prefix}}value in list(globals().items()):
    if {{.Prefix}}name.startswith("{{.TransientPrefix}}"):
        continue
    if not {{.IncludePrivate}} and {{.Prefix}}name.startswith("_"):
        continue
    if "{{.NameFilter}}" and "{{.NameFilter}}" not in {{.Prefix}}name:
        continue
    if len({{.Prefix}}result) >= {{.MaxVariables}}:
        break
    {{.Prefix}}result[{{.Prefix}}name[:{{.MaxNameLength}}]] = {{.Prefix}}helper({{.Prefix}}value, "{{.Detail}}", {{.MaxItems}})
{{else}}
for {{.Prefix}}name in [{{.QuotedNames}}]:
    if {{.Prefix}}name in globals():
        {{.Prefix}}result[{{.Prefix}}name[:{{.MaxNameLength}}]] = {{.Prefix}}helper(globals()[{{.Prefix}}name], "{{.Detail}}", {{.MaxItems}})
{{end}}
print({{.Prefix}}json.dumps({{.Prefix}}result))

for {{.Prefix}}name in list(globals().keys()):
    if {{.Prefix}}name.startswith("{{.TransientPrefix}}"):
        del globals()[{{.Prefix}}name]
`))

type scriptData struct {
	Prefix           string
	TransientPrefix  string
	NamespaceScan    bool
	IncludePrivate   string
	NameFilter       string
	MaxVariables     int
	MaxItems         int
	MaxNameLength    int
	Detail           Detail
	QuotedNames      string
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// BuildListScript renders the namespace-scanning variant of the
// introspection script for get_kernel_variables.
func BuildListScript(opts ListOptions) (string, error) {
	detail := opts.Detail
	if detail == "" {
		detail = DetailBasic
	}
	maxVars := opts.MaxVariables
	if maxVars <= 0 {
		maxVars = 200
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 50
	}
	maxNameLength := opts.MaxNameLength
	if maxNameLength <= 0 {
		maxNameLength = 200
	}

	data := scriptData{
		Prefix:          transientPrefix,
		TransientPrefix: transientPrefix,
		NamespaceScan:   true,
		IncludePrivate:  pythonBool(opts.IncludePrivate),
		NameFilter:      opts.NameFilter,
		MaxVariables:    maxVars,
		MaxItems:        maxItems,
		MaxNameLength:   maxNameLength,
		Detail:          detail,
	}
	return render(data)
}

// BuildNamesScript renders the explicit-name-list variant for
// inspect_variable, after validating every name is a bare identifier.
func BuildNamesScript(opts NamesOptions) (string, error) {
	for _, n := range opts.Names {
		if err := ValidateIdentifier(n); err != nil {
			return "", err
		}
	}

	detail := opts.Detail
	if detail == "" {
		detail = DetailBasic
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = 50
	}
	maxNameLength := opts.MaxNameLength
	if maxNameLength <= 0 {
		maxNameLength = 200
	}

	quoted := make([]string, len(opts.Names))
	for i, n := range opts.Names {
		quoted[i] = `"` + n + `"`
	}

	data := scriptData{
		Prefix:          transientPrefix,
		TransientPrefix: transientPrefix,
		NamespaceScan:   false,
		MaxItems:        maxItems,
		MaxNameLength:   maxNameLength,
		Detail:          detail,
		QuotedNames:     strings.Join(quoted, ", "),
	}
	return render(data)
}

func render(data scriptData) (string, error) {
	var b strings.Builder
	if err := scriptTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
