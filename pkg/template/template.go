// Package template renders Jinja-style {{ expression }} substitutions in
// block config values against the accumulated state, in strict-undefined
// mode: any reference to a missing variable is a hard error naming the
// variable, never a silent empty string.
package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"

	"github.com/codeready-toolchain/datagenflow/pkg/engineerr"
)

// env is the process-wide gonja environment, configured once for
// strict-undefined evaluation and the tojson filter used across block
// configs.
var env = newEnvironment()

func newEnvironment() *gonja.Environment {
	e := gonja.DefaultEnvironment
	e.Context.Set("__strict__", true)
	if !e.Filters.Exists("tojson") {
		e.Filters.Register("tojson", tojsonFilter)
	}
	return e
}

func tojsonFilter(value *exec.Value, _ *exec.VarArgs) *exec.Value {
	b, err := json.Marshal(value.Interface())
	if err != nil {
		return exec.AsValue(fmt.Sprintf("%v", value.Interface()))
	}
	return exec.AsValue(string(b))
}

// Render evaluates a single template string against the accumulated state.
// It returns engineerr.TemplateError on both syntax errors and undefined
// variable references, per spec: both are a single error kind carrying the
// template snippet and (when known) the missing name.
func Render(templateStr string, state map[string]any) (string, error) {
	if !strings.Contains(templateStr, "{{") && !strings.Contains(templateStr, "{%") {
		return templateStr, nil
	}

	tpl, err := env.FromString(templateStr)
	if err != nil {
		return "", engineerr.NewTemplateError(templateStr, "", err)
	}

	ctx := exec.NewContext(state)
	out, err := tpl.ExecuteToString(ctx)
	if err != nil {
		return "", engineerr.NewTemplateError(templateStr, missingVariableName(err), err)
	}
	return out, nil
}

// missingVariableName extracts the offending identifier from a gonja
// strict-undefined error message, best-effort. Strict mode surfaces
// messages of the form "... 'foo' is undefined ..." or similar; we scan
// for a quoted token as the variable name.
func missingVariableName(err error) string {
	msg := err.Error()
	start := strings.IndexAny(msg, "'\"")
	if start == -1 {
		return ""
	}
	quote := msg[start]
	end := strings.IndexByte(msg[start+1:], quote)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// Normalize is the construction half of the "JSON-or-template"
// pattern (spec §4.6): at construction time, list/dict config values are
// JSON-serialised into a stored template string; plain strings pass
// through unchanged. Call Normalize once per config value at block
// construction, then RenderJSONOrTemplate at each execution.
func Normalize(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("normalizing template value: %w", err)
		}
		return string(b), nil
	}
}

// RenderJSONOrTemplate renders the stored template string against state,
// then JSON-decodes the result into out (a pointer to a list or map),
// matching the type the block declared. It never silently coerces: a
// decode failure is returned as-is.
func RenderJSONOrTemplate(storedTemplate string, state map[string]any, out any) error {
	rendered, err := Render(storedTemplate, state)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(rendered), out); err != nil {
		return fmt.Errorf("rendered template is not valid JSON for declared shape: %w", err)
	}
	return nil
}
