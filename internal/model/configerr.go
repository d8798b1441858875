package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

type CueErrorDetail struct {
	Path    string // store.dsn
	Code    string // unknown_field | missing_required | conflicting_values | invalid_enum | type_mismatch | validation_error
	Message string
	Pos     CueErrorPosition
	Raw     string // message reported by cue
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

// rules are tried in order, the first match wins
var rules = []struct {
	re     *regexp.Regexp
	code   string
	format string
	enum   bool
}{
	{regexp.MustCompile(`(?i)not allowed|unknown field`), "unknown_field", "Field %s is not allowed", false},
	{regexp.MustCompile(`(?i)incomplete value`), "missing_required", "Field %s is required", false},
	{regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`), "conflicting_values", "Conflicting values for %s", true},
	{regexp.MustCompile(`(?i)must be one of|expected one of`), "invalid_enum", "Field %s has invalid value", true},
	{regexp.MustCompile(`(?i)expected .* got .*`), "type_mismatch", "Field %s has wrong type/value", false},
}

// CueErrDetails turns an error returned by LoadConfig into a list of human
// readable details, one per offending position in the config file.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}

	seen := make(map[CueErrorPosition]struct{})
	var out []CueErrorDetail
	for _, e := range cueerrors.Errors(err) {
		pos := position(e)
		if pos.Filename == "" {
			continue
		}
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}

		raw, args := e.Msg()
		raw = fmt.Sprintf(raw, args...)
		path := configPath(e.Path())
		d := CueErrorDetail{
			Path:    path,
			Code:    "validation_error",
			Message: raw,
			Pos:     pos,
			Raw:     e.Error(),
		}
		for _, r := range rules {
			if !r.re.MatchString(raw) {
				continue
			}
			d.Code = r.code
			d.Message = fmt.Sprintf(r.format, lastElem(path))
			if r.enum {
				d.Message += enumHint(path)
			}
			break
		}
		out = append(out, d)
	}
	return out
}

// enumHint lists the allowed values of an enum field, e.g. store.driver.
func enumHint(path string) string {
	if path == "" {
		return ""
	}
	field := schema.LookupPath(cue.ParsePath(path))
	if !field.Exists() {
		return ""
	}
	values, dflt := enumStrings(field)
	if len(values) == 0 {
		return ""
	}
	hint := fmt.Sprintf(": possible values (%s)", strings.Join(values, ","))
	if dflt != "" {
		hint += fmt.Sprintf(" (default %s)", dflt)
	}
	return hint
}

func enumStrings(v cue.Value) (values []string, dflt string) {
	if d, ok := v.Default(); ok {
		dflt, _ = d.String()
	}
	op, args := v.Expr()
	if op != cue.OrOp {
		if s, err := v.String(); err == nil {
			values = append(values, s)
		}
		return values, dflt
	}
	for _, a := range args {
		s, err := a.String()
		if err != nil {
			continue
		}
		if !slices.Contains(values, s) {
			values = append(values, s)
		}
	}
	return values, dflt
}

func position(err cueerrors.Error) CueErrorPosition {
	for _, p := range cueerrors.Positions(err) {
		if p.Filename() != "" {
			return CueErrorPosition{Filename: p.Filename(), Line: p.Line(), Column: p.Column()}
		}
	}
	return CueErrorPosition{}
}

// configPath drops the leading #Config definition from a cue path.
func configPath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func lastElem(p string) string {
	return p[strings.LastIndexByte(p, '.')+1:]
}
