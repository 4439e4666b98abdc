package builder

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Base names used when several objects share one image set.
const (
	CombinedBase = "Combined"
	UDIMBase     = "UDIM_Bake"
)

// templateVars are the variables an output path template may reference.
var templateVars = []string{"job", "object", "material", "channel", "prefix", "suffix", "base", "mode", "tile", "frame"}

// names is the variable set for one step's output path.
type names struct {
	job      string
	object   string
	material string
	channel  string
	prefix   string
	suffix   string
	base     string
	mode     model.Mode
	tile     int
	// frame is the padded frame index of animated bakes.
	frame    string
}

func compileTemplate(src string) (hcl.Expression, error) {
	if src == "" {
		src = model.DefaultTemplate
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "output.template", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	for _, trav := range expr.Variables() {
		if name := trav.RootName(); !slices.Contains(templateVars, name) {
			return nil, fmt.Errorf("unknown template variable %q, expected one of %v", name, templateVars)
		}
	}
	return expr, nil
}

func (n names) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"job":      cty.StringVal(n.job),
			"object":   cty.StringVal(n.object),
			"material": cty.StringVal(n.material),
			"channel":  cty.StringVal(n.channel),
			"prefix":   cty.StringVal(n.prefix),
			"suffix":   cty.StringVal(n.suffix),
			"base":     cty.StringVal(n.base),
			"mode":     cty.StringVal(string(n.mode)),
			"tile":     cty.NumberIntVal(int64(n.tile)),
			"frame":    cty.StringVal(n.frame),
		},
	}
}

// renderPath evaluates the template and returns the output path relative to
// the output root, extension included. Animated bakes whose template does
// not place the frame get "_<frame>" appended to the stem.
func renderPath(expr hcl.Expression, n names, format model.Format) (string, error) {
	v, diags := expr.Value(n.evalContext())
	if diags.HasErrors() {
		return "", diags
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("template result: %w", err)
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("template produced no value")
	}
	stem := strings.TrimSpace(v.AsString())
	if stem == "" {
		return "", fmt.Errorf("template produced an empty path")
	}
	stem = filepath.FromSlash(stem)
	if !filepath.IsLocal(stem) {
		return "", fmt.Errorf("path %q escapes the output root", stem)
	}
	if n.frame != "" && !references(expr, "frame") {
		stem += "_" + n.frame
	}
	if n.tile != 0 {
		return fmt.Sprintf("%s.%d.%s", stem, n.tile, format.Ext()), nil
	}
	return stem + "." + format.Ext(), nil
}

func references(expr hcl.Expression, name string) bool {
	for _, trav := range expr.Variables() {
		if trav.RootName() == name {
			return true
		}
	}
	return false
}

// baseName picks the image stem for a step following the bake mode.
func baseName(job *model.Job, object, material string) string {
	switch job.Mode {
	case model.ModeMulti:
		return CombinedBase
	case model.ModeUDIM:
		return UDIMBase
	case model.ModeActive:
		return safeName(job.Active)
	case model.ModeSplit:
		return safeName(object + "_" + material)
	default:
		return safeName(object)
	}
}

// safeName replaces characters that are not portable in file names.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		case r == ' ':
			return '_'
		}
		return r
	}, s)
}
