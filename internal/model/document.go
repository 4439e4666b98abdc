// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file reads and writes job documents. A document is one or more HCL
// files holding `job` blocks:
//
//	job "hero" {
//	  mode    = "single"
//	  targets = ["Body", "Helmet"]
//
//	  output {
//	    root     = "bakes"
//	    template = "${object}/${base}${suffix}"
//	  }
//
//	  channel "rough" {
//	    enabled = true
//	    suffix  = "_rough"
//	    pbr {}
//	  }
//
//	  channel "custom_orm" {
//	    enabled = true
//	    suffix  = "_orm"
//	    custom {
//	      red   { value = 1 }
//	      green { source = "rough" }
//	    }
//	  }
//	}
//
// The output template is stored as an hcl.Expression during decoding and kept
// as bare template source, so it survives a load/save cycle unevaluated.
package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// hclDocument represents the top-level structure of a job file for decoding.
type hclDocument struct {
	Jobs []*hclJob `hcl:"job,block"`
}

type hclJob struct {
	Name      string        `hcl:"name,label"`
	Mode      string        `hcl:"mode,optional"`
	Targets   []string      `hcl:"targets,optional"`
	Active    string        `hcl:"active,optional"`
	Sets      *Sets         `hcl:"sets,block"`
	UDIM      *hclUDIM      `hcl:"udim,block"`
	Output    *hclOutput    `hcl:"output,block"`
	Animation *Animation    `hcl:"animation,block"`
	Channels  []*hclChannel `hcl:"channel,block"`
}

type hclUDIM struct {
	Policy string         `hcl:"policy,optional"`
	Tiles  map[string]int `hcl:"tiles,optional"`
}

// hclOutput uses pointers so an explicit zero can be told apart from an
// absent attribute.
type hclOutput struct {
	Root     *string        `hcl:"root,optional"`
	Template hcl.Expression `hcl:"template,optional"`
	Width    *int           `hcl:"width,optional"`
	Height   *int           `hcl:"height,optional"`
	Format   *string        `hcl:"format,optional"`
	Depth    *int           `hcl:"depth,optional"`
	Margin   *int           `hcl:"margin,optional"`
}

type hclChannel struct {
	ID           string            `hcl:"id,label"`
	Name         string            `hcl:"name,optional"`
	Enabled      bool              `hcl:"enabled,optional"`
	ValidForMode bool              `hcl:"valid_for_mode,optional"`
	Prefix       string            `hcl:"prefix,optional"`
	Suffix       string            `hcl:"suffix,optional"`
	PBR          *PBRParams        `hcl:"pbr,block"`
	Light        *LightParams      `hcl:"light,block"`
	Mesh         *MeshParams       `hcl:"mesh,block"`
	IDMap        *IDMapParams      `hcl:"id_map,block"`
	Conversion   *ConversionParams `hcl:"conversion,block"`
	Custom       *CustomParams     `hcl:"custom,block"`
}

// LoadJobs finds every .hcl file under path (or path itself) and decodes the
// jobs declared in them, in file then declaration order.
func LoadJobs(ctx context.Context, path string) ([]*Job, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading job documents", "path", path)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find job files in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl job files found in %s", path)
	}

	parser := hclparse.NewParser()
	var jobs []*Job
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read job file %s: %w", file, err)
		}
		parsed, err := parseJobs(parser, src, file)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, parsed...)
	}
	logger.Debug("Job documents loaded", "files", len(files), "jobs", len(jobs))
	return jobs, nil
}

// ParseJobs decodes the jobs in a single HCL document.
func ParseJobs(src []byte, filename string) ([]*Job, error) {
	return parseJobs(hclparse.NewParser(), src, filename)
}

func parseJobs(parser *hclparse.Parser, src []byte, filename string) ([]*Job, error) {
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var doc hclDocument
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &doc); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	jobs := make([]*Job, 0, len(doc.Jobs))
	for _, hj := range doc.Jobs {
		job, err := hj.toJob(src)
		if err != nil {
			return nil, fmt.Errorf("error in job %q in file %s: %w", hj.Name, filename, err)
		}
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("invalid job in file %s: %w", filename, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (hj *hclJob) toJob(src []byte) (*Job, error) {
	defaults := NewJob(hj.Name)
	job := &Job{
		Name:    hj.Name,
		Mode:    Mode(hj.Mode),
		Targets: hj.Targets,
		Active:  hj.Active,
		Sets:    defaults.Sets,
		UDIM:    defaults.UDIM,
		Output:  defaults.Output,
	}
	if job.Mode == "" {
		job.Mode = ModeSingle
	}
	if hj.Sets != nil {
		job.Sets = *hj.Sets
		if job.Sets.BakeType == "" {
			job.Sets.BakeType = BakeBSDF
		}
	}
	if hj.UDIM != nil {
		if hj.UDIM.Policy != "" {
			job.UDIM.Policy = TilePolicy(hj.UDIM.Policy)
		}
		job.UDIM.Tiles = hj.UDIM.Tiles
	}
	if hj.Output != nil {
		if err := hj.Output.overlay(&job.Output, src); err != nil {
			return nil, err
		}
	}
	if hj.Animation != nil {
		a := *hj.Animation
		if a.Digits == 0 {
			a.Digits = DefaultFrameDigits
		}
		job.Animation = &a
	}

	for _, hc := range hj.Channels {
		c, err := hc.toChannel()
		if err != nil {
			return nil, err
		}
		job.Channels = append(job.Channels, c)
	}
	job.refreshValidity()
	return job, nil
}

func (ho *hclOutput) overlay(out *Output, src []byte) error {
	if ho.Root != nil {
		out.Root = *ho.Root
	}
	if ho.Width != nil {
		out.Width = *ho.Width
	}
	if ho.Height != nil {
		out.Height = *ho.Height
	}
	if ho.Format != nil {
		out.Format = Format(strings.ToLower(*ho.Format))
	}
	if ho.Depth != nil {
		out.Depth = *ho.Depth
	}
	if ho.Margin != nil {
		out.Margin = *ho.Margin
	}
	tmpl, err := templateSource(ho.Template, src)
	if err != nil {
		return err
	}
	if tmpl != "" {
		out.Template = tmpl
	}
	return nil
}

// templateSource returns a template attribute as bare template source, or ""
// when the attribute is absent.
func templateSource(expr hcl.Expression, src []byte) (string, error) {
	if expr == nil {
		return "", nil
	}
	if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
		return "", nil
	}
	switch expr.(type) {
	case *hclsyntax.TemplateExpr, *hclsyntax.TemplateWrapExpr, *hclsyntax.LiteralValueExpr:
	default:
		return "", fmt.Errorf("output template must be a quoted string at %s", expr.Range())
	}
	raw := string(expr.Range().SliceBytes(src))
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = unquoteTemplate(raw[1 : len(raw)-1])
	}
	return raw, nil
}

func (hc *hclChannel) toChannel() (*Channel, error) {
	def, ok := Lookup(hc.ID)
	if IsCustomID(hc.ID) {
		def, ok = Definition{Name: strings.TrimPrefix(hc.ID, CustomPrefix), Kind: KindCustom}, true
	}
	if !ok {
		return nil, fmt.Errorf("channel %q: unknown channel id", hc.ID)
	}
	c := &Channel{
		ID:           hc.ID,
		Name:         hc.Name,
		Enabled:      hc.Enabled,
		ValidForMode: hc.ValidForMode,
		Prefix:       hc.Prefix,
		Suffix:       hc.Suffix,
	}
	if c.Name == "" {
		c.Name = def.Name
	}

	var given []Params
	if hc.PBR != nil {
		given = append(given, *hc.PBR)
	}
	if hc.Light != nil {
		given = append(given, *hc.Light)
	}
	if hc.Mesh != nil {
		given = append(given, *hc.Mesh)
	}
	if hc.IDMap != nil {
		given = append(given, *hc.IDMap)
	}
	if hc.Conversion != nil {
		given = append(given, *hc.Conversion)
	}
	if hc.Custom != nil {
		given = append(given, *hc.Custom)
	}
	switch len(given) {
	case 0:
		c.Params = def.DefaultParams()
	case 1:
		c.Params = given[0]
	default:
		return nil, fmt.Errorf("channel %q: only one parameter block is allowed, found %d", hc.ID, len(given))
	}
	return c, nil
}

// Encode renders jobs as a formatted HCL document.
func Encode(jobs ...*Job) []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()
	for i, j := range jobs {
		if i > 0 {
			root.AppendNewline()
		}
		jb := root.AppendNewBlock("job", []string{j.Name}).Body()
		jb.SetAttributeValue("mode", cty.StringVal(string(j.Mode)))
		if len(j.Targets) > 0 {
			jb.SetAttributeValue("targets", stringList(j.Targets))
		}
		if j.Active != "" {
			jb.SetAttributeValue("active", cty.StringVal(j.Active))
		}

		jb.AppendNewline()
		gohcl.EncodeIntoBody(j.Sets, jb.AppendNewBlock("sets", nil).Body())

		ub := jb.AppendNewBlock("udim", nil).Body()
		ub.SetAttributeValue("policy", cty.StringVal(string(j.UDIM.Policy)))
		if len(j.UDIM.Tiles) > 0 {
			tiles := make(map[string]cty.Value, len(j.UDIM.Tiles))
			for obj, t := range j.UDIM.Tiles {
				tiles[obj] = cty.NumberIntVal(int64(t))
			}
			ub.SetAttributeValue("tiles", cty.MapVal(tiles))
		}

		ob := jb.AppendNewBlock("output", nil).Body()
		ob.SetAttributeValue("root", cty.StringVal(j.Output.Root))
		if j.Output.Template != "" {
			ob.SetAttributeRaw("template", templateTokens(j.Output.Template))
		}
		ob.SetAttributeValue("width", cty.NumberIntVal(int64(j.Output.Width)))
		ob.SetAttributeValue("height", cty.NumberIntVal(int64(j.Output.Height)))
		ob.SetAttributeValue("format", cty.StringVal(string(j.Output.Format)))
		ob.SetAttributeValue("depth", cty.NumberIntVal(int64(j.Output.Depth)))
		ob.SetAttributeValue("margin", cty.NumberIntVal(int64(j.Output.Margin)))

		if j.Animation != nil {
			gohcl.EncodeIntoBody(*j.Animation, jb.AppendNewBlock("animation", nil).Body())
		}

		for _, c := range j.Channels {
			jb.AppendNewline()
			cb := jb.AppendNewBlock("channel", []string{c.ID}).Body()
			cb.SetAttributeValue("name", cty.StringVal(c.Name))
			cb.SetAttributeValue("enabled", cty.BoolVal(c.Enabled))
			cb.SetAttributeValue("valid_for_mode", cty.BoolVal(c.ValidForMode))
			cb.SetAttributeValue("prefix", cty.StringVal(c.Prefix))
			cb.SetAttributeValue("suffix", cty.StringVal(c.Suffix))
			if c.Params != nil {
				gohcl.EncodeIntoBody(c.Params, cb.AppendNewBlock(paramsBlock(c.Params), nil).Body())
			}
		}
	}
	return hclwrite.Format(f.Bytes())
}

// SaveJobs writes jobs to path atomically.
func SaveJobs(path string, jobs ...*Job) error {
	if err := fsutil.WriteFileAtomic(path, Encode(jobs...), 0o644); err != nil {
		return fmt.Errorf("failed to save job document %s: %w", path, err)
	}
	return nil
}

func paramsBlock(p Params) string {
	switch p.(type) {
	case LightParams:
		return "light"
	case MeshParams:
		return "mesh"
	case IDMapParams:
		return "id_map"
	case ConversionParams:
		return "conversion"
	case CustomParams:
		return "custom"
	default:
		return "pbr"
	}
}

func stringList(items []string) cty.Value {
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}

func templateTokens(src string) hclwrite.Tokens {
	return hclwrite.Tokens{
		{Type: hclsyntax.TokenOQuote, Bytes: []byte(`"`)},
		{Type: hclsyntax.TokenQuotedLit, Bytes: []byte(quoteTemplate(src))},
		{Type: hclsyntax.TokenCQuote, Bytes: []byte(`"`)},
	}
}
