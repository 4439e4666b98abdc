package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/bakegridgo/internal/convert"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/model"
	"github.com/specialistvlad/bakegridgo/internal/pixel"
	"github.com/specialistvlad/bakegridgo/internal/renderer"
	"github.com/specialistvlad/bakegridgo/internal/shading"
	"github.com/specialistvlad/bakegridgo/internal/task"
)

// ErrRenderTimeout is wrapped into the RenderError of a capture that
// exceeded the render timeout.
var ErrRenderTimeout = errors.New("render timed out")

// dispatch produces the pixels of a step: conversions and custom channels
// run in-process, everything else goes to the renderer.
func (e *Executor) dispatch(ctx context.Context, st task.Step) (*pixel.Buffer, error) {
	switch st.Definition().Kind {
	case model.KindConversion:
		return e.convert(ctx, st)
	case model.KindCustom:
		return e.compose(ctx, st)
	}
	return e.render(ctx, st)
}

func (e *Executor) render(ctx context.Context, st task.Step) (*pixel.Buffer, error) {
	def := st.Definition()
	d := renderer.Descriptor{
		Step:      st.Index,
		Object:    st.Object,
		Sources:   st.Sources,
		Material:  st.Material,
		Materials: st.Materials,
		Channel:   st.Channel,
		Pass:      def.Pass,
		Socket:    def.Socket,
		Capture:   shading.NeedsCapture(def),
		Width:     st.Output.Width,
		Height:    st.Output.Height,
		Tile:      st.Tile,
		Margin:    st.Output.Margin,
		Samples:   e.samples(st.Channel),
		Frame:     st.Frame.Number,
	}
	if st.NeedsWorkLayer() {
		d.UVLayer = guard.WorkUVLayer
	}

	rctx := ctx
	if e.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, e.cfg.RenderTimeout)
		defer cancel()
	}

	buf, err := e.cfg.Renderer.Render(rctx, e.cfg.Scene, d)
	if err == nil && buf == nil {
		err = errors.New("renderer returned no pixels")
	}
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrRenderTimeout, e.cfg.RenderTimeout, err)
		}
		var rerr *renderer.RenderError
		if !errors.As(err, &rerr) || errors.Is(err, ErrRenderTimeout) {
			err = &renderer.RenderError{Object: st.Object, Channel: st.ChannelID(), Err: err}
		}
		return nil, err
	}
	return buf, nil
}

func (e *Executor) samples(ch model.Channel) int {
	switch p := ch.Params.(type) {
	case model.LightParams:
		if p.Samples > 0 {
			return p.Samples
		}
	case model.MeshParams:
		if p.Samples > 0 {
			return p.Samples
		}
	}
	return e.cfg.Samples
}

// convert runs a conversion channel over results baked earlier in the same
// unit.
func (e *Executor) convert(ctx context.Context, st task.Step) (*pixel.Buffer, error) {
	params, _ := st.Channel.Params.(model.ConversionParams)
	w, h := st.Output.Width, st.Output.Height
	threshold := params.Threshold
	if threshold == 0 {
		threshold = model.DefaultSpecularThreshold
	}

	ctxlog.FromContext(ctx).Debug("Running conversion.", "channel", st.ChannelID(), "threshold", threshold)
	switch st.ChannelID() {
	case "pbr_conv_metal":
		spec, err := e.source(ctx, st, "specular")
		if err != nil {
			return nil, err
		}
		return convert.MetalFromSpecular(ctx, spec, w, h, threshold)
	case "pbr_conv_base":
		diffuse, err := e.source(ctx, st, "color")
		if err != nil {
			return nil, err
		}
		spec, err := e.source(ctx, st, "specular")
		if err != nil {
			return nil, err
		}
		return convert.BaseFromSpecular(ctx, diffuse, spec, w, h, threshold)
	case "pack":
		var sources [4]*pixel.Buffer
		for i, id := range params.PackSources() {
			if id == "" {
				continue
			}
			buf, err := e.source(ctx, st, id)
			if err != nil {
				return nil, err
			}
			sources[i] = buf
		}
		return convert.Pack(ctx, sources, w, h)
	default:
		return nil, fmt.Errorf("unknown conversion %q", st.ChannelID())
	}
}

// compose builds a custom channel from results baked earlier in the same unit
// and constants.
func (e *Executor) compose(ctx context.Context, st task.Step) (*pixel.Buffer, error) {
	params, _ := st.Channel.Params.(model.CustomParams)
	var comps [4]convert.Component
	for i, c := range params.Components() {
		comps[i] = convert.Component{Value: float32(c.Value), Channel: c.Index(), Invert: c.Invert}
		if c.Source == "" {
			continue
		}
		buf, err := e.source(ctx, st, c.Source)
		if err != nil {
			return nil, err
		}
		comps[i].Source = buf
	}
	ctxlog.FromContext(ctx).Debug("Composing custom channel.", "channel", st.ChannelID(), "sources", params.Sources())
	return convert.Compose(ctx, comps, st.Output.Width, st.Output.Height)
}

// source fetches the result of channel id baked for the same unit as st.
func (e *Executor) source(ctx context.Context, st task.Step, id string) (*pixel.Buffer, error) {
	buf, ok, err := e.results.Get(ctx, resultKey(st).WithChannel(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("channel %s: source channel %q was not baked", st.ChannelID(), id)
	}
	return buf, nil
}
