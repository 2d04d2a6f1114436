// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Line is a polyline drawn by drawable.set_lines.
type Line struct {
	Points    []LinePoint `cbor:"points"`
	Cyclic    bool        `cbor:"cyclic,omitempty"`
	Thickness float32     `cbor:"thickness,omitempty"`
}

// LinePoint is one vertex of a Line. Color is linear RGBA.
type LinePoint struct {
	Point wire.Vec3  `cbor:"point"`
	Color [4]float32 `cbor:"color,omitempty"`
}

// Model is the content of drawable.load_model.
type Model struct {
	Path string `cbor:"path"`
}

// Text is the content of drawable.set_text.
type Text struct {
	Text          string     `cbor:"text"`
	CharacterSize float32    `cbor:"character_size,omitempty"`
	Color         [4]float32 `cbor:"color,omitempty"`
	Font          string     `cbor:"font,omitempty"`
}

// MaterialParameter is the content of drawable.set_material_parameter.
// Value is passed to the renderer undecoded beyond CBOR's data model.
type MaterialParameter struct {
	Name  string `cbor:"name"`
	Value any    `cbor:"value"`
}

// Drawable content kinds handed to Renderer.Submit.
const (
	ContentLines     = "lines"
	ContentModel     = "model"
	ContentText      = "text"
	ContentParameter = "material_parameter"
)

func (b *Builtins) drawableTable() scene.Table {
	return scene.Table{
		Name:        Drawable,
		Description: "Renderable content attached to a spatial node.",
		Requires:    []string{Spatial},
		Methods: map[string]scene.Method{
			"set_lines": {
				Handler:     b.setLines,
				Ownership:   true,
				Description: "Replace the node's lines.",
			},
			"load_model": {
				Handler:     b.loadModel,
				Ownership:   true,
				Description: "Show a model file.",
			},
			"set_text": {
				Handler:     b.setText,
				Ownership:   true,
				Description: "Replace the node's text.",
			},
			"set_material_parameter": {
				Handler:     b.setMaterialParameter,
				Ownership:   true,
				Description: "Set a material parameter on the loaded model.",
			},
		},
	}
}

func (b *Builtins) setLines(call *scene.Call) (any, error) {
	var args struct {
		Lines []Line `cbor:"lines"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	for i, line := range args.Lines {
		if len(line.Points) < 2 {
			return nil, wire.Errorf(wire.CodeInvalidArguments, "line %d has %d points, need at least 2", i, len(line.Points))
		}
	}
	b.renderer.Submit(call.Node.Handle, ContentLines, args.Lines)
	return nil, nil
}

func (b *Builtins) loadModel(call *scene.Call) (any, error) {
	var args Model
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "model path is empty")
	}
	b.renderer.Submit(call.Node.Handle, ContentModel, args)
	return nil, nil
}

func (b *Builtins) setText(call *scene.Call) (any, error) {
	var args Text
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	b.renderer.Submit(call.Node.Handle, ContentText, args)
	return nil, nil
}

func (b *Builtins) setMaterialParameter(call *scene.Call) (any, error) {
	var args MaterialParameter
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if args.Name == "" {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "material parameter name is empty")
	}
	b.renderer.Submit(call.Node.Handle, ContentParameter, args)
	return nil, nil
}
