package project

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Stage geometry of the Entry runtime.
const (
	StageWidth  = 480
	StageHeight = 270
	Speed       = 60
)

// Layout selects how tiles map onto sprites.
type Layout string

const (
	// LayoutTiled makes one sprite per tile plus the coordinator.
	LayoutTiled Layout = "tiled"
	// LayoutSingleObject makes one sprite whose costumes are single frames.
	LayoutSingleObject Layout = "single-object"
)

// ParseLayout resolves a configured layout name. "auto" and "" pick the
// single-object layout for boost runs and tiled otherwise.
func ParseLayout(value string, boost bool) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		if boost {
			return LayoutSingleObject, nil
		}
		return LayoutTiled, nil
	case string(LayoutTiled):
		return LayoutTiled, nil
	case string(LayoutSingleObject):
		if !boost {
			return "", errors.New("single-object layout requires boost mode")
		}
		return LayoutSingleObject, nil
	default:
		return "", fmt.Errorf("unknown layout %q", value)
	}
}

// Tile is a sealed tile as the manifest sees it.
type Tile struct {
	Index      int
	FrameCount int
	// Rows is the number of frame rows in the tile image.
	Rows int
	// RowEnd is the cumulative row count through this tile.
	RowEnd int
	Hash   string
	Path   string
	Ext    string
	Width  int
	Height int
}

// Audio is the optional soundtrack asset.
type Audio struct {
	Hash     string
	Path     string
	Duration float64
}

// Input is everything Build needs.
type Input struct {
	Name        string
	Layout      Layout
	FrameWidth  int
	FrameHeight int
	Cols        int
	Frames      int
	FrameRate   float64
	// Duration in seconds. Zero derives it from Frames and FrameRate.
	Duration float64
	// Tiles may arrive in any order.
	Tiles []Tile
	Audio *Audio
	IDs   IDSource
}

// Build synthesizes the project for a packed video.
func Build(in Input) (*Project, error) {
	tiles, err := in.validate()
	if err != nil {
		return nil, err
	}
	ids := in.IDs
	if ids == nil {
		ids = HashIDs{}
	}
	duration := in.Duration
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = float64(in.Frames) / in.FrameRate
	}

	b := &builder{
		in:       in,
		tiles:    tiles,
		ids:      ids,
		s:        scripts{ids: ids},
		duration: duration,
		scaleX:   StageWidth / float64(in.FrameWidth),
		scaleY:   StageHeight / float64(in.FrameHeight),
	}
	p := newProject(in.Name)
	b.play = Message{ID: ids.NewID(), Name: "play"}
	p.Messages = append(p.Messages, b.play)

	switch in.Layout {
	case LayoutTiled:
		for _, tile := range tiles {
			obj, local, err := b.tileObject(tile)
			if err != nil {
				return nil, err
			}
			p.Objects = append(p.Objects, obj)
			b.locals = append(b.locals, local)
		}
	case LayoutSingleObject:
		obj, local, err := b.singleObject()
		if err != nil {
			return nil, err
		}
		p.Objects = append(p.Objects, obj)
		b.locals = append(b.locals, local)
	default:
		return nil, fmt.Errorf("project: unknown layout %q", in.Layout)
	}

	coordinator, err := b.coordinatorObject()
	if err != nil {
		return nil, err
	}
	p.Objects = append(p.Objects, coordinator)
	p.Interface.Object = coordinator.ID
	p.Variables = append(b.locals, p.Variables...)
	return p, nil
}

// Placeholder returns the well-formed empty manifest written before a split.
func Placeholder(name string) *Project {
	return newProject(name)
}

func newProject(name string) *Project {
	return &Project{
		Name:                name,
		Objects:             []Object{},
		Scenes:              []Scene{{ID: SceneID, Name: SceneName}},
		Variables:           []Variable{runtimeVariable(TimerName, TimerID, "timer", -math.MaxFloat64), runtimeVariable(AnswerName, AnswerID, "answer", 0)},
		Messages:            []Message{},
		Functions:           []any{},
		Tables:              []any{},
		Speed:               Speed,
		Interface:           Interface{MenuWidth: 280, CanvasWidth: StageWidth},
		ExpansionBlocks:     []any{},
		AIUtilizeBlocks:     []any{},
		HardwareLiteBlocks:  []any{},
		ExternalModules:     []any{},
		ExternalModulesLite: []any{},
	}
}

func runtimeVariable(name, id, kind string, pos float64) Variable {
	return Variable{Name: name, ID: id, VariableType: kind, X: pos, Y: pos}
}

func (in Input) validate() ([]Tile, error) {
	switch {
	case in.Frames < 1:
		return nil, errors.New("project: no frames")
	case in.FrameRate <= 0 || math.IsNaN(in.FrameRate) || math.IsInf(in.FrameRate, 0):
		return nil, fmt.Errorf("project: invalid frame rate %v", in.FrameRate)
	case in.FrameWidth < 1 || in.FrameHeight < 1:
		return nil, fmt.Errorf("project: invalid frame size %dx%d", in.FrameWidth, in.FrameHeight)
	case in.Cols < 1:
		return nil, fmt.Errorf("project: invalid column count %d", in.Cols)
	case len(in.Tiles) == 0:
		return nil, errors.New("project: no tiles")
	}

	tiles := slices.Clone(in.Tiles)
	slices.SortFunc(tiles, func(a, b Tile) int { return a.Index - b.Index })
	next := 0
	for i, tile := range tiles {
		if tile.Index != i {
			return nil, fmt.Errorf("project: tile %d missing", i)
		}
		if first := (tile.RowEnd - tile.Rows) * in.Cols; first != next {
			return nil, fmt.Errorf("project: tile %d starts at frame %d, want %d", i, first, next)
		}
		if tile.FrameCount < 1 {
			return nil, fmt.Errorf("project: tile %d is empty", i)
		}
		if len(tile.Hash) < IDLength || tile.Path == "" {
			return nil, fmt.Errorf("project: tile %d has no asset", i)
		}
		next += tile.FrameCount
	}
	if next != in.Frames {
		return nil, fmt.Errorf("project: tiles cover %d frames, want %d", next, in.Frames)
	}
	return tiles, nil
}

type builder struct {
	in       Input
	tiles    []Tile
	ids      IDSource
	s        scripts
	duration float64
	scaleX   float64
	scaleY   float64
	play     Message
	locals   []Variable
}

func (b *builder) picture(tile Tile) Picture {
	ext := tile.Ext
	if ext == "" {
		ext = "png"
	}
	return Picture{
		ID:        b.ids.NewID(),
		Dimension: Dimension{Width: tile.Width, Height: tile.Height},
		FileURL:   tile.Path,
		Filename:  tile.Hash,
		Name:      tile.Hash,
		ImageType: ext,
	}
}

// object wraps pictures and a script into a hidden sprite whose registration
// point is the centre of cell (0,0), scaled so one cell fills the stage.
func (b *builder) object(name string, pictures []Picture, sounds []Sound, script [][]Block) (Object, error) {
	encoded, err := encodeJSON(script)
	if err != nil {
		return Object{}, fmt.Errorf("project: encode script for %s: %w", name, err)
	}
	return Object{
		ID:                b.ids.NewID(),
		Name:              name,
		Script:            string(encoded),
		ObjectType:        "sprite",
		RotateMethod:      "free",
		Scene:             SceneID,
		Sprite:            Sprite{Pictures: pictures, Sounds: sounds},
		SelectedPictureID: pictures[0].ID,
		Entity: Entity{
			RegX:      StageWidth / b.scaleX / 2,
			RegY:      StageHeight / b.scaleY / 2,
			ScaleX:    b.scaleX,
			ScaleY:    b.scaleY,
			Direction: 90,
			Width:     pictures[0].Dimension.Width,
			Height:    pictures[0].Dimension.Height,
			Font:      "undefinedpx ",
		},
	}, nil
}

func localVariable(id, objectID string) Variable {
	owner := objectID
	return Variable{
		Name:         localVarName,
		ID:           id,
		VariableType: "variable",
		Object:       &owner,
	}
}

// tileObject shows cell (local mod cols, local div cols) of the tile while
// local = floor(timer*fps) - firstFrame lies inside the tile.
func (b *builder) tileObject(tile Tile) (Object, Variable, error) {
	s := b.s
	cols := float64(b.in.Cols)
	first := float64((tile.RowEnd - tile.Rows) * b.in.Cols)
	pictures := []Picture{b.picture(tile)}
	varID := b.ids.NewID()

	script := [][]Block{{
		s.block("when_message_cast", nil, b.play.ID),
		s.block("hide"),
		s.forever(
			s.set(varID, s.calc(s.elapsedFrame(b.in.FrameRate), opMinus, s.number(first))),
			s.ifThen(s.finished(b.duration), s.block("stop_repeat")),
			s.ifElse(
				s.and(
					s.compare(s.get(varID), opGreaterE, s.number(0)),
					s.compare(s.get(varID), opLess, s.number(float64(tile.FrameCount))),
				),
				[]Block{
					s.block("locate_xy",
						s.calc(s.number(-StageWidth), opMulti, s.divmod(s.get(varID), s.number(cols), opMod)),
						s.calc(s.number(StageHeight), opMulti, s.divmod(s.get(varID), s.number(cols), opQuotient)),
					),
					s.block("show"),
				},
				[]Block{s.block("hide")},
			),
		),
		s.block("hide"),
	}}

	obj, err := b.object(fmt.Sprintf("%s #%d", b.in.Name, tile.Index+1), pictures, []Sound{}, script)
	if err != nil {
		return Object{}, Variable{}, err
	}
	return obj, localVariable(varID, obj.ID), nil
}

// singleObject switches costume 1+frame on one sprite.
func (b *builder) singleObject() (Object, Variable, error) {
	s := b.s
	pictures := make([]Picture, 0, len(b.tiles))
	for _, tile := range b.tiles {
		if tile.FrameCount != 1 {
			return Object{}, Variable{}, fmt.Errorf("project: single-object layout needs one frame per tile, tile %d has %d", tile.Index, tile.FrameCount)
		}
		pictures = append(pictures, b.picture(tile))
	}
	varID := b.ids.NewID()

	script := [][]Block{{
		s.block("when_message_cast", nil, b.play.ID),
		s.block("hide"),
		s.forever(
			s.set(varID, s.elapsedFrame(b.in.FrameRate)),
			s.ifThen(s.finished(b.duration), s.block("stop_repeat")),
			s.ifElse(
				s.compare(s.get(varID), opLess, s.number(float64(b.in.Frames))),
				[]Block{
					s.block("change_to_some_shape", s.calc(s.number(1), opPlus, s.get(varID))),
					s.block("show"),
				},
				[]Block{s.block("hide")},
			),
		),
		s.block("hide"),
	}}

	obj, err := b.object(b.in.Name, pictures, []Sound{}, script)
	if err != nil {
		return Object{}, Variable{}, err
	}
	return obj, localVariable(varID, obj.ID), nil
}

// coordinatorObject restarts the timer, releases the playing sprites and the
// soundtrack together, then stops the timer once the video has run out.
func (b *builder) coordinatorObject() (Object, error) {
	s := b.s
	sounds := []Sound{}
	if audio := b.in.Audio; audio != nil {
		sounds = append(sounds, Sound{
			Duration: math.Round(audio.Duration*10) / 10,
			Ext:      ".mp3",
			ID:       b.ids.NewID(),
			FileURL:  audio.Path,
			Filename: audio.Hash,
			Name:     b.in.Name,
		})
	}

	thread := []Block{
		s.block("when_run_button_click"),
		s.timerAction(timerReset),
		s.timerAction(timerStart),
		s.block("message_cast", b.play.ID, nil),
	}
	if len(sounds) > 0 {
		thread = append(thread, s.block("sound_something_with_block", s.number(1)))
	}
	thread = append(thread,
		s.block("wait_until_true", s.finished(b.duration)),
		s.timerAction(timerStop),
	)

	return b.object(b.in.Name, []Picture{b.picture(b.tiles[0])}, sounds, [][]Block{thread})
}
