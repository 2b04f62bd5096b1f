package pipeline_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/idiotf/entry-video-compress/internal/archive"
	"github.com/idiotf/entry-video-compress/internal/decoder"
	"github.com/idiotf/entry-video-compress/internal/media/ffprobe"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
	"github.com/idiotf/entry-video-compress/internal/project"
	"github.com/idiotf/entry-video-compress/internal/services"
	"github.com/idiotf/entry-video-compress/internal/tiling"
)

const (
	frameW = 8
	frameH = 6
)

func solidPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, frameW, frameH))
	for y := range frameH {
		for x := range frameW {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: uint8(x * 16), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return buf.Bytes()
}

type fakeDecoder struct {
	t        *testing.T
	frames   int
	audio    []byte
	duration float64
	rate     ffprobe.Rational
	// framesErr fails frame extraction.
	framesErr error
	// blockFrames makes frame extraction wait for cancellation.
	blockFrames bool

	opened   atomic.Int32
	closed   atomic.Int32
	captures atomic.Int32
	captured []float64
	mu       sync.Mutex
}

func (d *fakeDecoder) Open(ctx context.Context, name string, video []byte) (pipeline.Session, error) {
	d.opened.Add(1)
	return &fakeSession{d: d}, nil
}

type fakeSession struct {
	d *fakeDecoder
}

func (s *fakeSession) ProbeDuration(ctx context.Context) (float64, error) {
	if s.d.duration <= 0 {
		return 0, &decoder.DecodeFailure{Operation: "probe duration", Err: errors.New("duration unavailable")}
	}
	return s.d.duration, nil
}

func (s *fakeSession) ProbeFrameRate(ctx context.Context) (ffprobe.Rational, error) {
	if !s.d.rate.Valid() {
		return ffprobe.Rational{}, errors.New("no rate")
	}
	return s.d.rate, nil
}

func (s *fakeSession) ExtractAudio(ctx context.Context, progress decoder.ProgressFunc) ([]byte, error) {
	return s.d.audio, nil
}

func (s *fakeSession) ExtractFrames(ctx context.Context, req decoder.FrameRequest, progress decoder.ProgressFunc) ([]tiling.Frame, error) {
	if s.d.blockFrames {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.d.framesErr != nil {
		return nil, s.d.framesErr
	}
	progress(0.5)
	progress(0.25)
	progress(1)
	frames := make([]tiling.Frame, s.d.frames)
	for i := range frames {
		frames[i] = tiling.MemoryFrame{Ordinal: i, Data: solidPNG(s.d.t, uint8(i))}
	}
	return frames, nil
}

func (s *fakeSession) CaptureFrame(ctx context.Context, index int, at float64, width, height int) (tiling.Frame, error) {
	s.d.captures.Add(1)
	s.d.mu.Lock()
	s.d.captured = append(s.d.captured, at)
	s.d.mu.Unlock()
	return tiling.MemoryFrame{Ordinal: index, Data: solidPNG(s.d.t, uint8(index))}, nil
}

func (s *fakeSession) Close() error {
	s.d.closed.Add(1)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []pipeline.Event
	onEvt  func(pipeline.Event)
}

func (r *recorder) Event(e pipeline.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.onEvt != nil {
		r.onEvt(e)
	}
}

func (r *recorder) states() []pipeline.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pipeline.State
	for _, e := range r.events {
		if s, ok := e.(pipeline.StateEvent); ok {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *recorder) progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, e := range r.events {
		if p, ok := e.(pipeline.ProgressEvent); ok {
			out = append(out, p.Fraction)
		}
	}
	return out
}

func (r *recorder) tileDigests() map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]string)
	for _, e := range r.events {
		if tile, ok := e.(pipeline.TileEvent); ok {
			out[tile.Index] = tile.Digest
		}
	}
	return out
}

func sequenceHashes() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%032d", n.Add(1))
	}
}

func sequenceIDs() project.IDSource {
	n := 0
	return project.IDFunc(func() string {
		n++
		return fmt.Sprintf("id%d", n)
	})
}

func baseOptions(dec pipeline.Decoder, rec *recorder) pipeline.Options {
	return pipeline.Options{
		Width:    frameW,
		Height:   frameH,
		Decoder:  dec,
		Listener: rec,
		NewHash:  sequenceHashes(),
		IDs:      sequenceIDs(),
	}
}

type entry struct {
	name string
	data []byte
}

func readSegment(t *testing.T, seg archive.Segment) []entry {
	t.Helper()
	tr := tar.NewReader(bytes.NewReader(seg.Data))
	var entries []entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries
		}
		if err != nil {
			t.Fatalf("segment %d not readable: %v", seg.Index, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read %s: %v", hdr.Name, err)
		}
		entries = append(entries, entry{name: hdr.Name, data: data})
	}
}

func decodeManifest(t *testing.T, data []byte) project.Project {
	t.Helper()
	var p project.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	return p
}

func TestRunProducesSingleArchive(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 300, audio: []byte("ID3 fake mp3"), duration: 10, rate: ffprobe.Rational{Num: 30, Den: 1}}
	rec := &recorder{}
	opts := baseOptions(dec, rec)
	opts.GridCols, opts.GridRows = 5, 5

	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "clip.mp4", Video: []byte("video")}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 300 || res.Tiles != 12 || res.Cols != 5 || res.FrameRate != 30 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Layout != project.LayoutTiled || res.Policy != tiling.PolicyParallel || !res.Audio || res.Fallback {
		t.Fatalf("unexpected result flags %+v", res)
	}
	if res.JobID == "" {
		t.Fatal("expected job id")
	}
	if len(res.Segments) != 1 || res.SegmentCount != 1 {
		t.Fatalf("expected one segment, got %d", len(res.Segments))
	}

	entries := readSegment(t, res.Segments[0])
	if len(entries) != 1+12+1 {
		t.Fatalf("expected 14 entries, got %d", len(entries))
	}
	if !strings.Contains(entries[0].name, "/sound/") || string(entries[0].data) != "ID3 fake mp3" {
		t.Fatalf("audio not first: %s", entries[0].name)
	}
	for _, e := range entries[1:13] {
		if !strings.Contains(e.name, "/image/") || !strings.HasSuffix(e.name, ".png") {
			t.Fatalf("unexpected tile entry %s", e.name)
		}
	}
	last := entries[len(entries)-1]
	if last.name != archive.ManifestPath {
		t.Fatalf("manifest not last: %s", last.name)
	}
	manifest := decodeManifest(t, last.data)
	if len(manifest.Objects) != 13 {
		t.Fatalf("expected 12 tile sprites plus coordinator, got %d", len(manifest.Objects))
	}
	if manifest.Name != "clip.mp4" {
		t.Fatalf("unexpected manifest name %q", manifest.Name)
	}

	want := []pipeline.State{pipeline.StateConfig, pipeline.StateExtracting, pipeline.StateGenerating, pipeline.StateDone}
	if got := rec.states(); !slices.Equal(got, want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	progress := rec.progress()
	if len(progress) == 0 || progress[len(progress)-1] != 1 {
		t.Fatalf("progress must end at 1: %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress decreased: %v", progress)
		}
	}
	if dec.closed.Load() != 1 {
		t.Fatalf("expected session closed once, got %d", dec.closed.Load())
	}
}

func TestRunSplitsArchiveBehindPlaceholders(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 40, audio: bytes.Repeat([]byte{1}, 700), duration: 4, rate: ffprobe.Rational{Num: 10, Den: 1}}
	rec := &recorder{}
	opts := baseOptions(dec, rec)
	opts.Tiles = 8
	opts.DivisionSize = 6 * archive.BlockSize * 2

	var segments []archive.Segment
	opts.Segments = archive.SinkFunc(func(seg archive.Segment) error {
		segments = append(segments, seg)
		return nil
	})
	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "clip.mp4", Video: []byte("video")}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Segments) != 0 {
		t.Fatal("segments should go to the sink only")
	}
	if len(segments) < 2 || res.SegmentCount != len(segments) {
		t.Fatalf("expected several segments, got %d (count %d)", len(segments), res.SegmentCount)
	}

	assets := 0
	for i, seg := range segments {
		if seg.Index != i {
			t.Fatalf("segment %d has index %d", i, seg.Index)
		}
		entries := readSegment(t, seg)
		if len(entries) < 2 {
			t.Fatalf("segment %d has %d entries", i, len(entries))
		}
		last := entries[len(entries)-1]
		if last.name != archive.ManifestPath {
			t.Fatalf("segment %d does not end with the manifest", i)
		}
		manifest := decodeManifest(t, last.data)
		final := i == len(segments)-1
		if final != (len(manifest.Objects) > 0) {
			t.Fatalf("segment %d final=%v but manifest has %d objects", i, final, len(manifest.Objects))
		}
		if !final && seg.Size > opts.DivisionSize {
			t.Fatalf("segment %d is %d bytes, over %d", i, seg.Size, opts.DivisionSize)
		}
		for _, e := range entries {
			if e.name == archive.ManifestPath {
				continue
			}
			assets++
		}
	}
	if assets != 1+res.Tiles {
		t.Fatalf("expected %d assets across segments, got %d", 1+res.Tiles, assets)
	}
}

func TestRunFallsBackToCapturesWhenNoFrames(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 0, duration: 2, rate: ffprobe.Rational{Num: 5, Den: 1}}
	rec := &recorder{}
	opts := baseOptions(dec, rec)

	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "still.gif", Video: []byte("video")}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Fallback || res.Frames != 10 || dec.captures.Load() != 10 {
		t.Fatalf("expected 10 captured frames, got result %+v and %d captures", res, dec.captures.Load())
	}
	slices.Sort(dec.captured)
	for i, at := range dec.captured {
		if want := float64(i) / 5; at != want {
			t.Fatalf("capture %d at %v, want %v", i, at, want)
		}
	}
	if res.Audio {
		t.Fatal("expected no audio")
	}
}

func TestRunFallbackWithoutRateCapturesOneFrame(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 0, duration: 0}
	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "x.png", Video: []byte("v")}, baseOptions(dec, &recorder{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 1 || dec.captures.Load() != 1 || res.FrameRate != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunWithoutDurationUsesDecodedFrames(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 30, duration: 0, rate: ffprobe.Rational{Num: 10, Den: 1}}
	rec := &recorder{}
	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "clip.mp4", Video: []byte("v")}, baseOptions(dec, rec))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 30 || res.Fallback || dec.captures.Load() != 0 {
		t.Fatalf("unexpected result %+v (captures %d)", res, dec.captures.Load())
	}
	if res.FrameRate != 10 || res.Duration != 3 {
		t.Fatalf("expected 10fps over 3s, got %v fps over %v s", res.FrameRate, res.Duration)
	}
	if states := rec.states(); states[len(states)-1] != pipeline.StateDone {
		t.Fatalf("expected done, got %v", states)
	}
}

func TestRunDecodeFailureIsFatal(t *testing.T) {
	failure := &decoder.DecodeFailure{Operation: "extract frames", Diagnostic: "moov atom not found", Err: errors.New("exit status 1")}
	dec := &fakeDecoder{t: t, framesErr: failure, duration: 1}
	rec := &recorder{}

	_, err := pipeline.Run(context.Background(), pipeline.Request{Name: "bad.mp4", Video: []byte("v")}, baseOptions(dec, rec))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if msg := services.UserMessage(err); strings.Contains(msg, "moov") || msg != services.MessageDecode {
		t.Fatalf("unexpected user message %q", msg)
	}
	states := rec.states()
	if states[len(states)-1] != pipeline.StateError {
		t.Fatalf("expected error state, got %v", states)
	}
	if dec.closed.Load() != 1 {
		t.Fatal("expected session closed after failure")
	}
}

func TestRunReadFailureHappensBeforeDecoding(t *testing.T) {
	dec := &fakeDecoder{t: t}
	rec := &recorder{}
	_, err := pipeline.Run(context.Background(), pipeline.Request{Path: filepath.Join(t.TempDir(), "missing.mp4")}, baseOptions(dec, rec))
	if !errors.Is(err, services.ErrRead) {
		t.Fatalf("expected read failure, got %v", err)
	}
	if dec.opened.Load() != 0 {
		t.Fatal("decoder opened despite read failure")
	}
	want := []pipeline.State{pipeline.StateConfig, pipeline.StateError}
	if got := rec.states(); !slices.Equal(got, want) {
		t.Fatalf("states %v, want %v", got, want)
	}
}

func TestRunCancellationAborts(t *testing.T) {
	dec := &fakeDecoder{t: t, blockFrames: true, duration: 1}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{onEvt: func(e pipeline.Event) {
		if s, ok := e.(pipeline.StateEvent); ok && s.State == pipeline.StateExtracting {
			cancel()
		}
	}}

	_, err := pipeline.Run(ctx, pipeline.Request{Name: "long.mp4", Video: []byte("v")}, baseOptions(dec, rec))
	if !errors.Is(err, services.ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	states := rec.states()
	if states[len(states)-1] != pipeline.StateAborted {
		t.Fatalf("expected aborted state, got %v", states)
	}
	if dec.closed.Load() != 1 {
		t.Fatal("expected decoder session released on cancel")
	}
}

func TestRunBoostUsesSingleObject(t *testing.T) {
	dec := &fakeDecoder{t: t, frames: 6, duration: 1, rate: ffprobe.Rational{Num: 6, Den: 1}}
	opts := baseOptions(dec, &recorder{})
	opts.BoostMode = true

	res, err := pipeline.Run(context.Background(), pipeline.Request{Name: "b.mp4", Video: []byte("v")}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Layout != project.LayoutSingleObject || res.Policy != tiling.PolicyBoost || res.Tiles != 6 {
		t.Fatalf("unexpected result %+v", res)
	}
	entries := readSegment(t, res.Segments[0])
	manifest := decodeManifest(t, entries[len(entries)-1].data)
	if len(manifest.Objects) != 2 || len(manifest.Objects[0].Sprite.Pictures) != 6 {
		t.Fatalf("unexpected boost manifest: %d objects", len(manifest.Objects))
	}
	if !bytes.Equal(entries[0].data, solidPNG(t, 0)) {
		t.Fatal("boost tiles should carry frame bytes unchanged")
	}
}

func TestRunPoliciesProduceIdenticalTiles(t *testing.T) {
	digests := make([]map[int]string, 0, 2)
	for _, memorySaving := range []bool{false, true} {
		dec := &fakeDecoder{t: t, frames: 57, duration: 2, rate: ffprobe.Rational{Num: 30000, Den: 1001}}
		rec := &recorder{}
		opts := baseOptions(dec, rec)
		opts.Tiles = 4
		opts.MemorySaving = memorySaving
		if _, err := pipeline.Run(context.Background(), pipeline.Request{Name: "p.mp4", Video: []byte("v")}, opts); err != nil {
			t.Fatalf("Run (memory saving %v): %v", memorySaving, err)
		}
		digests = append(digests, rec.tileDigests())
	}
	if len(digests[0]) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(digests[0]))
	}
	for index, digest := range digests[0] {
		if digests[1][index] != digest {
			t.Fatalf("tile %d differs between policies", index)
		}
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pipeline.Options)
	}{
		{"no decoder", func(o *pipeline.Options) { o.Decoder = nil }},
		{"zero width", func(o *pipeline.Options) { o.Width = 0 }},
		{"negative rate", func(o *pipeline.Options) { o.FrameRate = -1 }},
		{"negative tiles", func(o *pipeline.Options) { o.Tiles = -1 }},
		{"rows without cols", func(o *pipeline.Options) { o.GridRows = 3 }},
		{"boost and memory saving", func(o *pipeline.Options) { o.BoostMode, o.MemorySaving = true, true }},
		{"single object without boost", func(o *pipeline.Options) { o.Layout = "single-object" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &fakeDecoder{t: t}
			opts := baseOptions(dec, &recorder{})
			tt.mutate(&opts)
			_, err := pipeline.Run(context.Background(), pipeline.Request{Name: "x.mp4", Video: []byte("v")}, opts)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if dec.opened.Load() != 0 {
				t.Fatal("decoder opened despite invalid options")
			}
		})
	}
}
