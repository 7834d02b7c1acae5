// Package extract runs the full read pipeline over one input: open the
// container (or bare serialized file), index every object, then decode the
// objects in parallel into a pre-sized slice of records.
//
// Each worker owns one record slot, so no locking is needed on the output.
// Cancellation is cooperative: the abort flag is checked before each object
// starts, and an object that has started always finishes.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/EchoTools/hhhFileTools/pkg/archive"
	"github.com/EchoTools/hhhFileTools/pkg/graph"
	"github.com/EchoTools/hhhFileTools/pkg/material"
	"github.com/EchoTools/hhhFileTools/pkg/mesh"
	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/texture"
)

// ErrAborted is returned by Run when the abort flag stopped it early. The
// summary returned alongside holds the objects that completed.
var ErrAborted = errors.New("extraction aborted")

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency sets the number of objects decoded in parallel.
func WithConcurrency(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.concurrency = n
		}
	}
}

// WithClassFilter restricts extraction to the given class IDs.
func WithClassFilter(ids ...int32) Option {
	return func(x *Extractor) {
		if len(ids) > 0 {
			x.classes = make(map[int32]bool, len(ids))
			for _, id := range ids {
				x.classes[id] = true
			}
		}
	}
}

// WithAbort sets a flag that stops the run before the next object starts.
func WithAbort(flag *atomic.Bool) Option {
	return func(x *Extractor) {
		x.abort = flag
	}
}

// WithGeometry reconstructs geometry for Mesh objects.
func WithGeometry(enabled bool) Option {
	return func(x *Extractor) {
		x.geometry = enabled
	}
}

// WithPixels decodes the base level of Texture2D objects, top row first.
func WithPixels(enabled bool) Option {
	return func(x *Extractor) {
		x.pixels = enabled
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(x *Extractor) {
		if l != nil {
			x.logger = l
		}
	}
}

// Extractor decodes every object of an input. It holds no per-run state and
// may be reused.
type Extractor struct {
	concurrency int
	classes     map[int32]bool
	abort       *atomic.Bool
	geometry    bool
	pixels      bool
	logger      *slog.Logger
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Extractor) aborted() bool {
	return x.abort != nil && x.abort.Load()
}

// RunFile reads the input at path and extracts it.
func (x *Extractor) RunFile(ctx context.Context, path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return x.Run(ctx, filepath.Base(path), data)
}

type task struct {
	file   *serialized.File
	object *serialized.Object
}

// Run extracts the container or serialized file held in data. Objects that
// fail to decode are recorded with their error and do not stop the run.
func (x *Extractor) Run(ctx context.Context, name string, data []byte) (*Summary, error) {
	g := graph.New(graph.WithLogger(x.logger), graph.WithCacheSize(0))
	sum := &Summary{Source: name}

	files, err := x.open(g, name, data, sum)
	if err != nil {
		return nil, err
	}

	var tasks []task
	for _, f := range files {
		objects := f.Objects()
		sum.Files = append(sum.Files, FileInfo{
			Name:          f.Name,
			UnityVersion:  f.UnityVersion,
			Platform:      f.Platform,
			HeaderVersion: f.Version,
			BigEndian:     f.BigEndian,
			Objects:       len(objects),
		})
		for i := range objects {
			if x.classes != nil && !x.classes[objects[i].ClassID] {
				continue
			}
			tasks = append(tasks, task{file: f, object: &objects[i]})
		}
	}

	records := make([]Record, len(tasks))
	done := make([]bool, len(tasks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(x.concurrency)
	for i, t := range tasks {
		if x.aborted() || egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if x.aborted() {
				return nil
			}
			records[i] = x.decode(g, t)
			done[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	for i := range records {
		if done[i] {
			sum.Records = append(sum.Records, records[i])
		}
	}
	sum.tally()

	x.logger.Info("extracted",
		"entry", name,
		"files", len(files),
		"objects", len(sum.Records),
		"failed", sum.Failed)

	if len(sum.Records) < len(tasks) {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("extract %s: %w", name, err)
		}
		return sum, fmt.Errorf("extract %s: %w after %d of %d objects", name, ErrAborted, len(sum.Records), len(tasks))
	}
	return sum, nil
}

// open loads the input into g. Containers may hold several serialized files;
// entries that fail to parse are logged and skipped.
func (x *Extractor) open(g *graph.Graph, name string, data []byte, sum *Summary) ([]*serialized.File, error) {
	switch {
	case archive.IsArchive(data):
		a, err := archive.Parse(name, data, archive.WithConcurrency(x.concurrency), archive.WithLogger(x.logger))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		sum.Archive = &ArchiveInfo{
			Signature:     a.Signature,
			Version:       a.Version,
			UnityVersion:  a.UnityVersion,
			UnityRevision: a.UnityRevision,
			Envelope:      a.Envelope,
			Entries:       len(a.Entries()),
		}
		files, err := g.AddArchive(a)
		if err != nil {
			if len(files) == 0 {
				return nil, fmt.Errorf("open %s: %w", name, err)
			}
			x.logger.Warn("skipped archive entries", "entry", name, "error", err)
		}
		return files, nil

	case serialized.IsSerializedFile(data):
		f, err := serialized.Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		g.AddFile(f)
		return []*serialized.File{f}, nil
	}
	return nil, &stream.Error{
		Op:    "open",
		Entry: name,
		Err:   fmt.Errorf("%w: neither a container nor a serialized file", stream.ErrMalformedHeader),
	}
}

func (x *Extractor) decode(g *graph.Graph, t task) Record {
	f, o := t.file, t.object
	r := Record{
		File:     f.Name,
		PathID:   o.PathID,
		ClassID:  o.ClassID,
		Type:     f.TypeName(o),
		Size:     o.ByteSize,
		Checksum: xxhash.Sum64(f.Data(o)),
	}
	log := x.logger.With("entry", f.Name, "path_id", o.PathID, "class_id", o.ClassID)

	h, ok := g.Lookup(f, o.PathID)
	if !ok {
		r.fail(fmt.Errorf("object %d not indexed", o.PathID))
		return r
	}
	fields, err := h.Decode()
	if err != nil {
		log.Warn("decode failed", "error", err)
		r.fail(err)
		return r
	}
	r.Fields = fields

	switch o.ClassID {
	case serialized.ClassMesh:
		if !x.geometry {
			break
		}
		v, err := mesh.FromObject(fields, f.GeneratorVersion(), f.Order())
		if err == nil {
			r.Geometry, err = v.Reconstruct(g)
		}
		if err != nil {
			log.Warn("mesh reconstruction failed", "error", err)
			r.fail(err)
		}

	case serialized.ClassTexture2D:
		if !x.pixels {
			break
		}
		v, err := texture.FromObject(fields)
		if err == nil {
			r.Pixels, err = v.Decode(g, texture.WithFlipVertical(true))
		}
		if err != nil {
			log.Warn("texture decode failed", "error", err)
			r.fail(err)
		}

	case serialized.ClassMaterial:
		v, err := material.FromObject(fields)
		if err != nil {
			log.Warn("material view failed", "error", err)
			r.fail(err)
			break
		}
		r.Material = v
	}

	log.Debug("decoded object", "type", r.Type)
	return r
}
