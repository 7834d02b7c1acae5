// Package graph resolves cross-references between objects.
//
// A Graph is an arena of serialized files loaded for one processing run.
// Objects are addressed by (file, path ID) pairs; handles are lookups into the
// arena and never own their target, so reference cycles between objects need
// no special treatment. Decoding is lazy and cached per graph.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/EchoTools/hhhFileTools/pkg/archive"
	"github.com/EchoTools/hhhFileTools/pkg/asset"
	"github.com/EchoTools/hhhFileTools/pkg/serialized"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// DefaultCacheSize is the number of decoded objects kept by default.
const DefaultCacheSize = 256

// ErrResourceNotFound is returned by ReadResource for unknown resource files.
var ErrResourceNotFound = errors.New("resource not found")

// Option configures a Graph.
type Option func(*Graph)

// WithCacheSize sets how many decoded objects are cached. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(g *Graph) {
		if n >= 0 {
			g.cacheSize = n
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

type objectKey struct {
	file   int
	pathID int64
}

// Graph is the object arena of one run. It is safe for concurrent use.
type Graph struct {
	mu        sync.RWMutex
	files     []*serialized.File
	index     map[*serialized.File]int
	byName    map[string]int
	resources map[string]*archive.Entry

	cacheSize int
	cache     *lru.Cache[objectKey, *typetree.Struct]
	decodes   singleflight.Group
	logger    *slog.Logger
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		index:     make(map[*serialized.File]int),
		byName:    make(map[string]int),
		resources: make(map[string]*archive.Entry),
		cacheSize: DefaultCacheSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		g.cache, _ = lru.New[objectKey, *typetree.Struct](g.cacheSize)
	}
	return g
}

func baseName(p string) string {
	return strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
}

// AddFile adds a parsed serialized file to the arena. A file whose name is
// already present is still added but references by name keep resolving to
// the first one.
func (g *Graph) AddFile(f *serialized.File) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[f]; ok {
		return
	}
	i := len(g.files)
	g.files = append(g.files, f)
	g.index[f] = i
	name := baseName(f.Name)
	if _, dup := g.byName[name]; dup {
		g.logger.Warn("duplicate file name", "entry", f.Name)
	} else {
		g.byName[name] = i
	}
	g.logger.Debug("added file", "entry", f.Name, "objects", len(f.Objects()), "version", f.Version)
}

// AddArchive parses every serialized entry of a and registers the others as
// resources. Entries that fail are skipped and reported together; the
// files that parsed are returned either way.
func (g *Graph) AddArchive(a *archive.Archive) ([]*serialized.File, error) {
	var (
		files []*serialized.File
		errs  []error
	)
	for _, e := range a.Entries() {
		data, err := e.Data()
		if err != nil {
			g.logger.Warn("skipping entry", "entry", e.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		if e.IsResource() || (e.Flags&archive.EntryFlagSerialized == 0 && !serialized.IsSerializedFile(data)) {
			g.addResource(e)
			continue
		}
		f, err := serialized.Parse(e.Path, data)
		if err != nil {
			g.logger.Warn("skipping entry", "entry", e.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		g.AddFile(f)
		files = append(files, f)
	}
	return files, errors.Join(errs...)
}

func (g *Graph) addResource(e *archive.Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.resources[e.Name()]; !dup {
		g.resources[e.Name()] = e
	}
}

// Files returns the files in the order they were added.
func (g *Graph) Files() []*serialized.File {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*serialized.File(nil), g.files...)
}

// File finds a file by name, ignoring case and directories.
func (g *Graph) File(name string) (*serialized.File, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.byName[baseName(name)]
	if !ok {
		return nil, false
	}
	return g.files[i], true
}

// Handle is a lazy reference to one object in the arena.
type Handle struct {
	g      *Graph
	file   int
	object *serialized.Object
}

// File returns the serialized file holding the object.
func (h Handle) File() *serialized.File {
	h.g.mu.RLock()
	defer h.g.mu.RUnlock()
	return h.g.files[h.file]
}

// Object returns the object index entry.
func (h Handle) Object() *serialized.Object { return h.object }

// PathID returns the object identifier.
func (h Handle) PathID() int64 { return h.object.PathID }

// ClassID returns the object's class tag.
func (h Handle) ClassID() int32 { return h.object.ClassID }

// Decode decodes the object, sharing the result with concurrent and later
// callers. The returned value must be treated as read-only.
func (h Handle) Decode() (*typetree.Struct, error) {
	return h.g.decode(h)
}

// Lookup returns a handle for pathID in f. f must have been added.
func (g *Graph) Lookup(f *serialized.File, pathID int64) (Handle, bool) {
	g.mu.RLock()
	i, ok := g.index[f]
	g.mu.RUnlock()
	if !ok {
		return Handle{}, false
	}
	o, ok := f.Object(pathID)
	if !ok {
		return Handle{}, false
	}
	return Handle{g: g, file: i, object: o}, true
}

// Resolve follows ref as seen from the file from. A false result means the
// target is not loaded; that is expected for references into other bundles.
func (g *Graph) Resolve(from *serialized.File, ref asset.Reference) (Handle, bool) {
	if ref.IsNull() {
		return Handle{}, false
	}
	if ref.IsLocal() {
		return g.Lookup(from, ref.PathID)
	}

	ext, ok := from.External(ref.FileID)
	if !ok {
		g.logger.Debug("reference to unknown external", "entry", from.Name, "file_id", ref.FileID, "path_id", ref.PathID)
		return Handle{}, false
	}
	target, ok := g.File(ext.Name())
	if !ok {
		return Handle{}, false
	}
	return g.Lookup(target, ref.PathID)
}

func (g *Graph) decode(h Handle) (*typetree.Struct, error) {
	key := objectKey{file: h.file, pathID: h.object.PathID}
	if g.cache != nil {
		if v, ok := g.cache.Get(key); ok {
			return v, nil
		}
	}

	v, err, _ := g.decodes.Do(fmt.Sprintf("%d/%d", key.file, key.pathID), func() (any, error) {
		out, err := h.File().Decode(h.object)
		if err != nil {
			return nil, err
		}
		if g.cache != nil {
			g.cache.Add(key, out)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*typetree.Struct), nil
}

// ReadResource returns size bytes at offset of a resource file, such as the
// .resS entry holding texture pixels. path may be a full archive path; only
// its base name is matched. The slice aliases the archive buffer.
func (g *Graph) ReadResource(resPath string, offset, size int64) ([]byte, error) {
	g.mu.RLock()
	e, ok := g.resources[baseName(resPath)]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("read resource %s: %w", resPath, ErrResourceNotFound)
	}
	data, err := e.Data()
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", resPath, err)
	}
	if offset < 0 || size < 0 || offset+size > int64(len(data)) {
		return nil, &stream.Error{
			Op:     "read resource",
			Entry:  resPath,
			Offset: offset,
			Err:    fmt.Errorf("%w: need %d bytes, resource has %d", stream.ErrTruncatedInput, offset+size, len(data)),
		}
	}
	return data[offset : offset+size], nil
}
