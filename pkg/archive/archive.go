// Package archive reads asset bundle containers.
//
// A container holds one or more logical entries (virtual files) stored in a
// sequence of compressed blocks. Three container kinds are supported:
// UnityFS, and the older UnityRaw and UnityWeb. Any of them may additionally
// be wrapped in a ZSTD envelope.
//
// Parse decompresses every data block up front, in parallel, into a single
// buffer owned by the Archive. Entries are views into that buffer.
package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/EchoTools/hhhFileTools/pkg/codec"
	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Container signatures.
const (
	SignatureFS  = "UnityFS"
	SignatureRaw = "UnityRaw"
	SignatureWeb = "UnityWeb"
)

// ErrUnknownSignature is returned for data that is not a recognised container.
var ErrUnknownSignature = fmt.Errorf("%w: unknown container signature", stream.ErrMalformedHeader)

// Entry is one logical file of an archive.
type Entry struct {
	Path   string
	Offset int64 // within the decompressed block stream
	Size   int64
	Flags  uint32

	data []byte
	err  error
}

// Data returns the entry's bytes without copying. It fails if any block
// backing the entry could not be decompressed.
func (e *Entry) Data() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.data, nil
}

// Name returns the lower-cased base name, the form external references use.
func (e *Entry) Name() string {
	return strings.ToLower(path.Base(e.Path))
}

// IsResource reports whether the entry holds out-of-band resource data.
func (e *Entry) IsResource() bool {
	ext := strings.ToLower(path.Ext(e.Path))
	return ext == ".ress" || ext == ".resource"
}

// Archive is a parsed container.
type Archive struct {
	Header
	Name      string
	Envelope  bool // data was wrapped in a ZSTD envelope
	Blocks    []BlockInfo
	entries   []*Entry
	byPath    map[string]*Entry
	byName    map[string]*Entry
	blockData []byte
}

// Option configures Parse.
type Option func(*parser)

// WithConcurrency sets the number of blocks decompressed in parallel.
func WithConcurrency(n int) Option {
	return func(p *parser) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// DefaultMaxSize bounds the decompressed size of a container.
const DefaultMaxSize = 2 << 30

// WithMaxSize sets the largest decompressed size Parse accepts for the whole
// container. Declared sizes above it are rejected before anything is
// allocated.
func WithMaxSize(n int64) Option {
	return func(p *parser) {
		if n > 0 {
			p.maxSize = n
		}
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(p *parser) {
		if l != nil {
			p.logger = l
		}
	}
}

type parser struct {
	concurrency int
	maxSize     int64
	logger      *slog.Logger
}

// ReadFile reads and parses the container at path.
func ReadFile(name string, opts ...Option) (*Archive, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return Parse(filepath.Base(name), data, opts...)
}

// IsArchive reports whether data starts with a container signature, with or
// without an envelope.
func IsArchive(data []byte) bool {
	return hasEnvelope(data) || signature(data) != ""
}

func signature(data []byte) string {
	for _, sig := range []string{SignatureFS, SignatureRaw, SignatureWeb} {
		if len(data) > len(sig) && string(data[:len(sig)]) == sig && data[len(sig)] == 0 {
			return sig
		}
	}
	return ""
}

// Parse parses a container held in memory. name identifies it in errors and logs.
func Parse(name string, data []byte, opts ...Option) (*Archive, error) {
	p := &parser{
		concurrency: runtime.GOMAXPROCS(0),
		maxSize:     DefaultMaxSize,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	a, err := p.parse(name, data)
	if err != nil {
		return nil, err
	}
	p.logger.Info("opened archive",
		"entry", name,
		"signature", a.Signature,
		"version", a.Version,
		"blocks", len(a.Blocks),
		"entries", len(a.entries))
	return a, nil
}

func (p *parser) parse(name string, data []byte) (*Archive, error) {
	a := &Archive{Name: name}

	data, wrapped, err := unwrapEnvelope(data, p.maxSize)
	if err != nil {
		return nil, &stream.Error{Op: "unwrap envelope", Entry: name, Offset: 0, Err: err}
	}
	a.Envelope = wrapped

	r := stream.NewReader(data, binary.BigEndian)
	fail := func(err error) error {
		return &stream.Error{Op: "parse archive", Entry: name, Offset: r.Pos(), Err: err}
	}

	sig := signature(data)
	if sig == "" {
		return nil, fail(ErrUnknownSignature)
	}
	if err := readCommonHeader(r, &a.Header); err != nil {
		return nil, fail(err)
	}

	var nodes []node
	switch sig {
	case SignatureFS:
		if err := readFSHeader(r, &a.Header); err != nil {
			return nil, fail(err)
		}
		if err := a.Validate(int64(len(data))); err != nil {
			return nil, fail(err)
		}
		var start int64
		a.Blocks, nodes, start, err = readFS(r, &a.Header, p.maxSize)
		if err != nil {
			return nil, fail(err)
		}
		blockErrs, err := p.decompressBlocks(a, data, start)
		if err != nil {
			return nil, fail(err)
		}
		if err := a.mapEntries(nodes, blockErrs); err != nil {
			return nil, fail(err)
		}

	default:
		if err := a.Validate(int64(len(data))); err != nil {
			return nil, fail(err)
		}
		a.blockData, nodes, err = readLegacy(r, &a.Header, p.maxSize)
		if err != nil {
			return nil, fail(err)
		}
		if err := a.mapEntries(nodes, nil); err != nil {
			return nil, fail(err)
		}
	}
	return a, nil
}

func readCommonHeader(r *stream.Reader, h *Header) error {
	var err error
	if h.Signature, err = r.StringToNull(); err != nil {
		return err
	}
	if h.Version, err = r.U32(); err != nil {
		return err
	}
	if h.UnityVersion, err = r.StringToNull(); err != nil {
		return err
	}
	if h.UnityRevision, err = r.StringToNull(); err != nil {
		return err
	}
	return nil
}

// decompressBlocks inflates every data block into a.blockData. Each worker
// writes a disjoint range of the output and its own error slot. Block
// failures are returned per block so only entries touching a bad block fail.
func (p *parser) decompressBlocks(a *Archive, data []byte, start int64) ([]error, error) {
	type span struct{ src, dst int64 }
	spans := make([]span, len(a.Blocks))

	src, dst := start, int64(0)
	for i, b := range a.Blocks {
		if err := codec.CheckSize(b.Codec(), int64(b.CompressedSize), int64(b.UncompressedSize)); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		spans[i] = span{src: src, dst: dst}
		src += int64(b.CompressedSize)
		dst += int64(b.UncompressedSize)
	}
	if src > int64(len(data)) {
		return nil, stream.Truncated(start, int(src-start), len(data)-int(start))
	}
	if dst > p.maxSize {
		return nil, fmt.Errorf("%w: blocks decompress to %d bytes, limit %d", stream.ErrMalformedHeader, dst, p.maxSize)
	}

	a.blockData = make([]byte, dst)
	errs := make([]error, len(a.Blocks))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, b := range a.Blocks {
		s := spans[i]
		g.Go(func() error {
			in := data[s.src : s.src+int64(b.CompressedSize)]
			out := a.blockData[s.dst : s.dst+int64(b.UncompressedSize)]
			if err := codec.DecompressInto(b.Codec(), out, in); err != nil {
				errs[i] = &stream.Error{Op: "decompress block", Entry: a.Name, Offset: s.src, Err: err}
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			p.logger.Warn("block failed", "entry", a.Name, "block", i, "codec", a.Blocks[i].Codec().String(), "error", err)
		}
	}
	p.logger.Debug("decompressed blocks", "entry", a.Name, "blocks", len(a.Blocks), "failed", failed, "bytes", dst)
	return errs, nil
}

// mapEntries turns directory nodes into entries over a.blockData.
func (a *Archive) mapEntries(nodes []node, blockErrs []error) error {
	total := int64(len(a.blockData))
	a.entries = make([]*Entry, 0, len(nodes))
	a.byPath = make(map[string]*Entry, len(nodes))
	a.byName = make(map[string]*Entry, len(nodes))

	for _, n := range nodes {
		if n.offset < 0 || n.size < 0 || n.offset+n.size > total {
			return fmt.Errorf("%w: entry %q spans [%d,%d) of %d bytes", stream.ErrMalformedHeader, n.path, n.offset, n.offset+n.size, total)
		}
		e := &Entry{
			Path:   n.path,
			Offset: n.offset,
			Size:   n.size,
			Flags:  n.flags,
			data:   a.blockData[n.offset : n.offset+n.size : n.offset+n.size],
		}
		e.err = a.blockError(e, blockErrs)
		a.entries = append(a.entries, e)
		a.byPath[e.Path] = e
		if _, dup := a.byName[e.Name()]; !dup {
			a.byName[e.Name()] = e
		}
	}
	return nil
}

// blockError returns the first failure among the blocks backing e.
func (a *Archive) blockError(e *Entry, blockErrs []error) error {
	if blockErrs == nil {
		return nil
	}
	var off int64
	for i, b := range a.Blocks {
		end := off + int64(b.UncompressedSize)
		if blockErrs[i] != nil && off < e.Offset+e.Size && end > e.Offset {
			return blockErrs[i]
		}
		off = end
	}
	return nil
}

// Entries returns the entries in directory order.
func (a *Archive) Entries() []*Entry { return a.entries }

// Entry finds an entry by exact path, falling back to a case-insensitive
// base-name match.
func (a *Archive) Entry(name string) (*Entry, bool) {
	if e, ok := a.byPath[name]; ok {
		return e, true
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	e, ok := a.byName[base]
	return e, ok
}

// ErrEntryNotFound is returned by Open for names not in the directory.
var ErrEntryNotFound = errors.New("entry not found")

// Open returns a reader over an entry's bytes.
func (a *Archive) Open(name string) (io.ReadSeeker, error) {
	e, ok := a.Entry(name)
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrEntryNotFound)
	}
	data, err := e.Data()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return bytes.NewReader(data), nil
}
