package serialized

import (
	"encoding/binary"
	"fmt"

	"github.com/EchoTools/hhhFileTools/pkg/stream"
)

// Format versions that change the file layout.
const (
	VersionUnknown5         = 5
	VersionUnknown6         = 6
	VersionUnknown7         = 7
	VersionUnknown8         = 8
	VersionUnknown9         = 9
	VersionHasScriptTypes   = 11
	VersionHasTypeTreeHash  = 13
	VersionUnknown14        = 14
	VersionHasStripped      = 15
	VersionRefactoredClass  = 16
	VersionRefactorTypeData = 17
	VersionRefObjects       = 20
	VersionTypeDependencies = 21
	VersionLargeFiles       = 22

	// MaxVersion bounds the header sniff; later formats have not been seen.
	MaxVersion = 50
)

// HeaderSize is the size of the fixed header before format version 22.
const HeaderSize = 20

// Header is the fixed-size preamble of a serialized file.
type Header struct {
	MetadataSize uint32
	FileSize     int64
	Version      uint32
	DataOffset   int64
	BigEndian    bool
}

// Order returns the byte order of the metadata and object data.
func (h Header) Order() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Validate checks the header against the size of the backing bytes.
func (h Header) Validate(size int64) error {
	switch {
	case h.Version == 0 || h.Version > MaxVersion:
		return fmt.Errorf("%w: serialized file version %d", stream.ErrMalformedHeader, h.Version)
	case h.FileSize > size:
		return fmt.Errorf("%w: declared file size %d exceeds %d bytes", stream.ErrMalformedHeader, h.FileSize, size)
	case h.DataOffset < 0 || h.DataOffset > h.FileSize:
		return fmt.Errorf("%w: data offset %d outside file of %d bytes", stream.ErrMalformedHeader, h.DataOffset, h.FileSize)
	case int64(h.MetadataSize) > h.FileSize:
		return fmt.Errorf("%w: metadata size %d exceeds file size %d", stream.ErrMalformedHeader, h.MetadataSize, h.FileSize)
	}
	return nil
}

// readHeader reads the header and leaves r positioned at the metadata in the
// file's byte order.
func readHeader(r *stream.Reader) (Header, error) {
	var h Header
	r.SetOrder(binary.BigEndian)

	metadataSize, err := r.U32()
	if err != nil {
		return h, err
	}
	fileSize, err := r.U32()
	if err != nil {
		return h, err
	}
	if h.Version, err = r.U32(); err != nil {
		return h, err
	}
	dataOffset, err := r.U32()
	if err != nil {
		return h, err
	}
	h.MetadataSize = metadataSize
	h.FileSize = int64(fileSize)
	h.DataOffset = int64(dataOffset)

	var endian uint8
	if h.Version >= VersionUnknown9 {
		if endian, err = r.U8(); err != nil {
			return h, err
		}
		if err = r.Skip(3); err != nil {
			return h, err
		}
	} else {
		// Old files keep the metadata at the tail.
		if err = r.Seek(h.FileSize - int64(h.MetadataSize)); err != nil {
			return h, err
		}
		if endian, err = r.U8(); err != nil {
			return h, err
		}
	}

	if h.Version >= VersionLargeFiles {
		if h.MetadataSize, err = r.U32(); err != nil {
			return h, err
		}
		if h.FileSize, err = r.I64(); err != nil {
			return h, err
		}
		if h.DataOffset, err = r.I64(); err != nil {
			return h, err
		}
		if _, err = r.I64(); err != nil {
			return h, err
		}
	}

	h.BigEndian = endian != 0
	r.SetOrder(h.Order())
	return h, nil
}

// IsSerializedFile reports whether data starts with a plausible serialized
// file header whose declared size matches len(data).
func IsSerializedFile(data []byte) bool {
	if len(data) < HeaderSize {
		return false
	}
	h, err := readHeader(stream.NewReader(data, binary.BigEndian))
	if err != nil {
		return false
	}
	if h.Version == 0 || h.Version > MaxVersion {
		return false
	}
	return h.FileSize == int64(len(data)) && h.DataOffset <= h.FileSize
}
