package extract

import (
	"image"

	"github.com/EchoTools/hhhFileTools/pkg/material"
	"github.com/EchoTools/hhhFileTools/pkg/mesh"
	"github.com/EchoTools/hhhFileTools/pkg/typetree"
)

// Record is the outcome of decoding one object. A record whose Err is set
// carries only its identity; nothing after the failing stage is filled in.
type Record struct {
	File     string           `json:"file"`
	PathID   int64            `json:"path_id,string"`
	ClassID  int32            `json:"class_id"`
	Type     string           `json:"type"`
	Size     uint32           `json:"size"`
	Checksum uint64           `json:"checksum,string"` // xxhash64 of the raw object bytes
	Fields   *typetree.Struct `json:"fields,omitempty"`

	Geometry *mesh.Geometry `json:"geometry,omitempty"`
	Material *material.View `json:"material,omitempty"`
	Pixels   *image.NRGBA   `json:"-"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

func (r *Record) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// ArchiveInfo describes the container an extraction read from.
type ArchiveInfo struct {
	Signature     string `json:"signature"`
	Version       uint32 `json:"version"`
	UnityVersion  string `json:"unity_version"`
	UnityRevision string `json:"unity_revision"`
	Envelope      bool   `json:"envelope,omitempty"`
	Entries       int    `json:"entries"`
}

// FileInfo describes one serialized file.
type FileInfo struct {
	Name          string `json:"name"`
	UnityVersion  string `json:"unity_version"`
	Platform      int32  `json:"platform"`
	HeaderVersion uint32 `json:"header_version"`
	BigEndian     bool   `json:"big_endian"`
	Objects       int    `json:"objects"`
}

// Summary is the result of one extraction run. Records keep the order of
// the object index, file by file.
type Summary struct {
	Source  string         `json:"source"`
	Archive *ArchiveInfo   `json:"archive,omitempty"`
	Files   []FileInfo     `json:"files"`
	ByType  map[string]int `json:"by_type"`
	Failed  int            `json:"failed"`
	Records []Record       `json:"objects"`
}

func (s *Summary) tally() {
	s.ByType = make(map[string]int)
	s.Failed = 0
	for i := range s.Records {
		s.ByType[s.Records[i].Type]++
		if s.Records[i].Err != nil {
			s.Failed++
		}
	}
}
