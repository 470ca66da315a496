package structchunk

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by block name
	MTAttributes MetaType = ".sattrs"
	// MTBlock is the key for storing metadata of a block
	MTBlock MetaType = ".sblock"
	// MTGroup is the key for storing group definitions
	MTGroup MetaType = ".sgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".smetas"
)

// FormatVersion is the version of the block layout written by this
// package.
const FormatVersion = 1

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTBlock:      {},
	MTGroup:      {},
}

// relies on the fact that all keynames are 7 characters long
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	_, ok = metaTypes[mt]
	return mt, ok
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// ConsolidatedMetadata gathers every metadata document of a store under one
// key, so a whole benchmark output can be described with a single read.
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}

		switch kt {
		case MTBlock:
			blk := &BlockMeta{}
			if err := json.Unmarshal(data, blk); err != nil {
				return fmt.Errorf("reading %q metadata: %w", key, err)
			}
			cm.Metadata[key] = blk
		case MTAttributes:
			attr := Attributes{}
			if err := json.Unmarshal(data, &attr); err != nil {
				return fmt.Errorf("reading %q attributes: %w", key, err)
			}
			cm.Metadata[key] = attr
		case MTGroup:
			grp := &Group{}
			if err := json.Unmarshal(data, grp); err != nil {
				return fmt.Errorf("reading %q group: %w", key, err)
			}
			cm.Metadata[key] = grp
		}
	}

	*m = cm
	return nil
}

// Blocks returns the block metadata entries keyed by block path.
func (m *ConsolidatedMetadata) Blocks() map[string]*BlockMeta {
	out := map[string]*BlockMeta{}
	for key, v := range m.Metadata {
		if blk, ok := v.(*BlockMeta); ok {
			out[strings.TrimSuffix(strings.TrimSuffix(key, string(MTBlock)), "/")] = blk
		}
	}
	return out
}

// BlockMeta is the configuration metadata every block requires for its
// stored bytes to be interpreted. It is encoded using JSON and stored as
// the value of the ".sblock" key under the block's path.
type BlockMeta struct {
	// Version of the block layout.
	Format int `json:"format"`
	// Length of each dimension of the block.
	Shape Extent `json:"shape"`
	// Length of each dimension of a chunk of the block.
	Chunks Extent `json:"chunks"`
	// Element type. Variable-length blocks store their elements
	// back to back and must be written whole.
	Dtype Dtype `json:"dtype"`
	// Generic compressor applied to each stored chunk, or null.
	Compressor *CompressionMeta `json:"compressor"`
	// Value of unwritten elements, base64 encoded. Empty means zero bytes.
	FillValue string `json:"fill_value,omitempty"`
	// Always "C": row-major, the last dimension varies fastest.
	Order string `json:"order"`
}

func (m BlockMeta) MetaType() MetaType { return MTBlock }

// Fill decodes the fill value. A nil result means zero bytes.
func (m *BlockMeta) Fill() ([]byte, error) {
	if m.FillValue == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(m.FillValue)
}

// Groups organize blocks. A group exists at logical path "percent_1" if the
// "percent_1/.sgroup" key exists in the store.
type Group struct {
	Format int `json:"format"`
}

func (g Group) MetaType() MetaType { return MTGroup }
