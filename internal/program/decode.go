package program

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed workspace.schema.json
var workspaceSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func workspaceSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("workspace.schema.json", workspaceSchemaJSON)
	})
	return schema, schemaErr
}

type workspaceJSON struct {
	Blocks *struct {
		LanguageVersion int         `json:"languageVersion"`
		Blocks          []blockJSON `json:"blocks"`
	} `json:"blocks,omitempty"`
	Variables []Variable `json:"variables,omitempty"`
}

type blockJSON struct {
	Type            string                    `json:"type"`
	ID              string                    `json:"id,omitempty"`
	X               float64                   `json:"x,omitempty"`
	Y               float64                   `json:"y,omitempty"`
	Enabled         *bool                     `json:"enabled,omitempty"`
	DisabledReasons []string                  `json:"disabledReasons,omitempty"`
	Fields          map[string]FieldValue     `json:"fields,omitempty"`
	Inputs          map[string]connectionJSON `json:"inputs,omitempty"`
	Next            *connectionJSON           `json:"next,omitempty"`
	ExtraState      json.RawMessage           `json:"extraState,omitempty"`
}

type connectionJSON struct {
	Block  *blockJSON `json:"block,omitempty"`
	Shadow *blockJSON `json:"shadow,omitempty"`
}

// Decode parses the editor's JSON workspace serialization. An empty body
// or "{}" is the empty program.
func Decode(raw []byte) (*Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Empty(), nil
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWorkspace, err)
	}
	s, err := workspaceSchema()
	if err != nil {
		return nil, fmt.Errorf("compile workspace schema: %w", err)
	}
	if err := s.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWorkspace, err)
	}

	var ws workspaceJSON
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadWorkspace, err)
	}
	var top []*Block
	if ws.Blocks != nil {
		for i := range ws.Blocks.Blocks {
			top = append(top, ws.Blocks.Blocks[i].toBlock())
		}
	}
	return New(top, ws.Variables)
}

func (j *blockJSON) toBlock() *Block {
	if j == nil {
		return nil
	}
	b := &Block{
		Type:       j.Type,
		ID:         j.ID,
		X:          j.X,
		Y:          j.Y,
		Enabled:    (j.Enabled == nil || *j.Enabled) && len(j.DisabledReasons) == 0,
		Fields:     j.Fields,
		ExtraState: j.ExtraState,
	}
	if b.Fields == nil {
		b.Fields = map[string]FieldValue{}
	}
	if len(j.Inputs) > 0 {
		b.Inputs = make(map[string]*Block, len(j.Inputs))
		for name, c := range j.Inputs {
			if child := c.target(); child != nil {
				b.Inputs[name] = child
			}
		}
	}
	if j.Next != nil {
		b.Next = j.Next.target()
	}
	return b
}

// target prefers the real block over its shadow, as generation does.
func (c connectionJSON) target() *Block {
	if c.Block != nil {
		return c.Block.toBlock()
	}
	return c.Shadow.toBlock()
}
