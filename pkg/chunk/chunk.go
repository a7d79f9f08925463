package chunk

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Key is a chunk's stable, content-addressed identity: a hash of its
// operator's key, its input keys (in order), and its output index.
type Key string

// Chunk is one partition's output of a tiled operator — the analyzer's
// atomic unit.
type Chunk struct {
	Key Key
	Op  Operand
	// Inputs are the chunks this chunk's operator consumes, in order.
	Inputs []*Chunk
	// OutputIndex is this chunk's position among its op's outputs.
	OutputIndex int
	// Params is opaque shape/index metadata the core never interprets.
	Params map[string]any
	// ExtraParams carries analyzer-stamped metadata, e.g.
	// "analyzer_map_reduce_id".
	ExtraParams map[string]any
}

// NewKey computes the content-addressed key for a chunk from its operator
// key, ordered input keys and output index, encoded as a CIDv1 over a
// sha2-256 digest (grounded on ipfs/go-cid + multiformats/go-multihash).
func NewKey(opKey string, inputKeys []Key, outputIndex int) (Key, error) {
	payload := struct {
		Op      string `json:"op"`
		Inputs  []Key  `json:"inputs"`
		OutIdx  int    `json:"out_idx"`
	}{Op: opKey, Inputs: inputKeys, OutIdx: outputIndex}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("chunk: marshal key payload: %w", err)
	}
	sum := sha256.Sum256(b)
	digest, err := mh.Encode(sum[:], mh.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("chunk: encode multihash: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, digest)
	return Key(c.String()), nil
}

// New builds a Chunk, deriving its key from op + inputs + outputIndex.
func New(op Operand, inputs []*Chunk, outputIndex int, params map[string]any) (*Chunk, error) {
	inputKeys := make([]Key, len(inputs))
	for i, in := range inputs {
		inputKeys[i] = in.Key
	}
	key, err := NewKey(op.Key(), inputKeys, outputIndex)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		Key:         key,
		Op:          op,
		Inputs:      inputs,
		OutputIndex: outputIndex,
		Params:      params,
	}, nil
}

// WithKey forces a specific key, used when copying a chunk's operator into a
// subtask's inner graph (the copy must preserve the original key).
func (c *Chunk) WithKey(k Key) *Chunk {
	cp := *c
	cp.Key = k
	return &cp
}

// SetExtraParam stamps an analyzer-computed annotation onto the chunk,
// e.g. "analyzer_map_reduce_id".
func (c *Chunk) SetExtraParam(name string, value any) {
	if c.ExtraParams == nil {
		c.ExtraParams = make(map[string]any)
	}
	c.ExtraParams[name] = value
}

func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk(%s, op=%s)", c.Key, c.Op.Key())
}
