package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xorbits-io/xorbits/pkg/chunk"
)

// logicKey hashes the ordered operator keys of a color class's chunks,
// mirroring LogicKeyGenerator.get_logic_key + tokenize in the original:
// subtasks sharing a logic key are parallel shards of the same logical
// operation.
func logicKey(chunks []*chunk.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Op.Key()
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
