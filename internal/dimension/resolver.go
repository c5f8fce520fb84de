package dimension

import (
	"fmt"

	"github.com/tidemark-io/tidemark/internal/shared"
)

// MaxChainDepth caps the master-pointer walk. Flatten-on-write keeps real
// chains at depth one; the cap only matters when the stored data is corrupt.
const MaxChainDepth = 16

// MasterLookup returns the master pointer for an entity, nil for roots.
// The second return is false when the entity does not exist.
type MasterLookup func(id int64) (*int64, bool, error)

// ResolveChain walks master pointers from id to the canonical root. A cycle
// or a walk past MaxChainDepth fails closed with shared.ErrResolution rather
// than returning a wrong canonical id.
func ResolveChain(id int64, lookup MasterLookup) (int64, error) {
	path, err := ResolvePath(id, lookup)
	if err != nil {
		return 0, err
	}
	return path[len(path)-1], nil
}

// ResolvePath returns every id on the merge chain from id to its root,
// inclusive, under the same cycle and depth guards as ResolveChain. The
// enrichment engine uses the full path to spot archived intermediate masters.
func ResolvePath(id int64, lookup MasterLookup) ([]int64, error) {
	visited := map[int64]struct{}{}
	path := make([]int64, 0, 2)
	current := id
	for depth := 0; depth <= MaxChainDepth; depth++ {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: cycle through entity %d", shared.ErrResolution, current)
		}
		visited[current] = struct{}{}
		path = append(path, current)

		master, ok, err := lookup(current)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: entity %d", shared.ErrNotFound, current)
		}
		if master == nil {
			return path, nil
		}
		current = *master
	}
	return nil, fmt.Errorf("%w: chain from entity %d exceeds depth %d", shared.ErrResolution, id, MaxChainDepth)
}
