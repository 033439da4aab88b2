package app

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"lockstep/client/internal/session"
)

type contentKey struct {
	id  uint32
	md5 [16]byte
}

// contentCatalog is the set of add-ons the operator declared as installed.
type contentCatalog map[contentKey]struct{}

// parseCatalog reads "grfid:md5" entries, both in hex.
func parseCatalog(entries []string) (contentCatalog, error) {
	catalog := make(contentCatalog, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		rawID, rawSum, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("content %q: want grfid:md5", entry)
		}
		id, err := strconv.ParseUint(rawID, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("content %q: bad grfid: %w", entry, err)
		}
		sum, err := hex.DecodeString(rawSum)
		if err != nil || len(sum) != 16 {
			return nil, fmt.Errorf("content %q: md5 must be 32 hex characters", entry)
		}
		var key contentKey
		key.id = uint32(id)
		copy(key.md5[:], sum)
		catalog[key] = struct{}{}
	}
	return catalog, nil
}

func (c contentCatalog) Has(id uint32, md5 [16]byte) bool {
	_, ok := c[contentKey{id: id, md5: md5}]
	return ok
}

var _ session.ContentCatalog = contentCatalog(nil)
