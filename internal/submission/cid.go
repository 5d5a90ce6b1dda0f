package submission

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// ValidateCID parses s as a CIDv0 or CIDv1 string, returning an error if it
// is not well-formed. Used before writing a report CID on-chain so a
// malformed upload response never reaches the reputation registry.
func ValidateCID(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return fmt.Errorf("submission: invalid cid %q: %w", s, err)
	}
	return nil
}
