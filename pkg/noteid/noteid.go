package noteid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh note id of the form sb-a7f3c2d: a "sb-" prefix and
// seven lowercase hex characters.
func New() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate note id: %w", err)
	}
	return "sb-" + hex.EncodeToString(buf)[:7], nil
}

// NewReceiptID returns a lexicographically sortable id for audit receipt
// records, so receipt lines within a daily file sort by creation time.
func NewReceiptID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.DefaultEntropy()).String()
}
