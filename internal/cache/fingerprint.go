package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fastpdi/dpp/internal/domain"
)

// fingerprintLen is the number of hex characters kept from the digest.
// 16 chars (64 bits) is plenty for a per-run artifact namespace while
// keeping paths readable.
const fingerprintLen = 16

// Identity derives the stable identity of a raw observation from its base
// name, parsed header, and size. It seeds the per-stage fingerprint chain.
func Identity(name string, header domain.Header, size int64) string {
	h := sha256.New()
	hb, _ := json.Marshal(header)
	fmt.Fprintf(h, "%s\x00%d\x00", name, size)
	h.Write(hb)
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// Next chains the fingerprint through one stage: the output fingerprint is a
// digest of the input fingerprint, the stage name, and the serialized stage
// configuration. Changing a stage's configuration therefore changes its
// fingerprint and, transitively, every downstream fingerprint, which is
// exactly the invalidation rule the resumability layer needs.
func Next(input string, stage domain.StageName, configFingerprint string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", input, stage, configFingerprint)
	return hex.EncodeToString(h.Sum(nil))[:fingerprintLen]
}

// ConfigFingerprint digests a serialized stage configuration.
func ConfigFingerprint(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}
