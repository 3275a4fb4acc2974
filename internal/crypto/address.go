package crypto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// NormalizeAddress validates a hex wallet address and returns its EIP-55
// checksummed form. Two spellings of the same address normalise to the same
// string, so it is safe to use as a position key.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("crypto: invalid address %q", addr)
	}
	a := common.HexToAddress(addr)
	if a == (common.Address{}) {
		return "", fmt.Errorf("crypto: zero address")
	}
	return a.Hex(), nil
}

// ResolutionDigest returns a keccak256 commitment over the facts that decide a
// market: id, oracle price, confidence and quote time. The same inputs always
// produce the same digest.
func ResolutionDigest(marketID, price int64, confidence int, quotedAt time.Time) string {
	msg := strings.Join([]string{
		strconv.FormatInt(marketID, 10),
		strconv.FormatInt(price, 10),
		strconv.Itoa(confidence),
		strconv.FormatInt(quotedAt.UTC().UnixNano(), 10),
	}, ":")
	return common.BytesToHash(ethcrypto.Keccak256([]byte(msg))).Hex()
}
