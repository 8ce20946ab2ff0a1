package tor

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/levelcrawl/internal/crawler"
)

// Onion address constants.
const (
	// OnionSuffix is the common suffix of onion hosts.
	OnionSuffix = ".onion"

	// onionV3Version is the version byte of v3 addresses.
	onionV3Version = 0x03
)

var (
	// onionV3Pattern matches a v3 onion host: 56 base32 characters.
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

	// onionV2Pattern matches a v2 onion host: 16 base32 characters.
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

	// checksumPrefix is the prefix of the v3 checksum input.
	checksumPrefix = []byte(".onion checksum")
)

// IsOnionHost reports whether host is in the .onion domain.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), OnionSuffix)
}

// OriginOf returns the host of address like crawler.HostOf, and in
// addition rejects .onion hosts that are not valid v3 addresses.
// Subdomains of an onion service ("www.<56 chars>.onion") share its origin.
func OriginOf(address string) (string, error) {
	host, err := crawler.HostOf(address)
	if err != nil {
		return "", err
	}
	host = strings.ToLower(host)
	if !IsOnionHost(host) {
		return host, nil
	}

	service := serviceName(host)
	if !IsValidV3Address(service) {
		if onionV2Pattern.MatchString(service) {
			return "", ErrV2AddressDeprecated
		}
		return "", ErrInvalidOnionAddress
	}
	return service, nil
}

// serviceName strips subdomains from an onion host.
func serviceName(host string) string {
	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	return labels[len(labels)-1] + OnionSuffix
}

// IsValidV3Address checks the format and the checksum of a v3 onion host.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// 32 bytes public key, 2 bytes checksum, 1 byte version.
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := v3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// V3AddressFromPublicKey computes the v3 onion host of an ed25519 public key.
func V3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}

	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], v3Checksum(pubkey, onionV3Version))
	data[34] = onionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix, nil
}

// v3Checksum is the first 2 bytes of SHA3-256(".onion checksum" || pubkey || version).
func v3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}
