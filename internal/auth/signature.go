package auth

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	noncePattern   = regexp.MustCompile(`Nonce:\s*([a-fA-F0-9]+)`)
)

// ValidateAddress reports whether s looks like an Ethereum address
// (0x followed by 40 hex characters).
func ValidateAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// NormalizeAddress lowercases a valid Ethereum address. Returns
// ErrValidation for anything that is not 0x + 40 hex chars.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !ValidateAddress(s) {
		return "", fmt.Errorf("%w: invalid Ethereum wallet address format", ErrValidation)
	}
	return strings.ToLower(s), nil
}

// AuthMessage builds the deterministic wallet challenge message. The format
// must stay stable: the nonce is extracted back out of the signed message by
// ExtractNonce on the login call.
func AuthMessage(address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"BountyGo wants you to sign in with your Ethereum account.\n\n"+
			"Wallet: %s\n"+
			"Nonce: %s\n"+
			"Issued At: %s\n\n"+
			"Signing is free and will not trigger a blockchain transaction or cost any gas.",
		address, nonce, issuedAt.UTC().Format(time.RFC3339),
	)
}

// ExtractNonce pulls the hex nonce out of a challenge message. Returns ""
// when the message does not carry a labeled nonce field.
func ExtractNonce(message string) string {
	m := noncePattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}

// personalHash applies the personal-message signing transform:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func personalHash(message string) []byte {
	data := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(data))
}

// VerifySignature recovers the signer of a personal-sign signature over
// message and compares it, case-insensitively, to address. A mismatched
// signer is a normal (false, nil); malformed address or signature is
// exceptional and returns ErrAuthentication.
func VerifySignature(address, signature, message string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, fmt.Errorf("%w: invalid wallet address", ErrAuthentication)
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return false, err
	}

	pubKey, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return false, fmt.Errorf("%w: signature recovery failed", ErrAuthentication)
	}

	recovered := strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex())
	return recovered == addr, nil
}

// decodeSignature parses a 65-byte hex signature and maps the legacy
// recovery id (27/28) down to 0/1 as expected by SigToPub.
func decodeSignature(signature string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimSpace(signature), "0x")
	sig, err := hex.DecodeString(s)
	if err != nil || len(sig) != 65 {
		return nil, fmt.Errorf("%w: malformed signature", ErrAuthentication)
	}
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("%w: malformed signature", ErrAuthentication)
	}
	return sig, nil
}
