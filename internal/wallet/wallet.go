package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not belong to address")
	ErrInvalidTxHash     = errors.New("invalid transaction hash")
)

// NormalizeAddress validates a 0x address and returns it lower-cased, which is
// the form every address is stored and compared in.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return strings.ToLower(address), nil
}

// NormalizeTxHash validates a 32 byte 0x hash and lower-cases it.
func NormalizeTxHash(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidTxHash, hash)
	}
	return strings.ToLower(hash), nil
}

// OwnershipMessage is the text a receiver signs with personal_sign to prove
// control of the wallet they register.
func OwnershipMessage(userID int64, email string) string {
	return fmt.Sprintf("Verify wallet ownership for %s (user %d)", email, userID)
}

// RecoverAddress returns the signer of an EIP-191 personal message.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	// wallets return v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyOwnership checks that signature over message was produced by the key
// behind address and returns the normalised address.
func VerifyOwnership(address, message, signature string) (string, error) {
	normalized, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}
	signer, err := RecoverAddress(message, signature)
	if err != nil {
		return "", err
	}
	if strings.ToLower(signer.Hex()) != normalized {
		return "", ErrSignatureMismatch
	}
	return normalized, nil
}
