package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fiatmarket/ledger"
)

var (
	offerPrefix          = []byte("market/offer/")
	escrowPrefix         = []byte("market/escrow/")
	profilePrefix        = []byte("market/profile/")
	balancePrefix        = []byte("market/balance/")
	offerRegistryPrefix  = []byte("market/registry/offers/")
	escrowRegistryPrefix = []byte("market/registry/escrows/")

	offerRegistryOwnersKey  = objectKey([]byte("market/registry/offers/owners"), nil)
	escrowRegistryOwnersKey = objectKey([]byte("market/registry/escrows/owners"), nil)
)

func objectKey(prefix, suffix []byte) ledger.ObjectID {
	return ledger.ObjectID(ethcrypto.Keccak256Hash(prefix, suffix))
}

func offerKey(id [32]byte) ledger.ObjectID   { return objectKey(offerPrefix, id[:]) }
func escrowKey(id [32]byte) ledger.ObjectID  { return objectKey(escrowPrefix, id[:]) }
func profileKey(a [20]byte) ledger.ObjectID  { return objectKey(profilePrefix, a[:]) }
func balanceKey(a [20]byte) ledger.ObjectID  { return objectKey(balancePrefix, a[:]) }
func offerRegistryKey(a [20]byte) ledger.ObjectID {
	return objectKey(offerRegistryPrefix, a[:])
}
func escrowRegistryKey(a [20]byte) ledger.ObjectID {
	return objectKey(escrowRegistryPrefix, a[:])
}
