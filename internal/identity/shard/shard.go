// Package shard turns a plaintext identifier into its hashed and
// encryption-ready forms. Identifiers are partitioned across a fixed set of
// salt shards so a single salt compromise never exposes the whole registry.
package shard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"idregistry/internal/security"
	pkgerrors "idregistry/pkg/errors"
	"idregistry/pkg/platform/sentinel"
)

// Separator joins the shard prefix, identifier and salt inside the hashed
// and encryption-composite forms.
const Separator = "_"

// SaltPurpose selects which of the shard's two salts to fetch.
type SaltPurpose string

const (
	PurposeHash    SaltPurpose = "hash"
	PurposeEncrypt SaltPurpose = "encrypt"
)

// SaltStore looks up provisioned shard salts. Entries are provisioned out
// of band and read-only to this engine.
type SaltStore interface {
	SaltFor(ctx context.Context, shard int64, purpose SaltPurpose) (string, error)
}

// Address is the derived addressing of one identifier.
type Address struct {
	Shard int64
	// Hashed is the shard-prefixed salted hash ("{shard}_{digest}"). The
	// prefix makes the hash self-describing for salt lookup during
	// verification.
	Hashed string
	// HashOnly is the digest without the shard prefix; it keys blob
	// namespaces.
	HashOnly string
	// EncryptionComposite is "{shard}_{identifier}_{encryptSalt}", handed
	// to the record store's field-level encryption. Never persisted as-is.
	EncryptionComposite string
}

// Addresser computes shard addresses. Pure apart from the salt lookup.
type Addresser struct {
	modulus int64
	salts   SaltStore
	hasher  security.Hasher
}

func NewAddresser(modulus int64, salts SaltStore, hasher security.Hasher) *Addresser {
	return &Addresser{modulus: modulus, salts: salts, hasher: hasher}
}

// Address derives the shard index, hashed identifier, and encryption
// composite for a plaintext identifier.
func (a *Addresser) Address(ctx context.Context, identifier string) (Address, error) {
	n, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return Address{}, pkgerrors.New(pkgerrors.CodeInvalidInput, "identifier is not a valid integer string")
	}
	shardIdx := n % a.modulus

	hashSalt, err := a.salts.SaltFor(ctx, shardIdx, PurposeHash)
	if err != nil {
		return Address{}, saltErr(shardIdx, PurposeHash, err)
	}
	encryptSalt, err := a.salts.SaltFor(ctx, shardIdx, PurposeEncrypt)
	if err != nil {
		return Address{}, saltErr(shardIdx, PurposeEncrypt, err)
	}

	digest := a.hasher.SaltedHash([]byte(identifier), []byte(hashSalt))
	prefix := strconv.FormatInt(shardIdx, 10)
	return Address{
		Shard:               shardIdx,
		Hashed:              prefix + Separator + digest,
		HashOnly:            digest,
		EncryptionComposite: prefix + Separator + identifier + Separator + encryptSalt,
	}, nil
}

func saltErr(shard int64, purpose SaltPurpose, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeSaltNotFound,
			fmt.Sprintf("no %s salt provisioned for shard %d", purpose, shard))
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, "salt lookup failed", err)
}
