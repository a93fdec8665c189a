package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/privacy"
)

// ErrUnavailable marks store or encryption failures during vault
// operations. Callers may retry the whole request.
var ErrUnavailable = errors.New("pseudonym vault unavailable")

// ErrMappingNotFound is returned by Reveal for an unknown mapping key.
var ErrMappingNotFound = errors.New("pseudonym mapping not found")

// Mapping is one persistent pseudonym escrow row. Rows are immutable after
// creation; deletion is the only lifecycle event.
type Mapping struct {
	TenantID          string       `db:"tenant_id" json:"tenant_id"`
	OriginalHash      string       `db:"original_hash" json:"original_hash"`
	Pseudonym         string       `db:"pseudonym" json:"pseudonym"`
	Kind              privacy.Kind `db:"pii_kind" json:"pii_kind"`
	EncryptedOriginal string       `db:"encrypted_original" json:"-"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
}

// Store is the durable backend for mappings. GetMapping returns (nil, nil)
// when no row exists. InsertMapping reports false without error when a
// concurrent writer already created the row (uniqueness conflict).
type Store interface {
	GetMapping(ctx context.Context, tenantID, originalHash string) (*Mapping, error)
	InsertMapping(ctx context.Context, m *Mapping) (bool, error)
	DeleteMapping(ctx context.Context, tenantID, originalHash string) (bool, error)
}

// Cache is an optional read-through cache in front of the store. Failures
// are advisory; the vault never fails a call because of the cache.
type Cache interface {
	GetPseudonym(ctx context.Context, tenantID, originalHash string) (string, bool)
	SetPseudonym(ctx context.Context, tenantID, originalHash, pseudonym string)
	DeletePseudonym(ctx context.Context, tenantID, originalHash string)
}

// Vault provides tenant-scoped get-or-create pseudonym assignment with
// encrypted escrow of the original value.
type Vault struct {
	store  Store
	cache  Cache
	keys   KeyProvider
	logger *logger.Logger
}

// New creates a vault. cache may be nil.
func New(store Store, cache Cache, keys KeyProvider, log *logger.Logger) *Vault {
	return &Vault{
		store:  store,
		cache:  cache,
		keys:   keys,
		logger: log,
	}
}

// GetOrCreate returns the stable pseudonym for an original value within a
// tenant, creating the mapping row on first occurrence. Concurrent first
// creation is resolved by the store's uniqueness constraint: on conflict
// the pre-existing row is re-read and its pseudonym is authoritative.
func (v *Vault) GetOrCreate(ctx context.Context, tenantID, original string, kind privacy.Kind) (string, error) {
	hash := OriginalHash(tenantID, original)

	if v.cache != nil {
		if pseudonym, ok := v.cache.GetPseudonym(ctx, tenantID, hash); ok {
			return pseudonym, nil
		}
	}

	existing, err := v.store.GetMapping(ctx, tenantID, hash)
	if err != nil {
		return "", fmt.Errorf("%w: lookup failed: %v", ErrUnavailable, err)
	}
	if existing != nil {
		v.cacheSet(ctx, tenantID, hash, existing.Pseudonym)
		return existing.Pseudonym, nil
	}

	pseudonym := Pseudonym(original, kind)

	key, err := v.keys.Key(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: resolving key: %v", ErrUnavailable, err)
	}
	encrypted, err := encryptValue(key, original)
	if err != nil {
		return "", fmt.Errorf("%w: encrypting original: %v", ErrUnavailable, err)
	}

	inserted, err := v.store.InsertMapping(ctx, &Mapping{
		TenantID:          tenantID,
		OriginalHash:      hash,
		Pseudonym:         pseudonym,
		Kind:              kind,
		EncryptedOriginal: encrypted,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert failed: %v", ErrUnavailable, err)
	}

	if !inserted {
		// Lost the creation race; the first writer's row wins.
		winner, err := v.store.GetMapping(ctx, tenantID, hash)
		if err != nil {
			return "", fmt.Errorf("%w: re-read after conflict failed: %v", ErrUnavailable, err)
		}
		if winner == nil {
			return "", fmt.Errorf("%w: mapping vanished after insert conflict", ErrUnavailable)
		}
		pseudonym = winner.Pseudonym
	} else {
		v.logger.Debug("Pseudonym mapping created",
			zap.String("tenant_id", tenantID),
			zap.String("pii_kind", string(kind)),
		)
	}

	v.cacheSet(ctx, tenantID, hash, pseudonym)
	return pseudonym, nil
}

// Lookup returns the mapping for a tenant-scoped hash, or
// ErrMappingNotFound.
func (v *Vault) Lookup(ctx context.Context, tenantID, originalHash string) (*Mapping, error) {
	m, err := v.store.GetMapping(ctx, tenantID, originalHash)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup failed: %v", ErrUnavailable, err)
	}
	if m == nil {
		return nil, ErrMappingNotFound
	}
	return m, nil
}

// Reveal decrypts the escrowed original value of a mapping.
func (v *Vault) Reveal(ctx context.Context, tenantID, originalHash string) (string, error) {
	m, err := v.Lookup(ctx, tenantID, originalHash)
	if err != nil {
		return "", err
	}

	key, err := v.keys.Key(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: resolving key: %v", ErrUnavailable, err)
	}

	original, err := decryptValue(key, m.EncryptedOriginal)
	if err != nil {
		return "", fmt.Errorf("decrypting escrow for %s: %w", originalHash[:8], err)
	}
	return original, nil
}

// Delete removes a mapping row, the erasure primitive for external
// right-to-erasure processes. Returns ErrMappingNotFound when no row
// existed.
func (v *Vault) Delete(ctx context.Context, tenantID, originalHash string) error {
	deleted, err := v.store.DeleteMapping(ctx, tenantID, originalHash)
	if err != nil {
		return fmt.Errorf("%w: delete failed: %v", ErrUnavailable, err)
	}
	if !deleted {
		return ErrMappingNotFound
	}

	if v.cache != nil {
		v.cache.DeletePseudonym(ctx, tenantID, originalHash)
	}

	v.logger.Info("Pseudonym mapping deleted",
		zap.String("tenant_id", tenantID),
		zap.String("original_hash", originalHash[:8]),
	)
	return nil
}

func (v *Vault) cacheSet(ctx context.Context, tenantID, hash, pseudonym string) {
	if v.cache != nil {
		v.cache.SetPseudonym(ctx, tenantID, hash, pseudonym)
	}
}
