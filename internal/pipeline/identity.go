package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bidintake/internal"
	"bidintake/internal/storage"
	"bidintake/internal/util"
)

type ContractorStore interface {
	FindContractorByEmail(ctx context.Context, email string) (*internal.Contractor, error)
	CreateContractor(ctx context.Context, c internal.Contractor) (internal.Contractor, error)
}

// IdentityResolver maps a sender address to exactly one contractor,
// creating a placeholder account on first contact.
type IdentityResolver struct {
	store  ContractorStore
	role   internal.Role
	logger *zap.Logger
}

func NewIdentityResolver(store ContractorStore, role internal.Role, logger *zap.Logger) *IdentityResolver {
	if role == "" {
		role = internal.RoleUser
	}
	return &IdentityResolver{store: store, role: role, logger: logger.Named("identity")}
}

func (r *IdentityResolver) Resolve(ctx context.Context, address, nameHint string) (internal.Contractor, error) {
	email := util.NormalizeEmail(address)
	if email == "" {
		return internal.Contractor{}, errors.New("resolve contractor: empty address")
	}

	existing, err := r.store.FindContractorByEmail(ctx, email)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return internal.Contractor{}, err
	}

	credential, err := placeholderCredential()
	if err != nil {
		return internal.Contractor{}, err
	}
	created, err := r.store.CreateContractor(ctx, internal.Contractor{
		Email:       email,
		DisplayName: util.FirstNonEmpty(nameHint, util.DisplayNameFromAddress(email), email),
		Role:        r.role,
		Credential:  credential,
	})
	if err != nil {
		return internal.Contractor{}, err
	}
	r.logger.Info("contractor created", zap.String("email", email), zap.String("contractor_id", created.ID))
	return created, nil
}

// placeholderCredential hashes a random secret nobody knows, so the account
// exists but cannot be logged into until a reset.
func placeholderCredential() (string, error) {
	secret := make([]byte, 18)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generating placeholder credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing placeholder credential: %w", err)
	}
	return string(hash), nil
}
