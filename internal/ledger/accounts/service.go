package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Service manages the chart of accounts. The posting engine never writes
// here; accounts are reference data created by administration.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput carries fields for a new account.
type CreateInput struct {
	Code          string
	Name          string
	StatementType StatementType
	IsLeaf        bool
	ParentCode    *string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return Account{}, shared.E(shared.KindInvalidInput, "account code and name are required")
	}
	if !in.StatementType.Valid() {
		return Account{}, shared.E(shared.KindInvalidInput, "unknown statement type %q", in.StatementType)
	}
	if in.ParentCode != nil {
		if _, err := s.repo.GetByCode(ctx, *in.ParentCode); err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return Account{}, shared.E(shared.KindInvalidInput, "parent account %s does not exist", *in.ParentCode)
			}
			return Account{}, err
		}
	}
	return s.repo.Insert(ctx, Account{
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		StatementType: in.StatementType,
		IsLeaf:        in.IsLeaf,
		ParentCode:    in.ParentCode,
	})
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Lookup adapts the repository to the read-only view the validator consumes.
type Lookup struct {
	repo Repository
}

func NewLookup(repo Repository) *Lookup {
	return &Lookup{repo: repo}
}

func (l *Lookup) Exists(ctx context.Context, code string) (bool, error) {
	_, err := l.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Lookup) IsLeaf(ctx context.Context, code string) (bool, error) {
	a, err := l.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.IsLeaf, nil
}

func (l *Lookup) StatementType(ctx context.Context, code string) (StatementType, error) {
	a, err := l.repo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}
	return a.StatementType, nil
}
