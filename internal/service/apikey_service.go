package service

import (
	"context"

	"github.com/ntarasov/postwave/internal/apperr"
	"github.com/ntarasov/postwave/internal/models"
	"github.com/ntarasov/postwave/internal/repository"
	"github.com/ntarasov/postwave/pkg/utils"
)

const maxApiKeysPerUser = 5

type ApiKeyService interface {
	Create(ctx context.Context, userID int64, keyName string) error
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID int64, keyName string) error {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if len(keys) >= maxApiKeysPerUser {
		return apperr.Validation("API key limit reached")
	}

	key, err := utils.GenerateRandomKey(16)
	if err != nil {
		return err
	}

	apiKey := &models.ApiKey{
		UserID:  userID,
		KeyName: keyName,
		ApiKey:  key,
	}

	if _, err = s.k.Create(ctx, apiKey); err != nil {
		return err
	}
	return nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, isExist, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}

	if !isExist {
		return 0, apperr.NotFound("API key doesn't exist")
	}

	return *userID, nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	return s.k.GetByUserID(ctx, userID)
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	if userID == 0 || keyID == 0 {
		return apperr.Validation("user id and key id are required")
	}

	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		return apperr.NotFound("API key doesn't exist")
	}

	return s.k.Remove(ctx, keyID)
}
