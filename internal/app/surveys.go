/**
 * @description
 * Survey catalog and assignment logic. Surveys flagged premium-only are hidden
 * from and rejected for non-premium accounts; completion credits the reward
 * through the repository's single-transaction earning path.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/Frankie466/frank-quiz/internal/domain"
)

// ErrPremiumRequired is returned when a non-premium account tries to take a
// premium-only survey.
var ErrPremiumRequired = errors.New("premium membership required for this survey")

// ListAvailableSurveys returns surveys the account can still take. Premium-only
// surveys are filtered out for non-premium accounts.
func (s *Service) ListAvailableSurveys(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Survey, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	surveys, err := s.repo.ListAvailableSurveys(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	if account.IsPremium {
		return surveys, nil
	}

	filtered := surveys[:0]
	for _, survey := range surveys {
		if !survey.IsPremiumOnly {
			filtered = append(filtered, survey)
		}
	}
	return filtered, nil
}

// StartSurvey opens an assignment for the account.
func (s *Service) StartSurvey(ctx context.Context, accountID, surveyID uuid.UUID) error {
	survey, err := s.repo.FindSurveyByID(ctx, surveyID)
	if err != nil {
		return err
	}
	if survey.IsPremiumOnly {
		account, err := s.repo.FindAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.IsPremium {
			return ErrPremiumRequired
		}
	}
	return s.repo.StartSurvey(ctx, accountID, surveyID)
}

// CompleteSurvey settles a started assignment and returns the reward credited.
func (s *Service) CompleteSurvey(ctx context.Context, accountID, surveyID uuid.UUID) (int64, error) {
	rewardCents, err := s.repo.CompleteSurvey(ctx, accountID, surveyID)
	if err != nil {
		return 0, err
	}
	log.Printf("level=info component=service op=complete_survey account_id=%s survey_id=%s reward_cents=%d msg=\"survey completed\"", accountID, surveyID, rewardCents)
	return rewardCents, nil
}

// SeedDefaultSurveys loads the sample catalog used by fresh deployments.
// Existing titles are left untouched.
func (s *Service) SeedDefaultSurveys(ctx context.Context) error {
	surveys := []domain.Survey{
		{Title: "Consumer Shopping Habits", Description: "Tell us how you shop for household goods", RewardCents: 5000, EstimatedTime: 10, Category: "Retail", Difficulty: "easy", IsActive: true, QuestionsCount: 15},
		{Title: "Mobile Banking Experience", Description: "Share your experience with mobile money apps", RewardCents: 7500, EstimatedTime: 15, Category: "Finance", Difficulty: "medium", IsActive: true, QuestionsCount: 20},
		{Title: "Public Transport Review", Description: "Rate matatu and boda services in your area", RewardCents: 4000, EstimatedTime: 8, Category: "Transport", Difficulty: "easy", IsActive: true, QuestionsCount: 12},
		{Title: "Internet Usage Patterns", Description: "How do you use mobile data day to day", RewardCents: 6000, EstimatedTime: 12, Category: "Technology", Difficulty: "medium", IsActive: true, QuestionsCount: 18},
		{Title: "Premium Brand Perception", Description: "In-depth study on brand loyalty", RewardCents: 15000, EstimatedTime: 25, Category: "Marketing", Difficulty: "hard", IsActive: true, IsPremiumOnly: true, QuestionsCount: 30},
	}
	return s.repo.SeedSurveys(ctx, surveys)
}
