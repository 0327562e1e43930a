// Package profile turns a user's stored behavior into a classified profile.
package profile

import (
	"context"
	"log/slog"
	"time"

	"fakebroker/api/features"
	"fakebroker/api/models"
)

const DefaultTimeout = 30 * time.Second

// Fallback is returned whenever the classifier fails.
func Fallback() models.UserProfile {
	return models.UserProfile{
		ProfileType: models.ProfileBalanced,
		Confidence:  0.5,
		Signals:     []string{"fallback"},
	}
}

// FeatureSource computes a user's current FeatureVector.
type FeatureSource interface {
	ComputeFeatures(ctx context.Context, userID, filter string) (models.FeatureVector, error)
}

// Classifier maps features onto an archetype.
type Classifier interface {
	Classify(ctx context.Context, fv models.FeatureVector) (models.UserProfile, error)
}

// ProfileSaver persists the latest profile on the user record.
type ProfileSaver interface {
	SaveProfile(ctx context.Context, userID string, profile models.UserProfile, at time.Time) error
}

// Result is what a profile request returns.
type Result struct {
	Features models.FeatureVector `json:"features"`
	Profile  models.UserProfile   `json:"profile"`
	// Fallback is set when the classifier failed and Profile is the default.
	Fallback bool `json:"fallback"`
}

// Service orchestrates feature building, classification and persistence.
type Service struct {
	features   FeatureSource
	classifier Classifier
	saver      ProfileSaver
	timeout    time.Duration
	now        func() time.Time
}

// NewService wires a Service. A non-positive timeout uses DefaultTimeout.
func NewService(fs FeatureSource, c Classifier, saver ProfileSaver, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		features:   fs,
		classifier: c,
		saver:      saver,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Generate builds the user's features and classifies them. Only storage
// failures while reading history are returned as errors. A classifier
// failure yields the fallback profile, which is not persisted so an earlier
// real classification is kept. A failed profile save is logged and ignored.
func (s *Service) Generate(ctx context.Context, userID string) (*Result, error) {
	fv, err := s.features.ComputeFeatures(ctx, userID, features.FilterAll)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	p, err := s.classifier.Classify(cctx, fv)
	cancel()
	if err != nil {
		slog.Warn("classifier failed, using fallback profile", "user_id", userID, "error", err)
		return &Result{Features: fv, Profile: Fallback(), Fallback: true}, nil
	}

	if err := s.saver.SaveProfile(ctx, userID, p, s.now()); err != nil {
		slog.Warn("profile save failed", "user_id", userID, "error", err)
	}
	return &Result{Features: fv, Profile: p}, nil
}
