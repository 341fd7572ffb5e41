package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"memberportal/internal/docstore"
	"memberportal/internal/mailer"
	"memberportal/internal/metrics"
)

// Collection holds the live verification codes, keyed by subject id. At
// most one live code per subject; issuing overwrites.
const Collection = "verification_codes"

// ErrRateLimited means a code was issued for the subject too recently.
var ErrRateLimited = errors.New("verification: re-issue cooldown active")

// Verify outcomes. Clients act on the reason string.
const (
	ReasonExpiredOrInvalid = "expired_or_invalid"
	ReasonExpired          = "expired"
	ReasonIncorrect        = "incorrect"
	ReasonLocked           = "locked"
)

// Result is the outcome of one verification attempt.
type Result struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// Service issues, verifies and consumes one-time 6-digit codes. Expiry is
// checked lazily on verify; nothing sweeps the store.
type Service struct {
	docs        docstore.Store
	mail        mailer.Sender
	log         *zap.Logger
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int64
	now         func() time.Time
}

// NewService builds the code service.
func NewService(docs docstore.Store, mail mailer.Sender, ttl, cooldown time.Duration, maxAttempts int, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Service{
		docs:        docs,
		mail:        mail,
		log:         log,
		ttl:         ttl,
		cooldown:    cooldown,
		maxAttempts: int64(maxAttempts),
		now:         time.Now,
	}
}

// WithClock overrides the service clock; tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue generates a fresh code for the subject, overwriting any previous
// one, and mails it. A failed send is reported to the caller but the
// stored code stays put: a retry overwrites it anyway. Re-issuing within
// the cooldown fails with ErrRateLimited.
func (s *Service) Issue(ctx context.Context, subjectID, email string) error {
	if subjectID == "" || email == "" {
		return errors.New("verification: subject id and email required")
	}
	now := s.now()

	if s.cooldown > 0 {
		if doc, err := s.docs.Get(ctx, Collection, subjectID); err == nil {
			if created, perr := time.Parse(time.RFC3339, doc["created_at"]); perr == nil {
				if now.Sub(created) < s.cooldown {
					return ErrRateLimited
				}
			}
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("verification issue %s: %w", subjectID, err)
		}
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("verification: generate code: %w", err)
	}

	doc := docstore.Doc{
		"code":       code,
		"email":      email,
		"expires_at": now.Add(s.ttl).UTC().Format(time.RFC3339),
		"attempts":   "0",
		"created_at": now.UTC().Format(time.RFC3339),
		"verified":   "false",
	}
	if err := s.docs.Set(ctx, Collection, subjectID, doc); err != nil {
		return fmt.Errorf("verification store %s: %w", subjectID, err)
	}
	metrics.CodesIssued.Inc()

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.mail.Send(ctx, email, "Your verification code", body); err != nil {
		s.log.Warn("verification mail dispatch failed", zap.String("subject_id", subjectID), zap.Error(err))
		return fmt.Errorf("verification: code stored but dispatch failed: %w", err)
	}
	return nil
}

// Verify checks an input code against the stored one. Wrong guesses bump
// the attempt counter with a single atomic increment, then compare: two
// concurrent wrong guesses cannot both slip under the ceiling. Hitting
// the ceiling deletes the code; the only recovery is a fresh issue. A
// match marks the code verified but keeps it, so a consuming flow can
// verify first and apply after.
func (s *Service) Verify(ctx context.Context, subjectID, input string) (Result, error) {
	doc, err := s.docs.Get(ctx, Collection, subjectID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			metrics.CodeVerifications.WithLabelValues(ReasonExpiredOrInvalid).Inc()
			return Result{Success: false, Reason: ReasonExpiredOrInvalid}, nil
		}
		return Result{}, fmt.Errorf("verification read %s: %w", subjectID, err)
	}

	expiresAt, perr := time.Parse(time.RFC3339, doc["expires_at"])
	if perr != nil || s.now().After(expiresAt) {
		// Left in place; the next issue overwrites it.
		metrics.CodeVerifications.WithLabelValues(ReasonExpired).Inc()
		return Result{Success: false, Reason: ReasonExpired}, nil
	}

	if input != doc["code"] {
		attempts, err := s.docs.IncrField(ctx, Collection, subjectID, "attempts", 1)
		if err != nil {
			return Result{}, fmt.Errorf("verification attempts %s: %w", subjectID, err)
		}
		if attempts >= s.maxAttempts {
			if err := s.docs.Delete(ctx, Collection, subjectID); err != nil {
				return Result{}, fmt.Errorf("verification lockout %s: %w", subjectID, err)
			}
			metrics.CodeVerifications.WithLabelValues(ReasonLocked).Inc()
			return Result{Success: false, Reason: ReasonLocked}, nil
		}
		metrics.CodeVerifications.WithLabelValues(ReasonIncorrect).Inc()
		return Result{Success: false, Reason: ReasonIncorrect}, nil
	}

	fields := docstore.Doc{
		"verified":    "true",
		"verified_at": s.now().UTC().Format(time.RFC3339),
	}
	if err := s.docs.SetFields(ctx, Collection, subjectID, fields); err != nil {
		return Result{}, fmt.Errorf("verification mark %s: %w", subjectID, err)
	}
	metrics.CodeVerifications.WithLabelValues("success").Inc()
	return Result{Success: true}, nil
}

// Consume deletes the subject's code document. Consuming flows call this
// after applying the effect the code gated, so an already-verified code
// cannot be replayed.
func (s *Service) Consume(ctx context.Context, subjectID string) error {
	if err := s.docs.Delete(ctx, Collection, subjectID); err != nil {
		return fmt.Errorf("verification consume %s: %w", subjectID, err)
	}
	return nil
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Attempts reports the current attempt count for a subject's live code;
// zero when none exists.
func (s *Service) Attempts(ctx context.Context, subjectID string) (int64, error) {
	doc, err := s.docs.Get(ctx, Collection, subjectID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	attempts, _ := strconv.ParseInt(doc["attempts"], 10, 64)
	return attempts, nil
}
