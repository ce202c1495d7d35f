package store

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/libeufin-go/corebank/internal/domain"
)

var (
	ErrChallengeExpired        = errors.New("store: challenge expired")
	ErrChallengeCodeMismatch   = errors.New("store: TAN code mismatch")
	ErrChallengeRetriesExceeded = errors.New("store: TAN retries exceeded")
	ErrChallengeAlreadySolved  = errors.New("store: challenge already confirmed")
	ErrChallengeRetransmitTooSoon = errors.New("store: retransmission requested too soon")
)

const challengeRetransmitCooldown = 30 * time.Second

// SendChallenge dispatches (or re-dispatches) a challenge's TAN code over
// its configured channel. The send itself runs outside any database
// transaction, since a subprocess call is a suspension point that must
// never hold a serializable transaction open.
func (s *Store) SendChallenge(ctx context.Context, challengeID int64) error {
	var login, channel, code string
	var lastSent *time.Time

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT login, channel, code, last_sent_at FROM challenges WHERE challenge_id=$1 FOR UPDATE`, challengeID,
		).Scan(&login, &channel, &code, &lastSent)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if lastSent != nil && now().Sub(*lastSent) < challengeRetransmitCooldown {
			return ErrChallengeRetransmitTooSoon
		}
		_, err = tx.Exec(ctx, `
			UPDATE challenges SET last_sent_at=$1, retransmission_deadline=$1 + interval '30 seconds' WHERE challenge_id=$2`,
			now(), challengeID)
		return err
	})
	if err != nil {
		return err
	}

	var recipient string
	if err := s.db.QueryRow(ctx, `
		SELECT CASE WHEN $2='sms' THEN COALESCE(contact_phone,'') ELSE COALESCE(contact_email,'') END
		FROM accounts WHERE login=$1`, login, channel,
	).Scan(&recipient); err != nil {
		return err
	}

	return s.sender.Send(ctx, domain.TanChannel(channel), recipient, "Your confirmation code is "+code)
}

// SolveChallenge implements Challenges.solve: it verifies
// the supplied code in constant time, decrements the retry budget on
// mismatch, and on success finalizes whatever operation the challenge was
// gating (cashout or withdrawal confirmation).
func (s *Store) SolveChallenge(ctx context.Context, challengeID int64, code string) error {
	var login string
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var opKind, opRef, storedCode string
		var expiresAt time.Time
		var remaining int
		var confirmedAt *time.Time
		err := tx.QueryRow(ctx, `
			SELECT login, op_kind, op_ref, code, expires_at, remaining_retries, confirmed_at
			FROM challenges WHERE challenge_id=$1 FOR UPDATE`, challengeID,
		).Scan(&login, &opKind, &opRef, &storedCode, &expiresAt, &remaining, &confirmedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if confirmedAt != nil {
			return ErrChallengeAlreadySolved
		}
		if now().After(expiresAt) {
			return ErrChallengeExpired
		}
		if remaining <= 0 {
			return ErrChallengeRetriesExceeded
		}

		if subtle.ConstantTimeCompare([]byte(code), []byte(storedCode)) != 1 {
			if _, err := tx.Exec(ctx, `UPDATE challenges SET remaining_retries=remaining_retries-1 WHERE challenge_id=$1`, challengeID); err != nil {
				return err
			}
			return ErrChallengeCodeMismatch
		}

		if _, err := tx.Exec(ctx, `UPDATE challenges SET confirmed_at=$1 WHERE challenge_id=$2`, now(), challengeID); err != nil {
			return err
		}

		switch domain.SensitiveOp(opKind) {
		case domain.OpCashout:
			cashoutID, err := strconv.ParseInt(opRef, 10, 64)
			if err != nil {
				return err
			}
			if err := s.confirmCashout(ctx, tx, cashoutID); err != nil {
				return err
			}
		case domain.OpWithdrawal:
			withdrawalID, err := uuid.Parse(opRef)
			if err != nil {
				return err
			}
			if err := s.confirmWithdrawalLocked(ctx, tx, withdrawalID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify.Publish(login)
	return nil
}
