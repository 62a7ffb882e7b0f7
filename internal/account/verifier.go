package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

// outward messages; every rejection path shares one so callers cannot enumerate usernames
const (
	MsgAuthenticated = "login successful"
	MsgRejected      = "invalid username or password"
	MsgInternal      = "internal server error, please try again later"

	reasonBadPassword = "bad password"

	// hashed once per Verifier and compared against on rejections that have no stored hash
	dummyPassword = "account-verifier-dummy"
)

// ClientInfo is the transport metadata stored with each login attempt.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// DefaultClient is recorded when the caller has no transport metadata.
var DefaultClient = ClientInfo{IP: "127.0.0.1", UserAgent: "API Client"}

type AuthStatus string

const (
	AuthAuthenticated AuthStatus = "authenticated"
	AuthRejected      AuthStatus = "rejected"
	AuthInternalError AuthStatus = "internal_error"
)

// AuthResult is the outward result of an authentication attempt.
type AuthResult struct {
	Status   AuthStatus      `json:"-"`
	Success  bool            `json:"success"`
	Message  string          `json:"message"`
	UserType entity.UserType `json:"user_type,omitempty"`
	UserID   int64           `json:"user_id,omitempty"`
}

// Verifier answers whether a username/password pair is valid and keeps the login ledger.
type Verifier struct {
	store  Store
	ledger Ledger
	hasher PasswordHasher
	logger *zap.SugaredLogger
	// dummyHash keeps unknown and inactive usernames as slow as a wrong password.
	dummyHash string

	Now        func() time.Time
	NewEventID func() string
}

func NewVerifier(store Store, ledger Ledger, hasher PasswordHasher, logger *zap.SugaredLogger) *Verifier {
	if hasher == nil {
		hasher = SHA256Hasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		dummy = sha256Hex(dummyPassword)
	}
	return &Verifier{
		store:      store,
		ledger:     ledger,
		hasher:     hasher,
		logger:     logger,
		dummyHash:  dummy,
		Now:        time.Now,
		NewEventID: utilities.NewKSUID,
	}
}

// Authenticate verifies credentials using placeholder client metadata.
func (v *Verifier) Authenticate(ctx context.Context, username, password string) AuthResult {
	return v.AuthenticateFrom(ctx, DefaultClient, username, password)
}

// AuthenticateFrom verifies credentials and converts the outcome to the outward result.
// Store failures never leak past this point.
func (v *Verifier) AuthenticateFrom(ctx context.Context, client ClientInfo, username, password string) AuthResult {
	summary, err := v.VerifyCredentials(ctx, client, username, password)
	switch {
	case err == nil:
		return AuthResult{
			Status:   AuthAuthenticated,
			Success:  true,
			Message:  MsgAuthenticated,
			UserType: summary.UserType,
			UserID:   summary.ID,
		}
	case errors.Is(err, ErrInvalidCredentials):
		return AuthResult{Status: AuthRejected, Message: MsgRejected}
	default:
		v.logger.Errorw("authentication failed", "username", username, "err", err)
		return AuthResult{Status: AuthInternalError, Message: MsgInternal}
	}
}

// VerifyCredentials returns the account summary on success, ErrInvalidCredentials on any
// rejection, or an Infrastructure error. Each attempt against an existing active account
// appends exactly one ledger entry before returning.
func (v *Verifier) VerifyCredentials(ctx context.Context, client ClientInfo, username, password string) (*entity.AccountSummary, error) {
	if username == "" {
		v.hasher.Verify(v.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	a, err := v.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			v.hasher.Verify(v.dummyHash, password)
			v.logger.Debugw("login rejected", "username", username, "reason", "unknown username")
			return nil, ErrInvalidCredentials
		}
		return nil, infra("load account", err)
	}
	if !a.IsActive {
		v.hasher.Verify(v.dummyHash, password)
		v.logger.Debugw("login rejected", "user_id", a.ID, "reason", "inactive")
		return nil, ErrInvalidCredentials
	}

	now := v.Now()
	if !v.hasher.Verify(a.PasswordHash, password) {
		reason := reasonBadPassword
		if err := v.ledger.Record(ctx, v.entry(client, a.ID, entity.LoginFailed, &reason, now)); err != nil {
			return nil, infra("record login attempt", err)
		}
		v.logger.Debugw("login rejected", "user_id", a.ID, "reason", reason)
		return nil, ErrInvalidCredentials
	}

	if err := v.store.RecordSuccessfulLogin(ctx, v.entry(client, a.ID, entity.LoginSuccess, nil, now)); err != nil {
		return nil, infra("record successful login", err)
	}
	v.logger.Infow("login succeeded", "user_id", a.ID, "user_type", a.UserType)
	return a.Summary(), nil
}

func (v *Verifier) entry(client ClientInfo, accountID int64, outcome entity.LoginOutcome, reason *string, at time.Time) *entity.LoginLogEntry {
	if client.IP == "" {
		client.IP = DefaultClient.IP
	}
	if client.UserAgent == "" {
		client.UserAgent = DefaultClient.UserAgent
	}
	return &entity.LoginLogEntry{
		EventID:       v.NewEventID(),
		AccountID:     accountID,
		Outcome:       outcome,
		FailureReason: reason,
		IP:            client.IP,
		UserAgent:     client.UserAgent,
		CreatedAt:     at,
	}
}
