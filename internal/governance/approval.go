// Package governance verifies maker-checker approvals for the CANARY→LIVE
// promotion.
//
// Approvals are HS256-signed tokens issued by the external governance system.
// This service only consumes them; Issuer exists for tests and ops tooling.
package governance

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"stagegate/internal/lifecycle"
	dErrors "stagegate/pkg/domain-errors"
)

const audience = "stagegate:promotion"

// Approval is verified maker-checker evidence for one bot and one edge.
type Approval struct {
	BotID      string
	Approver   string
	From       lifecycle.Stage
	To         lifecycle.Stage
	ApprovedAt time.Time
	TokenID    string
}

// Covers reports whether the approval authorises botID moving from → to.
func (a *Approval) Covers(botID string, from, to lifecycle.Stage) bool {
	if a == nil {
		return false
	}
	return a.BotID == botID && a.From == from && a.To == to
}

// Claims are the token claims. Subject is the bot ID.
type Claims struct {
	Approver string `json:"approver"`
	From     string `json:"from"`
	To       string `json:"to"`
	jwt.RegisteredClaims
}

// Verifier validates approval tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
}

func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey), issuer: issuer}
}

// Verify parses token and checks it approves CANARY→LIVE for botID.
func (v *Verifier) Verify(token, botID string) (*Approval, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeGovernanceRequired, "approval has expired")
		}
		return nil, dErrors.New(dErrors.CodeGovernanceRequired, "invalid approval token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeGovernanceRequired, "invalid approval token")
	}

	if claims.Subject != botID {
		return nil, dErrors.Newf(dErrors.CodeGovernanceRequired, "approval is for bot %s, not %s", claims.Subject, botID)
	}
	if claims.From != string(lifecycle.StageCanary) || claims.To != string(lifecycle.StageLive) {
		return nil, dErrors.Newf(dErrors.CodeGovernanceRequired,
			"approval covers %s → %s; only CANARY → LIVE requires approval", claims.From, claims.To)
	}
	if claims.Approver == "" {
		return nil, dErrors.New(dErrors.CodeGovernanceRequired, "approval has no approver identity")
	}

	approval := &Approval{
		BotID:    claims.Subject,
		Approver: claims.Approver,
		From:     lifecycle.StageCanary,
		To:       lifecycle.StageLive,
		TokenID:  claims.ID,
	}
	if claims.IssuedAt != nil {
		approval.ApprovedAt = claims.IssuedAt.Time
	}
	return approval, nil
}

// Issuer signs approval tokens.
type Issuer struct {
	signingKey []byte
	issuer     string
}

func NewIssuer(signingKey, issuer string) *Issuer {
	return &Issuer{signingKey: []byte(signingKey), issuer: issuer}
}

// Issue signs an approval for botID's from → to edge, valid for ttl.
func (i *Issuer) Issue(botID, approver string, from, to lifecycle.Stage, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Approver: approver,
		From:     string(from),
		To:       string(to),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   botID,
			Issuer:    i.issuer,
			Audience:  []string{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(i.signingKey)
}
