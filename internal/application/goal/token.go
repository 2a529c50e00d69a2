package goal

import (
	"context"

	domain "github.com/goalledger/backend/internal/domain/goal"
)

// ActorTokenVerifier turns a signed credential presented by an external
// collaborator into a capability-tagged actor. Used by the notifier gateway
// so custody systems can authenticate without a pre-shared session.
type ActorTokenVerifier interface {
	VerifyActorToken(ctx context.Context, token string) (domain.Actor, error)
}
