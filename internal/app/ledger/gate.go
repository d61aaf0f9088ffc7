package ledger

import (
	"context"
	"strings"
)

// StaticGate authorizes a fixed set of administrator account IDs, usually
// taken from the [auth] admins list of the config file.
type StaticGate struct {
	admins map[string]struct{}
}

// NewStaticGate builds a gate from admin IDs. Blank entries are ignored.
func NewStaticGate(admins ...string) *StaticGate {
	g := &StaticGate{admins: make(map[string]struct{}, len(admins))}
	for _, a := range admins {
		if a = strings.TrimSpace(a); a != "" {
			g.admins[a] = struct{}{}
		}
	}
	return g
}

// CanAdminister implements domain.AuthorizationGate.
func (g *StaticGate) CanAdminister(_ context.Context, actorID string) (bool, error) {
	_, ok := g.admins[actorID]
	return ok, nil
}
