package events

import "context"

type turnKey struct{}

// WithTurn attaches turn to ctx so collaborators deeper in a run can tag
// the events they emit.
func WithTurn(ctx context.Context, turn Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, turn)
}

func TurnFromContext(ctx context.Context) Turn {
	turn, _ := ctx.Value(turnKey{}).(Turn)
	return turn
}
