package sync

import "context"

// Up mirrors local changes onto the remote tree, creating remote directories
// on demand, then reconciles paths deleted locally.
func (o *Orchestrator) Up(ctx context.Context) error {
	if o.remote == nil {
		return ErrNoRemote
	}
	return o.syncTree(ctx, o.upPlan())
}

// Both runs a complete down pass followed by a complete up pass over the
// same store.
func (o *Orchestrator) Both(ctx context.Context) error {
	if err := o.Down(ctx); err != nil {
		return err
	}
	return o.Up(ctx)
}
