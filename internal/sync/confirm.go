package sync

import "context"

// Confirmer asks the operator a yes/no question. Implementations may block
// until an answer arrives; an error aborts the pass.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, question string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, question string) (bool, error) {
	return f(ctx, question)
}

// AutoConfirm answers every question with the same value, for unattended
// runs.
func AutoConfirm(answer bool) Confirmer {
	return ConfirmFunc(func(ctx context.Context, _ string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return answer, nil
	})
}
