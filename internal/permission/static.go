package permission

import "context"

// StaticProvider answers from configuration. Desktop platforms without a
// consent prompt use it to model an operator's allow/deny choice.
type StaticProvider struct {
	Recognition bool
	Microphone  bool
}

func (p StaticProvider) AuthorizeRecognition(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.Recognition, nil
}

func (p StaticProvider) AuthorizeMicrophone(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.Microphone, nil
}
