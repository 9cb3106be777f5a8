package chain

import "errors"

var (
	ErrCallDepth        = errors.New("chain: max call depth exceeded")
	ErrAddressCollision = errors.New("chain: contract address already in use")
	ErrUnknownContract  = errors.New("chain: no contract at address")
	ErrCodeMismatch     = errors.New("chain: contract kind does not match recorded code")
)
