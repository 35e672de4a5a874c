package loginstate

import "errors"

var (
	errNoSession        = errors.New("loginstate: no active session for account")
	errUnknownCharacter = errors.New("loginstate: uid is not one of this account's loaded characters")
	errSearchInProgress = errors.New("loginstate: SearchInProgress")
)
