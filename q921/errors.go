package q921

import "errors"

var (
	errShortFrame    = errors.New("q921: frame shorter than address+control header")
	errFrameTooLong  = errors.New("q921: frame exceeds maximum D-channel frame size")
	errSeqNoOutOfRange = errors.New("q921: N(R) not in [V(A), V(S)]")
	errUnexpectedInState = errors.New("q921: frame unexpected in current state")
	errTEIDenied         = errors.New("q921: TEI identity request denied")
)
