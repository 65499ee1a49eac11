package errors

import stderrors "errors"

var (
	ErrHeadCorrupt  = stderrors.New("node: persisted head is malformed")
	ErrNodeClosed   = stderrors.New("node: closed")
	ErrNoStorage    = stderrors.New("node: storage required")
	ErrEmptyAckList = stderrors.New("node: no effect keys supplied")
)
