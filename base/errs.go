package base

import "errors"

var ErrNothingToRead = errors.New("nothing to read")
var ErrNotOpened = errors.New("connection is not open")
var ErrCommunicationTimeout = errors.New("communication timeout")
var ErrNotAssociated = errors.New("session is not associated")
var ErrAssociationBroken = errors.New("association is broken")
var ErrUnexpectedTag = errors.New("unexpected tag")
var ErrInvokeIdMismatch = errors.New("invoke id mismatch")
var ErrBlockNumberMismatch = errors.New("block number mismatch")
