package session

import (
	"errors"
	"fmt"

	"github.com/metergrid/godlms/base"
)

// Sentinel errors raised by the session engine, per spec §7. Codec/apdu/
// cipher errors observed on a live response are wrapped as ErrBroken
// (after moving the session to base.AssociationBroken); DataAccessResult
// and ActionResult outcomes are returned as *ResultError, a normal
// application outcome that does not break the session.
var (
	ErrNotAssociated      = base.ErrNotAssociated
	ErrBroken             = base.ErrAssociationBroken
	ErrBlockSequenceError = errors.New("session: block number did not increase by exactly 1")
	ErrUnexpectedInvokeId = errors.New("session: response invoke-id does not match the outstanding request")
	ErrPduTooLarge        = errors.New("session: encoded value exceeds the negotiated max PDU size and cannot be chunked further")
)

// RejectedError is returned by Connect when the meter's AARE carries a
// permanent or transient rejection instead of acceptance.
type RejectedError struct {
	Result     base.AssociationResult
	Diagnostic base.SourceDiagnostic
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("session: association rejected: result=%v diagnostic=%v", e.Result, e.Diagnostic)
}

// ResultError wraps a DataAccessResult returned by a GET/SET response, or
// an ActionResult returned by an ACTION response — normal application
// outcomes per spec §7, never a broken-session condition.
type ResultError struct {
	DataResult   *base.DlmsResultTag
	ActionResult *base.ActionResult
}

func (e *ResultError) Error() string {
	switch {
	case e.DataResult != nil:
		return fmt.Sprintf("session: data access result: %v", *e.DataResult)
	case e.ActionResult != nil:
		return fmt.Sprintf("session: action result: %v", *e.ActionResult)
	default:
		return "session: result error"
	}
}

func dataAccessError(r base.DlmsResultTag) error {
	return &ResultError{DataResult: &r}
}

func actionResultError(r base.ActionResult) error {
	return &ResultError{ActionResult: &r}
}

// wireError wraps codec/apdu/cipher errors seen while talking to an
// associated meter; the caller (session.go) moves the session to Broken
// before returning an error built with this helper.
func wireError(context string, err error) error {
	return fmt.Errorf("session: %s: %w: %w", context, ErrBroken, err)
}
