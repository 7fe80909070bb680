package model

import (
	"fmt"
	"strings"

	"sms-hunter/internal/domain"
)

// Reservation is a number bought from the provider. It is never persisted;
// its fields travel inside the callback data of the notification buttons.
type Reservation struct {
	OperationID string
	Number      string
}

// Complete reports whether both the operation id and the number are present.
func (r *Reservation) Complete() bool {
	return r != nil && r.OperationID != "" && r.Number != ""
}

const (
	CodeRequestPrefix   = "getCode#"
	CancelRequestPrefix = "ban#"
	callbackSep         = "#"
)

// CodeRequest is carried by the "request code" button.
type CodeRequest struct {
	OperationID string
	Number      string
}

func (c CodeRequest) Data() string {
	return CodeRequestPrefix + c.OperationID + callbackSep + c.Number
}

// ParseCodeRequest decodes "getCode#<op>#<number>".
func ParseCodeRequest(data string) (CodeRequest, error) {
	rest, ok := strings.CutPrefix(data, CodeRequestPrefix)
	if !ok {
		return CodeRequest{}, fmt.Errorf("%w: not a code request: %q", domain.ErrInvalidArgument, data)
	}
	op, num, ok := strings.Cut(rest, callbackSep)
	if !ok || op == "" {
		return CodeRequest{}, fmt.Errorf("%w: malformed code request: %q", domain.ErrInvalidArgument, data)
	}
	return CodeRequest{OperationID: op, Number: num}, nil
}

// CancelRequest is carried by the "ban" button.
type CancelRequest struct {
	OperationID string
}

func (c CancelRequest) Data() string {
	return CancelRequestPrefix + c.OperationID
}

// ParseCancelRequest decodes "ban#<op>".
func ParseCancelRequest(data string) (CancelRequest, error) {
	op, ok := strings.CutPrefix(data, CancelRequestPrefix)
	if !ok || op == "" || strings.Contains(op, callbackSep) {
		return CancelRequest{}, fmt.Errorf("%w: malformed cancel request: %q", domain.ErrInvalidArgument, data)
	}
	return CancelRequest{OperationID: op}, nil
}

// ForReservation builds both button payloads for a fresh number.
func ForReservation(r *Reservation) (CodeRequest, CancelRequest) {
	return CodeRequest{OperationID: r.OperationID, Number: r.Number},
		CancelRequest{OperationID: r.OperationID}
}
