package nwc

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedURI is returned by ParseConnectionURI for a URI with a bad
	// scheme, a non-64-hex pubkey or secret, or a missing required param.
	ErrMalformedURI = errors.New("nwc: malformed wallet connect uri")

	// ErrWalletUnreachable is returned when the wallet's capability
	// announcement does not arrive within the connect deadline.
	ErrWalletUnreachable = errors.New("nwc: wallet unreachable, no info event received")

	// ErrRequestTimeout is returned when no matching response event arrives
	// within the request deadline.
	ErrRequestTimeout = errors.New("nwc: request timed out")

	// ErrNotConnected is returned for any RPC attempted without an
	// established connection.
	ErrNotConnected = errors.New("nwc: not connected")
)

// WalletError is an error envelope explicitly returned by the wallet.
type WalletError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("nwc: wallet error %s: %s", e.Code, e.Message)
}
