package bridge

import "fmt"

// ErrorKind tags a BridgeError the way spec's tagged union does: a
// closed set of retryability-relevant cases.
type ErrorKind string

const (
	ErrTimeout            ErrorKind = "timeout"
	ErrBadResponse        ErrorKind = "bad_response"
	ErrUnsupportedAsset   ErrorKind = "unsupported_asset"
	ErrUnsupportedRoute   ErrorKind = "unsupported_route"
	ErrNetwork            ErrorKind = "network"
	ErrJSONParse          ErrorKind = "json_parse"
	ErrRateLimited        ErrorKind = "rate_limited"
	ErrServiceUnavailable ErrorKind = "service_unavailable"
	ErrInternal           ErrorKind = "internal"
)

// BridgeError is the error type every adapter returns. It carries
// enough structure for the retry loop (RetryRequest) to decide
// retryability without string-matching.
type BridgeError struct {
	Kind      ErrorKind
	Message   string
	TimeoutMs int64
	Asset     string
	FromChain string
	ToChain   string
}

func (e *BridgeError) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return fmt.Sprintf("timeout after %dms", e.TimeoutMs)
	case ErrUnsupportedAsset:
		return fmt.Sprintf("unsupported asset: %s", e.Asset)
	case ErrUnsupportedRoute:
		return fmt.Sprintf("unsupported route: %s -> %s", e.FromChain, e.ToChain)
	default:
		if e.Message != "" {
			return string(e.Kind) + ": " + e.Message
		}
		return string(e.Kind)
	}
}

// Retryable reports whether a retry loop should attempt this error
// again. Only UnsupportedAsset, UnsupportedRoute, and JsonParse are
// non-retryable — every other kind may be transient.
func (e *BridgeError) Retryable() bool {
	switch e.Kind {
	case ErrUnsupportedAsset, ErrUnsupportedRoute, ErrJSONParse:
		return false
	default:
		return true
	}
}

func NewTimeoutError(ms int64) *BridgeError {
	return &BridgeError{Kind: ErrTimeout, TimeoutMs: ms}
}

func NewBadResponseError(msg string) *BridgeError {
	return &BridgeError{Kind: ErrBadResponse, Message: msg}
}

func NewUnsupportedAssetError(asset string) *BridgeError {
	return &BridgeError{Kind: ErrUnsupportedAsset, Asset: asset}
}

func NewUnsupportedRouteError(from, to string) *BridgeError {
	return &BridgeError{Kind: ErrUnsupportedRoute, FromChain: from, ToChain: to}
}

func NewNetworkError(msg string) *BridgeError {
	return &BridgeError{Kind: ErrNetwork, Message: msg}
}

func NewJSONParseError(msg string) *BridgeError {
	return &BridgeError{Kind: ErrJSONParse, Message: msg}
}

func NewRateLimitedError() *BridgeError {
	return &BridgeError{Kind: ErrRateLimited}
}

func NewServiceUnavailableError() *BridgeError {
	return &BridgeError{Kind: ErrServiceUnavailable}
}

func NewInternalError(msg string) *BridgeError {
	return &BridgeError{Kind: ErrInternal, Message: msg}
}

// AsBridgeError unwraps err into a *BridgeError, wrapping it as Internal
// if it isn't one already.
func AsBridgeError(err error) *BridgeError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BridgeError); ok {
		return be
	}
	return NewInternalError(err.Error())
}
