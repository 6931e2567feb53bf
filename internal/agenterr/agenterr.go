// Package agenterr defines the agent's typed error taxonomy: numeric
// codes, their derived categories, and the fixed recoverable set.
package agenterr

import "fmt"

// Category is one of the eight fixed error categories, derived from a
// code's numeric range.
type Category string

const (
	CategoryTransport Category = "TRANSPORT"
	CategoryDevice    Category = "DEVICE"
	CategoryApp       Category = "APP"
	CategoryUI        Category = "UI"
	CategoryPerf      Category = "PERF"
	CategoryFile      Category = "FILE"
	CategoryPlugin    Category = "PLUGIN"
	CategoryInternal  Category = "INTERNAL"
)

// Fixed error codes referenced by handlers and tests. The numeric ranges
// themselves are part of the wire contract and must not be renumbered.
const (
	CodeAuthFailed        = 1001
	CodeRateLimited       = 1002
	CodeTimeout           = 1003
	CodeFrameProtocolError = 1004

	CodeDeviceOffline        = 2001
	CodePermissionDenied     = 2002
	CodePrivilegeRequired    = 2003
	CodeLowMemory            = 2004
	CodeScreenOff            = 2005

	CodeAppNotInstalled = 3001
	CodeAppInstallFailed = 3002
	CodeAppLaunchTimeout = 3003

	CodeElementNotFound   = 4001
	CodeGestureFailed     = 4002
	CodeElementNotVisible = 4003
	CodeStaleElement      = 4004
	CodeHierarchyUnavailable = 4005

	CodePerfSessionNotFound    = 5001
	CodePerfSessionAlreadyRun  = 5002

	CodeFileNotFound     = 6001
	CodeFileAccessDenied = 6002

	CodePluginInitFailed        = 7001
	CodePluginDependencyMissing = 7002

	CodeMissingMethod        = 9001
	CodeNotImplemented       = 9002
	CodeValidationError      = 9003
	CodeEnvelopeProtocolError = 9004
	CodeUnknown              = 9999
)

// recoverable is the fixed, frozen set of codes a client may retry.
// Extending this set is a protocol-compatibility change.
var recoverable = map[int]bool{
	CodeRateLimited:       true,
	CodeTimeout:           true,
	CodeLowMemory:         true,
	CodeScreenOff:         true,
	CodeElementNotFound:   true,
	CodeElementNotVisible: true,
	CodeStaleElement:      true,
	CodeAppLaunchTimeout:  true,
}

// CategoryOf derives a category from a numeric code's range.
func CategoryOf(code int) Category {
	switch {
	case code >= 1000 && code < 2000:
		return CategoryTransport
	case code >= 2000 && code < 3000:
		return CategoryDevice
	case code >= 3000 && code < 4000:
		return CategoryApp
	case code >= 4000 && code < 5000:
		return CategoryUI
	case code >= 5000 && code < 6000:
		return CategoryPerf
	case code >= 6000 && code < 7000:
		return CategoryFile
	case code >= 7000 && code < 8000:
		return CategoryPlugin
	default:
		return CategoryInternal
	}
}

// IsRecoverable reports whether code is on the fixed recoverable set.
func IsRecoverable(code int) bool {
	return recoverable[code]
}

// AgentError is the typed error raised by strategies and handlers; the
// router lifts it into a wire error response without modification.
type AgentError struct {
	Code             int
	Message          string
	Details          map[string]any
	SuggestedAction  string
}

func New(code int, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

func Newf(code int, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}

func (e *AgentError) WithSuggestedAction(action string) *AgentError {
	e.SuggestedAction = action
	return e
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AgentError) Category() Category {
	return CategoryOf(e.Code)
}

func (e *AgentError) Recoverable() bool {
	return IsRecoverable(e.Code)
}
