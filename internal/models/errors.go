package models

// RecoverableError is implemented by errors that carry enough structure for
// the CLI output layer to enrich a JSON error response (spec §7 error
// taxonomy). errors.As matches any concrete type implementing this shape.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// ErrorKind enumerates the taxonomy from spec §7. It is not itself an error
// type; concrete errors carry a Kind() method returning one of these so
// callers can branch on category without string matching.
type ErrorKind string

const (
	ErrorKindIntegrity         ErrorKind = "integrity"
	ErrorKindIllegalTransition ErrorKind = "illegal_transition"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindExternalCommand   ErrorKind = "external_command"
	ErrorKindProtocol          ErrorKind = "protocol"
	ErrorKindFilesystem        ErrorKind = "filesystem"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
)

// KindedError is implemented by errors that know their taxonomy kind.
type KindedError interface {
	error
	Kind() ErrorKind
}
