// Package httpsig implements the detached HTTP message signatures used to
// authenticate agent requests: the canonical signature base, the
// Signature-Agent / Signature-Input / Signature header encodings, a trusted
// agent key registry, and the signing and verifying halves of the protocol.
package httpsig

import (
	"errors"
	"fmt"
)

// Algorithm identifies the signature algorithm declared in Signature-Input.
type Algorithm string

const (
	AlgorithmRSAPSSSHA256 Algorithm = "rsa-pss-sha256"
	AlgorithmEd25519      Algorithm = "ed25519"
)

// ParseAlgorithm maps a declared alg value onto the supported set.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch Algorithm(value) {
	case AlgorithmRSAPSSSHA256:
		return AlgorithmRSAPSSSHA256, nil
	case AlgorithmEd25519:
		return AlgorithmEd25519, nil
	default:
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrMalformed, value)
	}
}

// Derived request components that may be covered by a signature.
const (
	ComponentAuthority = "@authority"
	ComponentPath      = "@path"
)

// ErrMalformed reports a header that violates the signature grammar.
// Parsing is total: any deviation fails, nothing is accepted best-effort.
var ErrMalformed = errors.New("httpsig: malformed signature header")

// Params carries the signature parameters bound into the signature base.
// It is built fresh per request and never persisted.
type Params struct {
	// Components lists the covered request components in the exact order
	// they appear in the signature base.
	Components []string
	Created    int64
	Expires    int64
	KeyID      string
	Algorithm  Algorithm
	Nonce      string
	// Tag discriminates the intent of the signature (for example
	// "agent-browser-auth" vs "agent-payer-auth") and is checked by the
	// relying party against the operation being performed.
	Tag string
}

// RequestValues is the verifier's (or signer's) own view of the request
// components. The verifier never trusts the client's rendering of the
// signature base, only these independently observed values.
type RequestValues struct {
	Authority string
	Path      string
	// Header holds values for any covered components beyond @authority
	// and @path, keyed by lowercase header name.
	Header map[string]string
}

func (v RequestValues) component(name string) string {
	switch name {
	case ComponentAuthority:
		return v.Authority
	case ComponentPath:
		return v.Path
	default:
		return v.Header[name]
	}
}
