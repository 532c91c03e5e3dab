package httpsig

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The signature label is fixed. Agents emit exactly one signature per
// request, so there is no need for multi-label negotiation.
const label = "sig2"

var (
	signatureInputPattern = regexp.MustCompile(
		`^` + label + `=\(("[^"]+"(?: "[^"]+")*)\);\s*created=(\d+);\s*expires=(\d+);\s*keyId="([^"]+)";\s*alg="([^"]+)";\s*nonce="([^"]*)";\s*tag="([^"]+)"$`)
	signaturePattern = regexp.MustCompile(`^` + label + `=:([A-Za-z0-9+/]+={0,2}):$`)
	headerNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// FormatSignatureAgent renders the Signature-Agent header value.
func FormatSignatureAgent(agentID string) string {
	return strconv.Quote(agentID)
}

// ParseSignatureAgent extracts the agent identifier from a Signature-Agent
// header value.
func ParseSignatureAgent(value string) (string, error) {
	value = strings.TrimSpace(value)
	agentID, err := strconv.Unquote(value)
	if err != nil || agentID == "" {
		return "", fmt.Errorf("%w: Signature-Agent must be a quoted identifier", ErrMalformed)
	}
	return agentID, nil
}

// FormatSignatureInput renders the Signature-Input header value for p.
func FormatSignatureInput(p Params) string {
	return label + "=" + p.marshal()
}

// ParseSignatureInput parses a Signature-Input header value under the strict
// grammar. Every accepted input round-trips to an equivalent Params.
func ParseSignatureInput(value string) (Params, error) {
	match := signatureInputPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return Params{}, fmt.Errorf("%w: Signature-Input does not match the %s grammar", ErrMalformed, label)
	}
	components, err := parseComponentList(match[1])
	if err != nil {
		return Params{}, err
	}
	created, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return Params{}, fmt.Errorf("%w: created is not a unix timestamp", ErrMalformed)
	}
	expires, err := strconv.ParseInt(match[3], 10, 64)
	if err != nil {
		return Params{}, fmt.Errorf("%w: expires is not a unix timestamp", ErrMalformed)
	}
	alg, err := ParseAlgorithm(match[5])
	if err != nil {
		return Params{}, err
	}
	return Params{
		Components: components,
		Created:    created,
		Expires:    expires,
		KeyID:      match[4],
		Algorithm:  alg,
		Nonce:      match[6],
		Tag:        match[7],
	}, nil
}

// FormatSignature renders the Signature header value for raw signature bytes.
func FormatSignature(signature []byte) string {
	return label + "=:" + base64.StdEncoding.EncodeToString(signature) + ":"
}

// ParseSignature extracts the raw signature bytes from a Signature header value.
func ParseSignature(value string) ([]byte, error) {
	match := signaturePattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return nil, fmt.Errorf("%w: Signature must be %s=:<base64>:", ErrMalformed, label)
	}
	raw, err := base64.StdEncoding.DecodeString(match[1])
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not valid base64", ErrMalformed)
	}
	return raw, nil
}

// SignatureBase builds the canonical byte string that is signed and verified:
// one line per covered component in declared order, each rendered as
// `"<component>": <value>`, terminated by the serialized signature
// parameters. Two implementations given the same Params and request values
// must produce identical bytes.
func SignatureBase(p Params, values RequestValues) []byte {
	lines := make([]string, 0, len(p.Components)+1)
	for _, component := range p.Components {
		lines = append(lines, fmt.Sprintf("%q: %s", component, values.component(component)))
	}
	lines = append(lines, fmt.Sprintf("%q: %s", "@signature-params", p.marshal()))
	return []byte(strings.Join(lines, "\n"))
}

func (p Params) marshal() string {
	quoted := make([]string, len(p.Components))
	for i, component := range p.Components {
		quoted[i] = strconv.Quote(component)
	}
	return fmt.Sprintf("(%s); created=%d; expires=%d; keyId=%q; alg=%q; nonce=%q; tag=%q",
		strings.Join(quoted, " "), p.Created, p.Expires, p.KeyID, p.Algorithm, p.Nonce, p.Tag)
}

func parseComponentList(list string) ([]string, error) {
	parts := strings.Split(list, " ")
	components := make([]string, 0, len(parts))
	for _, part := range parts {
		name, err := strconv.Unquote(part)
		if err != nil {
			return nil, fmt.Errorf("%w: component names must be quoted", ErrMalformed)
		}
		if err := validateComponent(name); err != nil {
			return nil, err
		}
		components = append(components, name)
	}
	return components, nil
}

func validateComponent(name string) error {
	if strings.HasPrefix(name, "@") {
		if name != ComponentAuthority && name != ComponentPath {
			return fmt.Errorf("%w: unknown derived component %q", ErrMalformed, name)
		}
		return nil
	}
	if !headerNamePattern.MatchString(name) {
		return fmt.Errorf("%w: invalid component name %q", ErrMalformed, name)
	}
	return nil
}
