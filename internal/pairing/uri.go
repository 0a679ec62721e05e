package pairing

import (
	"fmt"
	"net/url"
	"strconv"

	"pairing/internal/relay"
)

// URIScheme and URIVersion identify the pairing signal format (spec
// §3 "URI (signal payload)", §6 "URI signal").
const (
	URIScheme  = "pairing"
	URIVersion = 2
)

// FormatURI encodes a proposal's shareable signal payload. The shape
// is deliberately close to WalletConnect's own pairing URI, which the
// spec's glossary and §6 describe by structure without mandating
// bytes: pairing:<topic>@<version>?publicKey=<k>&relay-protocol=<p>.
func FormatURI(topic string, publicKey string, rl relay.Descriptor) string {
	rl = rl.WithDefaults()
	v := url.Values{}
	v.Set("relay-protocol", rl.Protocol)
	v.Set("publicKey", publicKey)
	for k, val := range rl.Params {
		v.Set("relay-"+k, val)
	}
	return fmt.Sprintf("%s:%s@%d?%s", URIScheme, topic, URIVersion, v.Encode())
}

// ParsedURI is the decoded form of a pairing signal.
type ParsedURI struct {
	Topic     string
	Version   int
	PublicKey string
	Relay     relay.Descriptor
}

// ParseURI decodes a pairing URI produced by FormatURI. It is the
// mirror operation a responder runs after scanning/receiving the
// signal out of band.
func ParseURI(uri string) (ParsedURI, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("pairing: parse uri: %w", err)
	}
	if u.Scheme != URIScheme {
		return ParsedURI{}, fmt.Errorf("pairing: unexpected uri scheme %q", u.Scheme)
	}

	// url.Parse puts "topic@version" in Opaque for a scheme without
	// "//", matching how EncodeFrame-style helpers in the teacher's
	// internal/proto package hand-parse fixed-shape wire prefixes
	// rather than reach for a heavier grammar.
	body := u.Opaque
	if body == "" {
		body = u.Path
	}
	topic, versionStr, err := splitTopicVersion(body)
	if err != nil {
		return ParsedURI{}, err
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("pairing: invalid uri version %q: %w", versionStr, err)
	}

	q := u.Query()
	descriptor := relay.Descriptor{
		Protocol: q.Get("relay-protocol"),
		Params:   map[string]string{},
	}
	for k, vals := range q {
		if len(vals) == 0 {
			continue
		}
		const prefix = "relay-"
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && k != "relay-protocol" {
			descriptor.Params[k[len(prefix):]] = vals[0]
		}
	}
	if len(descriptor.Params) == 0 {
		descriptor.Params = nil
	}

	return ParsedURI{
		Topic:     topic,
		Version:   version,
		PublicKey: q.Get("publicKey"),
		Relay:     descriptor.WithDefaults(),
	}, nil
}

func splitTopicVersion(body string) (topic string, version string, err error) {
	for i := 0; i < len(body); i++ {
		if body[i] == '@' {
			return body[:i], body[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("pairing: malformed uri body %q, expected topic@version", body)
}
