package siwe

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	headerSuffix   = " wants you to sign in with your Ethereum account:"
	uriTag         = "URI: "
	versionTag     = "Version: "
	chainIDTag     = "Chain ID: "
	nonceTag       = "Nonce: "
	issuedAtTag    = "Issued At: "
	expirationTag  = "Expiration Time: "
	notBeforeTag   = "Not Before: "
	requestIDTag   = "Request ID: "
	resourcesTag   = "Resources:"
	resourcePrefix = "- "

	// Version is the only message version defined by EIP-4361.
	Version = "1"

	// TimeLayout matches the ISO-8601 form wallets and JS clients emit.
	TimeLayout = "2006-01-02T15:04:05.000Z07:00"

	minNonceLength = 8
)

// Message is a parsed EIP-4361 sign-in message.
type Message struct {
	Scheme         string
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// Parse decodes raw into a Message. The text must follow the EIP-4361 grammar exactly;
// any deviation yields ErrMalformedMessage.
func Parse(raw string) (*Message, error) {
	p := &parser{lines: strings.Split(raw, "\n")}
	msg, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err.Error())
	}
	return msg, nil
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) next() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	line := p.lines[p.pos]
	p.pos++
	return line, true
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.lines) {
		return "", false
	}
	return p.lines[p.pos], true
}

func (p *parser) required(tag string) (string, error) {
	line, ok := p.next()
	if !ok || !strings.HasPrefix(line, tag) {
		return "", fmt.Errorf("expected %q", strings.TrimSpace(tag))
	}
	value := strings.TrimPrefix(line, tag)
	if value == "" {
		return "", fmt.Errorf("empty %q", strings.TrimSpace(tag))
	}
	return value, nil
}

func (p *parser) optional(tag string) (string, bool, error) {
	line, ok := p.peek()
	if !ok || !strings.HasPrefix(line, tag) {
		return "", false, nil
	}
	value, err := p.required(tag)
	return value, err == nil, err
}

func (p *parser) parse() (*Message, error) {
	msg := &Message{}

	header, ok := p.next()
	if !ok || !strings.HasSuffix(header, headerSuffix) {
		return nil, fmt.Errorf("missing header")
	}
	authority := strings.TrimSuffix(header, headerSuffix)
	if scheme, rest, found := strings.Cut(authority, "://"); found {
		msg.Scheme = scheme
		authority = rest
	}
	if authority == "" || strings.ContainsAny(authority, " \t/") {
		return nil, fmt.Errorf("invalid domain %q", authority)
	}
	msg.Domain = authority

	rawAddress, _ := p.next()
	address, err := parseAddress(rawAddress)
	if err != nil {
		return nil, err
	}
	msg.Address = address

	if line, _ := p.next(); line != "" {
		return nil, fmt.Errorf("expected blank line after address")
	}
	// Statement is optional; both the ABNF form (extra blank line) and the compact
	// form emitted by common client libraries are accepted.
	line, ok := p.peek()
	switch {
	case !ok:
		return nil, fmt.Errorf("truncated message")
	case strings.HasPrefix(line, uriTag):
	case line == "":
		p.pos++
	default:
		msg.Statement = line
		p.pos++
		if blank, _ := p.next(); blank != "" {
			return nil, fmt.Errorf("expected blank line after statement")
		}
	}

	if msg.URI, err = p.required(uriTag); err != nil {
		return nil, err
	}
	if u, err := url.Parse(msg.URI); err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("uri must be absolute")
	}
	if msg.Version, err = p.required(versionTag); err != nil {
		return nil, err
	}
	if msg.Version != Version {
		return nil, fmt.Errorf("unsupported version %q", msg.Version)
	}
	rawChain, err := p.required(chainIDTag)
	if err != nil {
		return nil, err
	}
	msg.ChainID, err = strconv.ParseInt(rawChain, 10, 64)
	if err != nil || msg.ChainID <= 0 {
		return nil, fmt.Errorf("invalid chain id %q", rawChain)
	}
	if msg.Nonce, err = p.required(nonceTag); err != nil {
		return nil, err
	}
	if !validNonce(msg.Nonce) {
		return nil, fmt.Errorf("invalid nonce")
	}
	rawIssued, err := p.required(issuedAtTag)
	if err != nil {
		return nil, err
	}
	if msg.IssuedAt, err = parseTime(rawIssued); err != nil {
		return nil, err
	}
	if raw, ok, err := p.optional(expirationTag); err != nil {
		return nil, err
	} else if ok {
		ts, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		msg.ExpirationTime = &ts
	}
	if raw, ok, err := p.optional(notBeforeTag); err != nil {
		return nil, err
	} else if ok {
		ts, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		msg.NotBefore = &ts
	}
	if raw, ok, err := p.optional(requestIDTag); err != nil {
		return nil, err
	} else if ok {
		msg.RequestID = raw
	}
	if line, ok := p.peek(); ok && line == resourcesTag {
		p.pos++
		for {
			line, ok := p.peek()
			if !ok || !strings.HasPrefix(line, resourcePrefix) {
				break
			}
			p.pos++
			resource := strings.TrimPrefix(line, resourcePrefix)
			if u, err := url.Parse(resource); err != nil || u.Scheme == "" {
				return nil, fmt.Errorf("invalid resource %q", resource)
			}
			msg.Resources = append(msg.Resources, resource)
		}
	}
	if p.pos != len(p.lines) {
		return nil, fmt.Errorf("unexpected content at line %d", p.pos+1)
	}
	return msg, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) || !strings.HasPrefix(raw, "0x") {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(raw)
	if addr.Hex() != raw {
		return common.Address{}, fmt.Errorf("address %q is not EIP-55 checksummed", raw)
	}
	return addr, nil
}

func parseTime(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	return ts, nil
}

func validNonce(nonce string) bool {
	if len(nonce) < minNonceLength {
		return false
	}
	for _, r := range nonce {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// String renders the message in EIP-4361 form. The result is the exact text a wallet signs.
func (m *Message) String() string {
	var b strings.Builder
	if m.Scheme != "" {
		b.WriteString(m.Scheme)
		b.WriteString("://")
	}
	b.WriteString(m.Domain)
	b.WriteString(headerSuffix)
	b.WriteString("\n")
	b.WriteString(m.Address.Hex())
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	version := m.Version
	if version == "" {
		version = Version
	}
	fields := []string{
		uriTag + m.URI,
		versionTag + version,
		chainIDTag + strconv.FormatInt(m.ChainID, 10),
		nonceTag + m.Nonce,
		issuedAtTag + m.IssuedAt.UTC().Format(TimeLayout),
	}
	if m.ExpirationTime != nil {
		fields = append(fields, expirationTag+m.ExpirationTime.UTC().Format(TimeLayout))
	}
	if m.NotBefore != nil {
		fields = append(fields, notBeforeTag+m.NotBefore.UTC().Format(TimeLayout))
	}
	if m.RequestID != "" {
		fields = append(fields, requestIDTag+m.RequestID)
	}
	if len(m.Resources) > 0 {
		fields = append(fields, resourcesTag)
		for _, r := range m.Resources {
			fields = append(fields, resourcePrefix+r)
		}
	}
	b.WriteString(strings.Join(fields, "\n"))
	return b.String()
}

// ValidAt checks the expiration and not-before bounds against t.
func (m *Message) ValidAt(t time.Time) error {
	if m.ExpirationTime != nil && !t.Before(*m.ExpirationTime) {
		return ErrMessageExpired
	}
	if m.NotBefore != nil && t.Before(*m.NotBefore) {
		return ErrMessageNotYetValid
	}
	return nil
}
