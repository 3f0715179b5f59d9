package httpio

import (
	"fmt"
	"strings"
)

// PostParameters is an ordered set of form fields for a urlencoded POST
// body. Names may repeat when added with Append.
type PostParameters struct {
	names  []string
	values []string
}

// Append adds a field, keeping any existing field of the same name.
func (p *PostParameters) Append(name, value string) {
	p.names = append(p.names, name)
	p.values = append(p.values, value)
}

// Set replaces the value of the first field called name, or appends it.
func (p *PostParameters) Set(name, value string) {
	for i, n := range p.names {
		if n == name {
			p.values[i] = value
			return
		}
	}
	p.Append(name, value)
}

// Len returns the number of fields.
func (p *PostParameters) Len() int { return len(p.names) }

// Encode renders the fields as application/x-www-form-urlencoded text. It
// returns the empty string for an empty set.
func (p *PostParameters) Encode() string {
	var sb strings.Builder
	for i := range p.names {
		if i > 0 {
			sb.WriteByte('&')
		}
		formEscape(&sb, p.names[i])
		sb.WriteByte('=')
		formEscape(&sb, p.values[i])
	}
	return sb.String()
}

func formEscape(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == ' ':
			sb.WriteByte('+')
		case strings.IndexByte("!*'();:@&=$,/?#[]{}~`^><%\"\r\n\\", c) >= 0:
			fmt.Fprintf(sb, "%%%02X", c)
		default:
			sb.WriteByte(c)
		}
	}
}
