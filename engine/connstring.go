package engine

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// schemeKinds maps a recognized URL scheme to its Kind.
var schemeKinds = map[string]Kind{
	"postgresql": Postgres,
	"mysql":      MySQL,
	"sqlite":     SQLite,
	"db2":        DB2,
}

// ParseConnectionString parses s into a ConnectionInfo.
//
// Recognized forms:
//   - URL form: scheme://[user[:password]@]host[:port]/database, scheme one of
//     postgresql, mysql, sqlite, db2.
//   - DB2 DSN form: semicolon-separated KEY=value pairs with keys DATABASE, HOSTNAME,
//     PORT, UID, PWD (e.g. "DRIVER={DB2};DATABASE=d;HOSTNAME=h;PORT=50000;UID=u;PWD=p").
//   - Anything else, including an unrecognized scheme: falls back to SQLite with the
//     entire string used as the file path. This is a documented fallback, not an error.
//
// An empty string fails with ErrParse. The returned ConnectionInfo is never logged
// in its raw form; use Masked() wherever it may end up in a log line.
func ParseConnectionString(s string) (ConnectionInfo, error) {
	if s == "" {
		return ConnectionInfo{}, errors.WithStack(ErrParse)
	}

	if strings.Contains(s, "DRIVER={DB2}") {
		return parseDB2DSN(s)
	}

	if scheme, rest, ok := strings.Cut(s, "://"); ok {
		if kind, known := schemeKinds[scheme]; known {
			return parseURLForm(kind, rest)
		}
	}

	// Unknown or absent scheme: fall back to SQLite, the whole string is the file path.
	return ConnectionInfo{Kind: SQLite, Database: s}, nil
}

// parseURLForm parses the "[user[:password]@]host[:port]/database" part of a URL-form
// connection string for the given kind.
func parseURLForm(kind Kind, rest string) (ConnectionInfo, error) {
	u, err := url.Parse(string(kind) + "://" + rest)
	if err != nil {
		return ConnectionInfo{}, errors.Wrap(ErrParse, err.Error())
	}

	info := ConnectionInfo{
		Kind:     kind,
		Database: strings.TrimPrefix(u.Path, "/"),
	}

	if u.User != nil {
		info.User = u.User.Username()
		info.Password, _ = u.User.Password()
	}

	host := u.Hostname()
	if host == "" && u.Host != "" {
		host = u.Host
	}
	info.Host = host

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return ConnectionInfo{}, errors.Wrapf(ErrParse, "invalid port %q", portStr)
		}
		info.Port = port
	}

	if info.Host == "" && kind != SQLite {
		return ConnectionInfo{}, errors.Wrapf(ErrParse, "missing host in %q connection string", kind)
	}

	return info, nil
}

// parseDB2DSN parses a semicolon-separated KEY=value DB2 DSN.
func parseDB2DSN(s string) (ConnectionInfo, error) {
	info := ConnectionInfo{Kind: DB2}

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		switch strings.ToUpper(key) {
		case "DATABASE":
			info.Database = value
		case "HOSTNAME":
			info.Host = value
		case "PORT":
			port, err := strconv.Atoi(value)
			if err != nil {
				return ConnectionInfo{}, errors.Wrapf(ErrParse, "invalid DB2 PORT %q", value)
			}
			info.Port = port
		case "UID":
			info.User = value
		case "PWD":
			info.Password = value
		}
	}

	if info.Host == "" || info.Database == "" {
		return ConnectionInfo{}, errors.Wrap(ErrParse, "DB2 DSN missing HOSTNAME or DATABASE")
	}

	return info, nil
}

const maskedPassword = "***"

// String renders the unmasked connection string. Internal use only; never log this.
func (c ConnectionInfo) String() string {
	return c.render(c.Password)
}

// Masked renders the connection string with the password replaced by "***". This is the
// only rendering any log path may use.
func (c ConnectionInfo) Masked() string {
	if c.Password == "" {
		return c.render("")
	}

	return c.render(maskedPassword)
}

func (c ConnectionInfo) render(password string) string {
	if c.Kind == DB2 {
		var b strings.Builder
		b.WriteString("DRIVER={DB2}")
		if c.Database != "" {
			b.WriteString(";DATABASE=" + c.Database)
		}
		if c.Host != "" {
			b.WriteString(";HOSTNAME=" + c.Host)
		}
		if c.Port != 0 {
			b.WriteString(";PORT=" + strconv.Itoa(c.Port))
		}
		if c.User != "" {
			b.WriteString(";UID=" + c.User)
		}
		if password != "" {
			b.WriteString(";PWD=" + password)
		}

		return b.String()
	}

	var userinfo string
	if c.User != "" {
		userinfo = c.User
		if password != "" {
			userinfo += ":" + password
		}
		userinfo += "@"
	}

	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}

	return string(c.Kind) + "://" + userinfo + host + "/" + c.Database
}

// MaskConnectionString masks the password in a raw, as-yet-unparsed connection string,
// for logging connection attempts that fail to parse. It replaces everything after a
// "PWD=" or "password=" key through the next ';', '&', or end of string with "***".
func MaskConnectionString(s string) string {
	lower := strings.ToLower(s)

	for _, key := range []string{"pwd=", "password="} {
		idx := strings.Index(lower, key)
		if idx < 0 {
			continue
		}

		start := idx + len(key)
		end := start
		for end < len(s) && s[end] != ';' && s[end] != '&' {
			end++
		}

		if start == end {
			continue
		}

		s = s[:start] + maskedPassword + s[end:]
		lower = strings.ToLower(s)
	}

	return s
}
