package auth

import (
	"encoding/json"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// Field precedence used by NormalizeUser. Each entry is a JMESPath expression evaluated
// against the raw payload; the first one yielding a non-null value wins.
//
//nolint:gochecknoglobals // read-only lookup tables
var (
	idPaths        = []string{"id", "user_id", "userId"}
	emailPaths     = []string{"email"}
	firstNamePaths = []string{"firstName", "fisrtname", "firstname", "first_name"}
	lastNamePaths  = []string{"lastName", "lastname", "last_name"}
	fullNamePaths  = []string{"fullName", "fullname", "full_name"}
	namePaths      = []string{"name"}
	adminFlagPaths = []string{"is_admin", "isAdmin"}
	rolePaths      = []string{"role"}
	activeFlagPath = []string{"is_active", "isActive"}
	statusPaths    = []string{"status"}
)

// NormalizeUser converts a backend user payload of any known shape into an Identity.
// It never fails: missing or unreadable fields fall back to their defaults
// (role user, status active).
func NormalizeUser(raw map[string]any) Identity {
	if raw == nil {
		raw = map[string]any{}
	}

	first := lookupString(raw, firstNamePaths)
	last := lookupString(raw, lastNamePaths)
	email := lookupString(raw, emailPaths)

	full := lookupString(raw, fullNamePaths)
	if full == "" {
		full = fullNameFallback(first, last, lookupString(raw, namePaths), email)
	}

	return Identity{
		ID:        lookupString(raw, idPaths),
		Email:     email,
		FirstName: first,
		LastName:  last,
		FullName:  full,
		Role:      normalizeRole(raw),
		Status:    normalizeStatus(raw),
	}
}

func normalizeRole(raw map[string]any) Role {
	if v, ok := lookup(raw, adminFlagPaths); ok {
		if flag, parsed := asBool(v); parsed {
			if flag {
				return RoleAdmin
			}
			return RoleUser
		}
	}
	return ParseRole(lookupString(raw, rolePaths))
}

func normalizeStatus(raw map[string]any) Status {
	if v, ok := lookup(raw, activeFlagPath); ok {
		if flag, parsed := asBool(v); parsed {
			if flag {
				return StatusActive
			}
			return StatusSuspended
		}
	}
	return ParseStatus(lookupString(raw, statusPaths))
}

func fullNameFallback(first, last, name, email string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{first, last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if local, _, found := strings.Cut(email, "@"); found {
		return local
	}
	return email
}

// lookup returns the first non-null value among the given expressions.
func lookup(raw map[string]any, paths []string) (any, bool) {
	for _, p := range paths {
		v, err := jmespath.Search(p, raw)
		if err != nil || v == nil {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(raw map[string]any, paths []string) string {
	v, ok := lookup(raw, paths)
	if !ok {
		return ""
	}
	return strings.TrimSpace(asString(v))
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// asBool interprets the boolean encodings seen across backend versions.
// The second result is false when v cannot be read as a flag at all.
func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return false, false
		}
		return f != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "t", "1", "yes", "y", "on":
			return true, true
		case "false", "f", "0", "no", "n", "off":
			return false, true
		}
	}
	return false, false
}
