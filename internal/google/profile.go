package google

// Profile is the OpenID Connect userinfo document of the signed-in user.
type Profile map[string]any

// Email returns the email claim, or "" when absent.
func (p Profile) Email() string {
	return p.str("email")
}

// Name returns the name claim, or "" when absent.
func (p Profile) Name() string {
	return p.str("name")
}

func (p Profile) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}
