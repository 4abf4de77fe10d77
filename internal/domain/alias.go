package domain

import "strings"

// UnknownContributor is used when an item carries no author.
const UnknownContributor = "unknown"

// AliasTable maps alternate contributor identities (bot accounts, display
// names, old logins) to one canonical identity.
type AliasTable map[string]string

// Resolve returns the canonical identity for login. Lookup is exact first,
// then case-insensitive.
func (t AliasTable) Resolve(login string) string {
	login = strings.TrimSpace(login)
	if login == "" || login == UnknownContributor {
		return UnknownContributor
	}
	if canonical, ok := t[login]; ok {
		return canonical
	}
	for alias, canonical := range t {
		if strings.EqualFold(alias, login) {
			return canonical
		}
	}
	return login
}
