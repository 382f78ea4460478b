package acse

import "github.com/caio-sobreiro/dicomnet/pdu"

// UsernamePassword builds an opaque User Identity RQ item for username and
// password credentials, Part 7 Annex D.3.3.6.1. This layer never inspects
// or validates the credentials it carries — it only frames them for the
// application to verify.
func UsernamePassword(username, password string, positiveResponseRequested bool) *pdu.UserIdentityRQItem {
	return &pdu.UserIdentityRQItem{
		Type:                      pdu.UserIdentityUsernamePassword,
		PositiveResponseRequested: positiveResponseRequested,
		PrimaryField:              []byte(username),
		SecondaryField:            []byte(password),
	}
}

// Username builds a User Identity RQ item asserting a username with no
// password (Kerberos/SAML-style single-field identity also uses this
// shape with a different Type).
func Username(username string, positiveResponseRequested bool) *pdu.UserIdentityRQItem {
	return &pdu.UserIdentityRQItem{
		Type:                      pdu.UserIdentityUsername,
		PositiveResponseRequested: positiveResponseRequested,
		PrimaryField:              []byte(username),
	}
}

// Token builds a User Identity RQ item for an opaque bearer credential:
// Kerberos service ticket, SAML assertion, or JWT, depending on kind.
func Token(kind pdu.UserIdentityType, token []byte, positiveResponseRequested bool) *pdu.UserIdentityRQItem {
	return &pdu.UserIdentityRQItem{
		Type:                      kind,
		PositiveResponseRequested: positiveResponseRequested,
		PrimaryField:              token,
	}
}
