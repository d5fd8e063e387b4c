// Package acme is the ACME v2 (RFC 8555) client engine: Session, Login, and
// the Account/Order/Authorization/Challenge/Certificate resource objects
// that drive issuance from directory discovery through certificate
// download.
//
// Grounded throughout on the teacher's (cpu/acmeshell) acme/client and
// acme/resources packages, but restructured around the spec's Session/
// Login ownership model (§3's "Ownership" paragraph) rather than the
// teacher's single God-object Client: directory lookups, nonce handling and
// transport concerns moved to acme/transport, acme/noncepool and
// acme/provider; this package keeps only the resource state machines and
// the Session/Login types that own them.
package acme

// Directory endpoint keys, as defined by RFC 8555 §7.1.1.
const (
	endpointNewNonce   = "newNonce"
	endpointNewAccount = "newAccount"
	endpointNewOrder   = "newOrder"
	endpointNewAuthz   = "newAuthz"
	endpointRevokeCert = "revokeCert"
	endpointKeyChange  = "keyChange"
	endpointRenewalInfo = "renewalInfo"
)

// Account status values, per spec.md §3.
const (
	AccountValid       = "valid"
	AccountDeactivated = "deactivated"
	AccountRevoked     = "revoked"
)

// Order status values, per spec.md §4.9's state machine.
const (
	OrderPending    = "pending"
	OrderReady      = "ready"
	OrderProcessing = "processing"
	OrderValid      = "valid"
	OrderInvalid    = "invalid"
)

// Authorization status values, per spec.md §3.
const (
	AuthorizationPending      = "pending"
	AuthorizationValid        = "valid"
	AuthorizationInvalid      = "invalid"
	AuthorizationDeactivated  = "deactivated"
	AuthorizationExpired      = "expired"
	AuthorizationRevoked      = "revoked"
)

// Challenge status values, per spec.md §3.
const (
	ChallengePending    = "pending"
	ChallengeProcessing = "processing"
	ChallengeValid      = "valid"
	ChallengeInvalid    = "invalid"
)
