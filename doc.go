// Package authkit provides an account lifecycle engine (registration, login,
// password reset, SSO reconciliation and GDPR unsubscription) driven by a
// single-use action token stored on the user record.
//
// Action tokens:
//   - Every pending transition lives in User.ActionToken. The wire format is
//     "pending-registration:<nonce>", "reset-password-request:<nonce>",
//     "account-blocked:<reason>" or "gdpr-unsubscribed"; an empty value means
//     there is nothing pending. ActionToken is the typed view of that string.
//   - Nonces are minted per transition and consumed with a single
//     "UPDATE ... WHERE action_token = ?" so two requests carrying the same
//     nonce can never both succeed. Minting a new token overwrites the old one,
//     which invalidates any link already sent.
//
// Service:
//   - Service.Dispatch takes an Intent (path, method, query, body, session) and
//     returns an Outcome envelope carrying an HTTP-like status code. Routing,
//     cookies, storage engines and mail transports stay outside the package and
//     are consumed through UserStore, Session, Notifier and LinkBuilder.
//
// Plugins:
//   - Identity backends (ldap, pam) register through PluginRegistry. A backend
//     named "pam" or "ldap" takes over password checks on api/login, and the
//     external identity is merged into the local store by Reconciler.
package authkit
