// Package license implements the floating-license lease protocol client.
// A lease is a scarce, server-managed concurrent-use token: the client
// consumes one from the license server, tracks its validity window,
// renews it ahead of expiry and releases it on shutdown.
//
// # Components
//
//   - Token: codec for the opaque lease token wire format
//     base64(data)|nonce|base64(signature)
//   - Verifier: offline RSA signature verification of a held token
//   - Post-issue validators: time-range and host-binding checks
//   - Client: the lease state machine and the consume/renew/release
//     HTTP calls
//   - Coordinator: process-wide single-admission gate that de-duplicates
//     concurrent license checks
//
// # Check Flow
//
// A caller asks the Client to ensure a valid lease is held. The
// Coordinator admits one caller at a time; bystanders return immediately
// and rely on the in-flight check's side effects. The admitted caller
// inspects the held token: absent, corrupt or expired tokens trigger a
// fresh consume; tokens close to expiry trigger a renew; otherwise the
// token is re-verified locally without contacting the server.
//
// All failures surface as *Error values tagged with a machine-readable
// Kind; transport errors without a structured server response pass
// through unchanged.
package license
