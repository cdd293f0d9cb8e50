// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the account authentication flows.
//
// # Flows
//
// Service coordinates the account store, the token codec and the password
// hasher:
//   - Register - validate, hash, create, send a verification token
//   - VerifyEmail - consume the verification token
//   - RequestPasswordReset / ResetPassword - single-use reset tokens
//   - Login - issue an access/refresh pair
//   - RefreshSession - rotate the refresh token
//   - Logout - revoke the current refresh token
//   - Authenticate - resolve an access token to its account
//
// Each account stores at most one outstanding token per purpose. A token is
// honoured only while it verifies and is still the stored one, so issuing a
// new token invalidates the previous one.
//
// # Errors
//
// Failures are oops errors whose code names the taxonomy entry (see the Code*
// constants and the account package codes). Credential and token failures are
// deliberately generic.
package auth
