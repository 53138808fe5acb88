// Package httpapi exposes goToken.Engine as a JSON API on gin.
//
// Routes (under /api/v1 unless noted):
//
//	POST /auth/register   create account, returns a token pair
//	POST /auth/login      verify credentials, returns a token pair
//	POST /auth/refresh    exchange {"refresh_token"} for a new pair
//	POST /auth/logout     revoke the bearer access token's session
//	GET  /auth/me         claims of the bearer access token
//	POST /admin/revoke    revoke another user's access token (role admin)
//	GET  /healthz         session store reachability (no prefix)
//
// Responses use a {"success", "data"} or {"success", "error":{"code","message"}}
// envelope. Error messages never carry token contents or parse details.
package httpapi
