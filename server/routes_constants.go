package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteSignup      = "/signup"
	RouteLogin       = "/login"
	RouteVerify2FA   = "/verify-2fa"
	RouteLogout      = "/logout"
	RouteVerifyToken = "/verify-token"

	RouteHealth = "/health"
)
