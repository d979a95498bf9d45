package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login lifecycle
	RouteAuthLogin      = "/auth/login"
	RouteAuthLogout     = "/auth/logout"
	RouteAuthOTPRequest = "/auth/otp/request"
	RouteAuthOTPVerify  = "/auth/otp/verify"
	RouteAuthMe         = "/auth/me"
	RouteAuthSignup     = "/auth/signup"

	// Realtime push channel
	RouteWS = "/ws"

	// Admin Routes
	RouteAdminBlock     = "/admin/principals/{id}/block"
	RouteAdminUnblock   = "/admin/principals/{id}/unblock"
	RouteAdminPrincipal = "/admin/principals/{id}"

	// Reader Routes
	RouteClientDetail = "/clients/{id}"
)
