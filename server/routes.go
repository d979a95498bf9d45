package server

func (s *Server) initRoutes() {
	// LOGIN lifecycle
	s.RegisterRouteFunc("POST "+RouteAuthLogin, s.chainAPI(s.LoginHandler()))
	s.RegisterRouteFunc("POST "+RouteAuthOTPRequest, s.chainAPI(s.OTPRequestHandler(), s.RequireSession()))
	s.RegisterRouteFunc("POST "+RouteAuthOTPVerify, s.chainAPI(s.OTPVerifyHandler(), s.RequireSession()))
	s.RegisterRouteFunc("POST "+RouteAuthLogout, s.chainAPI(s.LogoutHandler(), s.RequireSession()))
	s.RegisterRouteFunc("GET "+RouteAuthMe, s.chainAPI(s.MeHandler(), s.RequireLogin()))
	s.RegisterRouteFunc("POST "+RouteAuthSignup, s.chainAPI(s.SignupHandler()))

	// Realtime push channel; announce happens over the socket after upgrade.
	s.RegisterRouteFunc("GET "+RouteWS, ChainMiddleware(s.WSHandler(), s.RequireSession()))

	// ADMIN
	s.RegisterRouteFunc("POST "+RouteAdminBlock, s.chainAPI(s.BlockPrincipalHandler(), s.RequireLogin(), s.RequireAdmin()))
	s.RegisterRouteFunc("POST "+RouteAdminUnblock, s.chainAPI(s.UnblockPrincipalHandler(), s.RequireLogin(), s.RequireAdmin()))
	s.RegisterRouteFunc("DELETE "+RouteAdminPrincipal, s.chainAPI(s.DeletePrincipalHandler(), s.RequireLogin(), s.RequireAdmin()))

	// READER detail views (cache-aside)
	s.RegisterRouteFunc("GET "+RouteClientDetail, s.chainAPI(s.ClientDetailHandler(), s.RequireLogin()))
	s.RegisterRouteFunc("PATCH "+RouteClientDetail, s.chainAPI(s.ClientUpdateHandler(), s.RequireLogin()))
}
