// Package httputil provides the JSON response helpers and the generic
// middleware chain shared by keyhole's handlers.
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggerMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//	)(router)
//
// Error bodies always have the shape of ErrorResponse.
package httputil
