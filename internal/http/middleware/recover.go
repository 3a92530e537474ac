package middleware

import (
	"log"
	"runtime/debug"

	"github.com/valyala/fasthttp"
)

// Recover is the outermost boundary of every request: a panic is logged
// with its stack and surfaced as a generic 500, never to the client.
func Recover(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic serving %s %s: %v\n%s", ctx.Method(), ctx.Path(), r, debug.Stack())
				ctx.ResetBody()
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetContentType("application/json")
				ctx.SetBodyString(`{"error":"internal server error"}`)
			}
		}()
		next(ctx)
	}
}
