package middleware

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "rideboard/internal/db"
	httpctx "rideboard/internal/http/ctx"
)

// SessionCookie is the cookie carrying the opaque session token.
const SessionCookie = "session_token"

// SessionAuth loads the session user from the cookie and sets it on the
// context. Browser routes redirect to /login when there is no session.
func SessionAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			user, token, ok := sessionUser(ctx, db)
			if !ok {
				ctx.Redirect("/login", fasthttp.StatusSeeOther)
				return
			}
			httpctx.SetSessionToken(ctx, token)
			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

// APIAuth is SessionAuth for JSON routes: 401 instead of a redirect.
func APIAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			user, token, ok := sessionUser(ctx, db)
			if !ok {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetContentType("application/json")
				ctx.SetBodyString(`{"error":"unauthorized"}`)
				return
			}
			httpctx.SetSessionToken(ctx, token)
			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

func sessionUser(ctx *fasthttp.RequestCtx, db *gorm.DB) (*dbpkg.User, string, bool) {
	cookie := ctx.Request.Header.Cookie(SessionCookie)
	if len(cookie) == 0 {
		return nil, "", false
	}
	token := string(cookie)
	user, err := dbpkg.UserBySessionToken(db, token)
	if err != nil {
		return nil, "", false
	}
	return user, token, true
}
