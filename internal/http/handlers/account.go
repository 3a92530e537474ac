package handlers

import (
	"log"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "rideboard/internal/db"
)

// DeleteAccount removes the current user and everything owned by them:
// Strava credentials, the connected account, activities and reset tokens.
func DeleteAccount(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		if err := dbpkg.DeleteUserCascade(db, user.ID); err != nil {
			log.Printf("failed to delete account for user %d: %v", user.ID, err)
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to delete account")
			return
		}

		setSessionCookie(ctx, "", -1)
		jsonResponse(ctx, map[string]string{"message": "account deleted"})
	}
}
