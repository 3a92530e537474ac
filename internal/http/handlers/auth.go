package handlers

import (
	"bytes"
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rideboard/internal/config"
	dbpkg "rideboard/internal/db"
	"rideboard/internal/http/middleware"
	"rideboard/internal/mail"
	ui "rideboard/web"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func renderPage(ctx *fasthttp.RequestCtx, name string, data any) {
	t := ui.Templates().Lookup(name)
	if t == nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("template not found")
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

func LoginForm() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		renderPage(ctx, "login.html", nil)
	}
}

func LoginSubmit(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		email := string(ctx.PostArgs().Peek("email"))
		password := string(ctx.PostArgs().Peek("password"))

		user, err := dbpkg.UserByEmail(db, email)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				renderLoginError(ctx, "Invalid email or password.")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			renderLoginError(ctx, "Invalid email or password.")
			return
		}

		token, err := dbpkg.RotateSessionToken(db, user.ID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create session")
			return
		}

		setSessionCookie(ctx, token, 0)
		ctx.Redirect("/dashboard", fasthttp.StatusSeeOther)
	}
}

func renderLoginError(ctx *fasthttp.RequestCtx, errMsg string) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	renderPage(ctx, "login.html", map[string]any{"Error": errMsg})
}

func Logout(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		cookie := ctx.Request.Header.Cookie(middleware.SessionCookie)
		if len(cookie) > 0 {
			if user, err := dbpkg.UserBySessionToken(db, string(cookie)); err == nil {
				_ = dbpkg.ClearSessionToken(db, user.ID)
			}
		}
		setSessionCookie(ctx, "", -1)
		ctx.Redirect("/login", fasthttp.StatusSeeOther)
	}
}

func setSessionCookie(ctx *fasthttp.RequestCtx, value string, maxAge int) {
	var c fasthttp.Cookie
	c.SetKey(middleware.SessionCookie)
	c.SetValue(value)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	if maxAge != 0 {
		c.SetMaxAge(maxAge)
	}
	ctx.Response.Header.SetCookie(&c)
}

func RegisterForm() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		renderPage(ctx, "register.html", nil)
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterSubmit creates a dashboard user. Accepts a JSON body or a
// standard form post from the register page.
func RegisterSubmit(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req registerRequest
		if strings.HasPrefix(string(ctx.Request.Header.ContentType()), "application/json") {
			if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
				errResponse(ctx, fasthttp.StatusBadRequest, "request body is not valid JSON")
				return
			}
		} else {
			req.Name = string(ctx.PostArgs().Peek("name"))
			req.Email = string(ctx.PostArgs().Peek("email"))
			req.Password = string(ctx.PostArgs().Peek("password"))
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "email and password are required")
			return
		}
		if !emailPattern.MatchString(email) {
			errResponse(ctx, fasthttp.StatusBadRequest, "email format is not valid")
			return
		}
		if len(req.Password) < 6 {
			errResponse(ctx, fasthttp.StatusBadRequest, "password must be at least 6 characters")
			return
		}

		if _, err := dbpkg.UserByEmail(db, email); err == nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "email is already registered")
			return
		} else if err != gorm.ErrRecordNotFound {
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}

		user := &dbpkg.User{
			Name:         strings.TrimSpace(req.Name),
			Email:        email,
			PasswordHash: string(hash),
		}
		if err := db.Create(user).Error; err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create user")
			return
		}

		ctx.SetStatusCode(fasthttp.StatusCreated)
		jsonResponse(ctx, map[string]any{"message": "user created", "userId": user.ID})
	}
}

func ForgotPasswordForm() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		renderPage(ctx, "forgot_password.html", nil)
	}
}

// ForgotPassword mints a reset token and emails the link. The response
// never reveals whether the email exists.
func ForgotPassword(db *gorm.DB, cfg *config.Config, sender mail.Sender) fasthttp.RequestHandler {
	const neutral = "If the email exists, a recovery link has been sent"
	return func(ctx *fasthttp.RequestCtx) {
		isForm := !strings.HasPrefix(string(ctx.Request.Header.ContentType()), "application/json")
		respond := func(msg string) {
			if isForm {
				renderPage(ctx, "forgot_password.html", map[string]any{"Message": msg})
				return
			}
			jsonResponse(ctx, map[string]string{"message": msg})
		}

		var req struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Email == "" {
			req.Email = string(ctx.PostArgs().Peek("email"))
		}
		if req.Email == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "email is required")
			return
		}

		user, err := dbpkg.UserByEmail(db, req.Email)
		if err != nil {
			respond(neutral)
			return
		}

		reset, err := dbpkg.CreatePasswordResetToken(db, user.ID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create reset token")
			return
		}

		resetURL := strings.TrimRight(cfg.BaseURL, "/") + "/reset-password?token=" + reset.Token
		if err := sender.Send(mail.ResetPasswordMessage(user.Email, user.Name, resetURL)); err != nil {
			log.Printf("failed to send reset email to %s: %v", user.Email, err)
		}

		respond(neutral)
	}
}

func ResetPasswordForm() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		token := string(ctx.QueryArgs().Peek("token"))
		renderPage(ctx, "reset_password.html", map[string]any{"Token": token})
	}
}

// ResetPasswordSubmit redeems a token and sets the new password. All
// sessions for the user are invalidated.
func ResetPasswordSubmit(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Token == "" {
			req.Token = string(ctx.PostArgs().Peek("token"))
			req.Password = string(ctx.PostArgs().Peek("password"))
		}

		if req.Token == "" || req.Password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "token and password are required")
			return
		}
		if len(req.Password) < 6 {
			errResponse(ctx, fasthttp.StatusBadRequest, "password must be at least 6 characters")
			return
		}

		reset, err := dbpkg.RedeemPasswordResetToken(db, req.Token)
		if err != nil {
			switch err {
			case dbpkg.ErrTokenUsed:
				errResponse(ctx, fasthttp.StatusBadRequest, "this token has already been used")
			case dbpkg.ErrTokenExpired:
				errResponse(ctx, fasthttp.StatusBadRequest, "the token has expired, request a new one")
			default:
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid or expired token")
			}
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to hash password")
			return
		}

		err = db.Model(&dbpkg.User{}).Where("id = ?", reset.UserID).Updates(map[string]interface{}{
			"password_hash": string(hash),
			"session_token": "",
		}).Error
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update password")
			return
		}

		jsonResponse(ctx, map[string]string{"message": "password updated"})
	}
}
