package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/subspace-chat/internal/models"
)

func userView(u *models.User) gin.H {
	return gin.H{
		"id":             u.ID,
		"email":          u.Email,
		"username":       u.Username,
		"display_name":   u.DisplayName,
		"email_verified": u.EmailVerified,
		"created_at":     u.CreatedAt,
	}
}

func (h *Handler) SignUp(c *gin.Context) {
	var req auth.SignUpInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.Auth.SignUp(c.Request.Context(), req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Created(c, userView(user))
}

type verifyReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) VerifyEmail(c *gin.Context) {
	var req verifyReq
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Auth.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

type emailReq struct {
	Email string `json:"email"`
}

func (h *Handler) ResendVerification(c *gin.Context) {
	var req emailReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"sent": true})
}

type signInReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInReq
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if common.KindOf(err) == common.KindPermission {
			common.Fail(c, http.StatusUnauthorized, 40103, common.MessageOf(err))
			return
		}
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) SignOut(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if err := h.Auth.SignOut(c.Request.Context(), claims); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"signed_out": true})
}

func (h *Handler) Refresh(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sess, err := h.Auth.Refresh(c.Request.Context(), claims)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

// RequestPasswordReset always answers ok for a well-formed email.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req emailReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"sent": true})
}

type confirmResetReq struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req confirmResetReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Auth.ConfirmPasswordReset(c.Request.Context(), req.Email, req.Code, req.Password); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"reset": true})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	user, err := h.Auth.CurrentUser(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, userView(user))
}

func (h *Handler) GetProfile(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	p, err := h.Auth.GetProfile(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, p)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req auth.ProfileInput
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Auth.UpdateProfile(c.Request.Context(), uid, req)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, p)
}
