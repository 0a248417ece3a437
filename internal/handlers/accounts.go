package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NiruddeshJatra/Bhara/internal/accounts"
	"github.com/NiruddeshJatra/Bhara/internal/auth"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

// identityImageLimit caps how much of an identity upload is read
const identityImageLimit = 10 * 1024 * 1024

// AccountHandler serves signup, login, password and profile endpoints
type AccountHandler struct {
	accounts *accounts.Service
}

func NewAccountHandler(svc *accounts.Service) *AccountHandler {
	return &AccountHandler{accounts: svc}
}

// Register mounts the account routes. limit guards the endpoints that send email or check passwords.
func (h *AccountHandler) Register(rg *gin.RouterGroup, requireAuth, limit gin.HandlerFunc) {
	acc := rg.Group("/accounts")
	{
		acc.POST("/signup", limit, h.Signup)
		acc.GET("/signup/verify", h.VerifySignup)
		acc.POST("/login", limit, h.Login)
		acc.POST("/logout", h.Logout)
		acc.POST("/token/refresh", h.Refresh)

		acc.POST("/password/reset", limit, h.RequestPasswordReset)
		acc.GET("/password/reset/verify", h.VerifyPasswordReset)
		acc.POST("/password/reset/verified", limit, h.CompletePasswordReset)
		acc.POST("/password/change", requireAuth, h.ChangePassword)

		acc.GET("/profile", requireAuth, h.Profile)
		acc.PATCH("/profile", requireAuth, h.UpdateProfile)
		acc.POST("/profile/complete", requireAuth, h.CompleteProfile)
	}
}

func (h *AccountHandler) Signup(c *gin.Context) {
	var req validation.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":  "User registered successfully. Please check your email to verify your account.",
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
	})
}

func (h *AccountHandler) VerifySignup(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		badRequest(c, "code", "This field is required.")
		return
	}
	if err := h.accounts.VerifySignup(c.Request.Context(), code); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully."})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *AccountHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		badRequest(c, "refresh", "This field is required.")
		return
	}
	if err := h.accounts.Logout(c.Request.Context(), req.Refresh); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		badRequest(c, "refresh", "This field is required.")
		return
	}
	access, err := h.accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		badRequest(c, "email", "This field is required.")
		return
	}
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent."})
}

func (h *AccountHandler) VerifyPasswordReset(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		badRequest(c, "code", "This field is required.")
		return
	}
	if err := h.accounts.VerifyPasswordReset(c.Request.Context(), code); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Code is valid."})
}

func (h *AccountHandler) CompletePasswordReset(c *gin.Context) {
	var req struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.CompletePasswordReset(c.Request.Context(), req.Code, req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully."})
}

func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.accounts.ChangePassword(c.Request.Context(), currentUserID(c), req.Password); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully."})
}

func (h *AccountHandler) Profile(c *gin.Context) {
	p, err := h.accounts.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	var patch accounts.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.accounts.UpdateProfile(c.Request.Context(), currentUserID(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CompleteProfile takes multipart form fields plus national_id_front and national_id_back files
func (h *AccountHandler) CompleteProfile(c *gin.Context) {
	in := validation.ProfileCompletionInput{
		FirstName:   c.PostForm("first_name"),
		LastName:    c.PostForm("last_name"),
		PhoneNumber: c.PostForm("phone_number"),
		Location:    c.PostForm("location"),
		NationalID:  c.PostForm("national_id"),
	}
	if raw := c.PostForm("date_of_birth"); raw != "" {
		dob, err := parseDate(raw)
		if err != nil {
			badRequest(c, "date_of_birth", err.Error())
			return
		}
		in.DateOfBirth = &dob
	}

	for field, dst := range map[string]**validation.ImageUpload{
		"national_id_front": &in.NationalIDFront,
		"national_id_back":  &in.NationalIDBack,
	} {
		fh, err := c.FormFile(field)
		if err != nil {
			continue
		}
		upload, err := readUpload(fh, identityImageLimit)
		if err != nil {
			badRequest(c, field, "Invalid image upload.")
			return
		}
		*dst = &upload
	}

	p, err := h.accounts.CompleteProfile(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func currentUserID(c *gin.Context) string {
	if claims, ok := auth.CurrentClaims(c); ok {
		return claims.UserID
	}
	return ""
}
