package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NiruddeshJatra/Bhara/internal/accounts"
	"github.com/NiruddeshJatra/Bhara/internal/auth"
	"github.com/NiruddeshJatra/Bhara/internal/models"
	"github.com/NiruddeshJatra/Bhara/internal/product"
	"github.com/NiruddeshJatra/Bhara/internal/validation"
)

// writeError maps service errors onto HTTP responses
func writeError(c *gin.Context, err error) {
	if fields, ok := validation.Fields(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fields})
		return
	}

	switch {
	case errors.Is(err, product.ErrNotFound), errors.Is(err, accounts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, product.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, product.ErrConcurrentUpdate),
		errors.Is(err, product.ErrDuplicateTier),
		errors.Is(err, accounts.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, accounts.ErrInvalidCredentials),
		errors.Is(err, accounts.ErrNotVerified),
		errors.Is(err, accounts.ErrInactive),
		errors.Is(err, accounts.ErrTokenRevoked),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongType):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, accounts.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, field, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": validation.FieldErrors{field: msg}})
}

// queryInt reads a non-negative integer query parameter
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// parseDate reads a YYYY-MM-DD value
func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// readUpload loads a multipart file into memory.
// Files larger than limit are not read past limit+1 bytes so size checks still fail.
func readUpload(fh *multipart.FileHeader, limit int64) (validation.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return validation.ImageUpload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return validation.ImageUpload{}, err
	}
	return validation.ImageUpload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// readUploads loads every file of a multipart field
func readUploads(c *gin.Context, field string, limit int64) ([]validation.ImageUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	uploads := make([]validation.ImageUpload, 0, len(form.File[field]))
	for _, fh := range form.File[field] {
		u, err := readUpload(fh, limit)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, nil
}

// actor builds the product actor from the authenticated claims
func actor(c *gin.Context) product.Actor {
	claims, ok := auth.CurrentClaims(c)
	if !ok {
		return product.Actor{}
	}
	return product.Actor{UserID: claims.UserID, IsStaff: claims.IsStaff}
}
