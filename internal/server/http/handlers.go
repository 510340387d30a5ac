package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/nocgateway/internal/common"
	"github.com/dmitrijs2005/nocgateway/internal/server/repositories/rows"
	"github.com/dmitrijs2005/nocgateway/internal/server/services"
	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	Email        string `json:"email"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

// readJSON decodes the request body into dst. Oversized bodies keep their
// *http.MaxBytesError so they map to 413.
func readJSON(c *gin.Context, dst any) error {
	body, err := c.GetRawData()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", common.ErrValidation)
	}
	return nil
}

// POST /auth/v1/token?grant_type=password|refresh_token
func (s *HTTPServer) token(c *gin.Context) {
	var req tokenRequest
	if err := readJSON(c, &req); err != nil {
		s.writeError(c, err)
		return
	}

	var (
		sess *services.Session
		err  error
	)
	switch c.Query("grant_type") {
	case "password":
		login := req.Email
		if login == "" {
			login = req.Username
		}
		sess, err = s.svc.Auth.PasswordGrant(c.Request.Context(), login, req.Password)
	case "refresh_token":
		sess, err = s.svc.Auth.RefreshGrant(c.Request.Context(), req.RefreshToken)
	default:
		err = fmt.Errorf("%w: unsupported grant_type", common.ErrValidation)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *HTTPServer) getUser(c *gin.Context) {
	u, err := s.svc.Auth.GetUser(c.Request.Context(), mustIdentity(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *HTTPServer) updateUser(c *gin.Context) {
	var body map[string]any
	if err := readJSON(c, &body); err != nil {
		s.writeError(c, err)
		return
	}
	u, err := s.svc.Auth.UpdateUser(c.Request.Context(), mustIdentity(c), body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *HTTPServer) signup(c *gin.Context) {
	var in services.SignupInput
	if err := readJSON(c, &in); err != nil {
		s.writeError(c, err)
		return
	}
	u, err := s.svc.Auth.Signup(c.Request.Context(), mustIdentity(c), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// logout is acknowledged only; tokens stay valid until they expire.
func (s *HTTPServer) logout(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

type preferences struct {
	representation bool
	count          bool
}

func parsePrefer(header string) preferences {
	var p preferences
	for _, part := range strings.Split(header, ",") {
		switch strings.TrimSpace(part) {
		case "return=representation":
			p.representation = true
		case "count=exact":
			p.count = true
		}
	}
	return p
}

// contentRange renders "first-last/total", or "*/total" for an empty page.
func contentRange(offset, n int, total int64) string {
	if n == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", offset, offset+n-1, total)
}

func nonNil(records []rows.Record) []rows.Record {
	if records == nil {
		return []rows.Record{}
	}
	return records
}

func (s *HTTPServer) listRows(c *gin.Context) {
	params := c.Request.URL.Query()
	pref := parsePrefer(c.GetHeader("Prefer"))

	res, err := s.svc.Rows.List(c.Request.Context(), mustIdentity(c), c.Param("relation"), params, pref.count)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if res.Total != nil {
		offset, _ := strconv.Atoi(params.Get("offset"))
		c.Header("Content-Range", contentRange(offset, len(res.Rows), *res.Total))
	}
	c.JSON(http.StatusOK, nonNil(res.Rows))
}

func (s *HTTPServer) createRows(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.svc.Rows.Create(c.Request.Context(), mustIdentity(c), c.Param("relation"), c.Request.URL.Query(), body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if parsePrefer(c.GetHeader("Prefer")).representation {
		c.JSON(http.StatusCreated, nonNil(out))
		return
	}
	c.Status(http.StatusCreated)
}

func (s *HTTPServer) updateRows(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.svc.Rows.Update(c.Request.Context(), mustIdentity(c), c.Param("relation"), c.Request.URL.Query(), body)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if parsePrefer(c.GetHeader("Prefer")).representation {
		c.JSON(http.StatusOK, nonNil(out))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) deleteRows(c *gin.Context) {
	out, err := s.svc.Rows.Delete(c.Request.Context(), mustIdentity(c), c.Param("relation"), c.Request.URL.Query())
	if err != nil {
		s.writeError(c, err)
		return
	}

	if parsePrefer(c.GetHeader("Prefer")).representation {
		c.JSON(http.StatusOK, nonNil(out))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *HTTPServer) rpc(c *gin.Context) {
	p, err := services.ParseProcedure(c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	args, err := c.GetRawData()
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.svc.RPC.Invoke(c.Request.Context(), mustIdentity(c), p, args)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) function(c *gin.Context) {
	f, err := services.ParseFunction(c.Param("name"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	args, err := c.GetRawData()
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.svc.Functions.Invoke(c.Request.Context(), mustIdentity(c), f, args)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) uploadObject(c *gin.Context) {
	obj, err := s.svc.Storage.Upload(c.Request.Context(), mustIdentity(c),
		c.Param("bucket"), c.Param("key"), c.GetHeader("Content-Type"), c.Request.Body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Key": obj.Bucket + "/" + obj.Key, "size": obj.Size})
}

func (s *HTTPServer) downloadObject(c *gin.Context) {
	obj, err := s.svc.Storage.Download(c.Request.Context(), mustIdentity(c), c.Param("bucket"), c.Param("key"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer obj.Body.Close()

	size := obj.Size
	if size <= 0 {
		size = -1
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, size, contentType, obj.Body, nil)
}

func (s *HTTPServer) signObject(c *gin.Context) {
	signed, err := s.svc.Storage.Sign(c.Request.Context(), mustIdentity(c), c.Param("bucket"), c.Param("key"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, signed)
}
