package lending

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kashikari-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// 貸出リソース
	r.POST("/lendings", h.CreateLending)
	r.GET("/lendings/:lending_id", h.FetchLending)
	r.PUT("/lendings/:lending_id/sent-url", h.RegisterSentURL)
	r.POST("/lendings/:lending_id/borrower", h.RegisterBorrower)
	r.POST("/lendings/:lending_id/return", h.RegisterReturn)

	// 自分起点の一覧（/lendings/:lending_id とパスが衝突しないよう /me 配下）
	r.GET("/me/lent", h.ListLent)
	r.GET("/me/borrowed", h.ListBorrowed)
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:   c.GetString(auth.CtxUserIDKey),
		Name: c.GetString(auth.CtxDisplayNameKey),
	}
}

// POST /lendings
func (h *Handler) CreateLending(c *gin.Context) {
	var req CreateLendingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	res, err := h.svc.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}

	c.Header("Location", "/lendings/"+res.LendingID)
	c.JSON(http.StatusCreated, res)
}

// GET /lendings/:lending_id
func (h *Handler) FetchLending(c *gin.Context) {
	id := c.Param("lending_id")
	res, err := h.svc.Fetch(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /lendings/:lending_id/sent-url
func (h *Handler) RegisterSentURL(c *gin.Context) {
	id := c.Param("lending_id")
	if err := h.svc.RegisterSentURL(c.Request.Context(), id); err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// POST /lendings/:lending_id/borrower
func (h *Handler) RegisterBorrower(c *gin.Context) {
	id := c.Param("lending_id")
	res, err := h.svc.Associate(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /lendings/:lending_id/return
func (h *Handler) RegisterReturn(c *gin.Context) {
	id := c.Param("lending_id")
	res, err := h.svc.ReportReturn(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /me/lent
func (h *Handler) ListLent(c *gin.Context) {
	res, err := h.svc.ListByOwner(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /me/borrowed
func (h *Handler) ListBorrowed(c *gin.Context) {
	res, err := h.svc.ListByBorrower(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var msg string
	var code Code = CodeInternal
	if api, ok := err.(*APIError); ok {
		code, msg = api.Code, api.Message
	} else {
		msg = err.Error()
	}
	return errorBody(code, msg)
}
