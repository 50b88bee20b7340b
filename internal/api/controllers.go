package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"perp-gateway/internal/auth"
	"perp-gateway/internal/order"
	"perp-gateway/internal/session"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondErr maps a typed gateway error to its HTTP status and code.
func respondErr(c *gin.Context, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	respondError(c, status, code, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, order.ErrOrderSubmit):
		return http.StatusUnprocessableEntity, "ORDER_REJECTED"
	case errors.Is(err, order.ErrVenueRejected):
		return http.StatusUnprocessableEntity, "REQUEST_REJECTED"
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case errors.Is(err, order.ErrNoPosition):
		return http.StatusNotFound, "NO_POSITION"
	case errors.Is(err, order.ErrAssetNotFound):
		return http.StatusNotFound, "ASSET_NOT_FOUND"
	case errors.Is(err, session.ErrNotRegistered):
		return http.StatusNotFound, "WALLET_NOT_REGISTERED"
	case errors.Is(err, session.ErrSessionInit):
		return http.StatusBadRequest, "SESSION_INIT_FAILED"
	case errors.Is(err, session.ErrInvalidWallet):
		return http.StatusBadRequest, "INVALID_WALLET"
	case errors.Is(err, order.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"
	case errors.Is(err, order.ErrMarketData), errors.Is(err, order.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	case errors.Is(err, auth.ErrAuthInvalid):
		return http.StatusUnauthorized, "AUTH_INVALID"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "REQUEST_TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// resolveSession resolves the authenticated wallet's session, writing the error response on failure.
func (s *Server) resolveSession(c *gin.Context) (*session.Session, bool) {
	sess, err := s.Sessions.Resolve(c.Request.Context(), CurrentWallet(c))
	if err != nil {
		respondErr(c, err)
		return nil, false
	}
	return sess, true
}

type credentialRequest struct {
	PrivateKey     string `json:"private_key"`
	Mnemonic       string `json:"mnemonic"`
	DerivationPath string `json:"derivation_path"`
}

// registerCredential stores signing material for the authenticated wallet.
func (s *Server) registerCredential(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	sess, err := s.Sessions.Register(c.Request.Context(), CurrentWallet(c), session.Credential{
		PrivateKey:     req.PrivateKey,
		Mnemonic:       req.Mnemonic,
		DerivationPath: req.DerivationPath,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"wallet":     sess.Wallet.Hex(),
		"signer":     sess.Signer.Address().Hex(),
		"created_at": sess.CreatedAt,
	})
}

type placeOrderRequest struct {
	Asset     string          `json:"asset" binding:"required"`
	IsBuy     bool            `json:"is_buy"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	OrderType string          `json:"order_type"`
}

func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	orderType := strings.ToLower(strings.TrimSpace(req.OrderType))
	if orderType != "" && orderType != "limit" && orderType != "market" {
		respondError(c, http.StatusBadRequest, "INVALID_ORDER_TYPE", "order_type must be limit or market")
		return
	}
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}

	var (
		o   order.Order
		err error
	)
	if orderType == "market" {
		o, err = s.Engine.PlaceMarket(c.Request.Context(), sess, req.Asset, req.IsBuy, req.Size)
	} else {
		o, err = s.Engine.PlaceLimit(c.Request.Context(), sess, req.Asset, req.IsBuy, req.Size, req.Price)
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type marketOrderRequest struct {
	Asset string          `json:"asset" binding:"required"`
	IsBuy bool            `json:"is_buy"`
	Size  decimal.Decimal `json:"size"`
}

func (s *Server) placeMarketOrder(c *gin.Context) {
	var req marketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	o, err := s.Engine.PlaceMarket(c.Request.Context(), sess, req.Asset, req.IsBuy, req.Size)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) cancelOrder(c *gin.Context) {
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	o, err := s.Engine.Cancel(c.Request.Context(), sess, c.Param("asset"), c.Param("order_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) closePosition(c *gin.Context) {
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	o, err := s.Engine.ClosePosition(c.Request.Context(), sess, c.Param("asset"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) getPositions(c *gin.Context) {
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	positions, err := s.Engine.GetPositions(c.Request.Context(), sess)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

// getWalletPositions is the public read path; it needs no registered credential.
func (s *Server) getWalletPositions(c *gin.Context) {
	addr, err := session.NormalizeWallet(c.Param("wallet"))
	if err != nil {
		respondErr(c, err)
		return
	}
	view := &session.Session{Wallet: addr, Info: s.Info}
	positions, err := s.Engine.GetPositions(c.Request.Context(), view)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) getOpenOrders(c *gin.Context) {
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	orders, err := s.Engine.GetOpenOrders(c.Request.Context(), sess)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getMarketInfo(c *gin.Context) {
	info, err := s.Engine.GetMarketInfo(c.Request.Context(), c.Param("asset"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

type leverageRequest struct {
	Asset    string `json:"asset" binding:"required"`
	Leverage int    `json:"leverage" binding:"required"`
	IsCross  *bool  `json:"is_cross"`
}

func (s *Server) updateLeverage(c *gin.Context) {
	var req leverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "asset and leverage are required")
		return
	}
	cross := true
	if req.IsCross != nil {
		cross = *req.IsCross
	}
	sess, ok := s.resolveSession(c)
	if !ok {
		return
	}
	if err := s.Engine.UpdateLeverage(c.Request.Context(), sess, req.Asset, req.Leverage, cross); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"asset":    req.Asset,
		"leverage": req.Leverage,
		"is_cross": cross,
	})
}
