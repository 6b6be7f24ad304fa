package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ivr-billing/internal/auth"
	"ivr-billing/internal/currency"
	"ivr-billing/internal/pricing"
	"ivr-billing/internal/reporting"
	"ivr-billing/internal/subscription"
	"ivr-billing/internal/usage"
	"ivr-billing/internal/wallet"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Subs    *subscription.Service
	Wallet  *wallet.Service
	Records usage.Repo
	Reports *reporting.Service
	Pricing *pricing.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	token, err := h.Auth.Issue(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// --- Calls ---

func (h Handlers) GetCallRecord(c *gin.Context) {
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	rec, err := h.Records.GetByCallID(c.Request.Context(), callID)
	if err != nil {
		if errors.Is(err, usage.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "record lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Subscriptions ---

type activateSubscriptionRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

func (h Handlers) ActivateSubscription(c *gin.Context) {
	var req activateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.PlanID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, plan_id required"})
		return
	}
	sub, err := h.Subs.Activate(c.Request.Context(), req.UserID, req.PlanID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "activation failed"})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h Handlers) GetSubscription(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	sub, err := h.Subs.RequireActive(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no active subscription"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "subscription lookup failed"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

// --- Pricing ---

type upsertPricingRequest struct {
	Unit      string          `json:"unit"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// UpsertPricing sets the overage price for a unit. Admin-gated in the router.
func (h Handlers) UpsertPricing(c *gin.Context) {
	var req upsertPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Pricing.SetRate(c.Request.Context(), pricing.Unit(req.Unit), req.AmountUSD)
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidPricingReq) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unit and a positive amount_usd required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "pricing update failed"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// --- Wallet ---

func (h Handlers) RegisterAccount(c *gin.Context) {
	var req wallet.RegisterAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	acct, err := h.Wallet.RegisterAccount(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, currency.ErrUnsupportedCurrency):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported currency"})
		case errors.Is(err, wallet.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, account_id, main_wallet_account_id required"})
		case errors.Is(err, wallet.ErrDuplicateAccount):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "account already registered for currency"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "account registration failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (h Handlers) ListTransactions(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	txs, err := h.Wallet.Transactions(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "transaction lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
