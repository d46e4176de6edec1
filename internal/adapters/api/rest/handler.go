package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/money"
	"github.com/playmixer/walletledger/internal/core/payment"
)

var (
	msgErrorCloseBody = "failed close body request"
)

var kindStatus = map[payment.Kind]int{
	payment.KindWalletNotFound:    http.StatusNotFound,
	payment.KindProductNotFound:   http.StatusNotFound,
	payment.KindOrderNotFound:     http.StatusNotFound,
	payment.KindInsufficientFunds: http.StatusPaymentRequired,
	payment.KindPriceMismatch:     http.StatusConflict,
	payment.KindInvalidTransition: http.StatusConflict,
	payment.KindInvalidRequest:    http.StatusBadRequest,
	payment.KindWalletFrozen:      http.StatusLocked,
	payment.KindTransientFailure:  http.StatusServiceUnavailable,
}

func (s *Server) writeError(c *gin.Context, msg string, err error) {
	kind := payment.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		s.log.Error(msg, zap.Error(err))
		c.Writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.log.Debug(msg, zap.String("kind", string(kind)), zap.Error(err))
	c.JSON(status, tError{Error: string(kind)})
}

//	@Summary	Wallet balances
//	@Schemes
//	@Description	get wallet of the caller, creating it on first access
//	@Tags			wallet
//	@Produce		json
//	@Success		200	{object}	tWallet	"успешная обработка запроса"
//	@failure		401	"пользователь не авторизован"
//	@failure		500	"внутренняя ошибка сервера"
//	@Router			/api/wallet [get]
func (s *Server) handlerGetWallet(c *gin.Context) {
	ctx := c.Request.Context()

	w, err := s.service.Open(ctx, accountID(c))
	if err != nil {
		s.writeError(c, "failed open wallet", err)
		return
	}
	c.JSON(http.StatusOK, newWallet(&w))
}

//	@Summary	Purchase product
//	@Schemes
//	@Description	pay for a catalog product from main balance or split 50/50 with purchase balance
//	@Tags			wallet
//	@Accept			json
//	@Produce		json
//	@Param			Idempotency-Key	header	string		false	"repeat-safe checkout key"
//	@Param			purchase		body	tPurchase	true	"purchase"
//	@Success		200				{object}	tOrder	"заказ оплачен"
//	@failure		400				"неверный формат запроса"
//	@failure		401				"пользователь не авторизован"
//	@failure		402				"на счету недостаточно средств"
//	@failure		404				"кошелек или товар не найден"
//	@failure		409				"сумма не совпадает с ценой каталога"
//	@failure		429				"слишком много запросов"
//	@failure		503				"временная ошибка, повторите позже"
//	@failure		500				"внутренняя ошибка сервера"
//	@Router			/api/wallet/purchase [post]
func (s *Server) handlerPurchase(c *gin.Context) {
	ctx := c.Request.Context()

	bBody, status := s.readBody(c)
	if status != 0 {
		c.Writer.WriteHeader(status)
		return
	}

	jBody := tPurchase{}
	if err := json.Unmarshal(bBody, &jBody); err != nil {
		s.log.Debug("failed parse body", zap.String("body", string(bBody)), zap.Error(err))
		c.Writer.WriteHeader(http.StatusBadRequest)
		return
	}

	currency, err := money.ParseCurrency(jBody.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, tError{Error: string(payment.KindInvalidRequest)})
		return
	}
	amount, err := decimal.NewFromString(jBody.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, tError{Error: string(payment.KindInvalidRequest)})
		return
	}

	order, err := s.service.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:        accountID(c),
		ProductID:      jBody.ProductID,
		Amount:         amount,
		Currency:       currency,
		Split:          jBody.Split,
		AffiliateID:    jBody.AffiliateID,
		IdempotencyKey: c.GetHeader(headerIdempotencyKey),
	})
	if err != nil {
		s.writeError(c, "failed purchase", err)
		return
	}
	c.JSON(http.StatusOK, newOrder(&order))
}

//	@Summary	List orders
//	@Schemes
//	@Description	get orders of the caller
//	@Tags			wallet
//	@Produce		json
//	@Success		200	{array}	tOrder	"успешная обработка запроса"
//	@Success		204	"нет данных для ответа"
//	@failure		401	"пользователь не авторизован"
//	@failure		500	"внутренняя ошибка сервера"
//	@Router			/api/wallet/orders [get]
func (s *Server) handlerGetOrders(c *gin.Context) {
	ctx := c.Request.Context()

	orders, err := s.service.Orders(ctx, accountID(c))
	if err != nil {
		if errors.Is(err, errstore.ErrNotFoundData) {
			c.Writer.WriteHeader(http.StatusNoContent)
			return
		}
		s.log.Error("failed get orders by user", zap.Error(err))
		c.Writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := []*tOrder{}
	for _, order := range orders {
		response = append(response, newOrder(order))
	}
	sort.Slice(response, func(i, j int) bool {
		return response[i].createdAt.Sub(response[j].createdAt) < 0
	})
	c.JSON(http.StatusOK, response)
}

//	@Summary	Affiliate earnings
//	@Schemes
//	@Description	commissions credited to the caller
//	@Tags			wallet
//	@Produce		json
//	@Success		200	{object}	tEarnings	"успешная обработка запроса"
//	@failure		401	"пользователь не авторизован"
//	@failure		500	"внутренняя ошибка сервера"
//	@Router			/api/wallet/earnings [get]
func (s *Server) handlerGetEarnings(c *gin.Context) {
	ctx := c.Request.Context()

	earnings, err := s.service.Earnings(ctx, accountID(c))
	if err != nil {
		s.writeError(c, "failed get earnings", err)
		return
	}

	result := tEarnings{Total: earnings.Total, Records: []tCommission{}}
	for _, r := range earnings.Records {
		result.Records = append(result.Records, tCommission{
			OrderID:  r.OrderID,
			Currency: r.Currency,
			Amount:   r.Amount,
			Rate:     r.Rate,
		})
	}
	c.JSON(http.StatusOK, result)
}

//	@Summary	Mining status
//	@Schemes
//	@Description	state of the daily mining reward with the countdown to the next claim
//	@Tags			mining
//	@Produce		json
//	@Success		200	{object}	tMiningStatus	"успешная обработка запроса"
//	@failure		401	"пользователь не авторизован"
//	@failure		500	"внутренняя ошибка сервера"
//	@Router			/api/mining [get]
func (s *Server) handlerMiningStatus(c *gin.Context) {
	ctx := c.Request.Context()

	st, err := s.service.MiningStatus(ctx, accountID(c))
	if err != nil {
		s.writeError(c, "failed get mining status", err)
		return
	}

	result := tMiningStatus{
		State:            st.State,
		Balance:          st.Balance,
		NextReward:       st.NextReward,
		RemainingSeconds: seconds(st.Remaining),
		Streak:           st.Streak,
	}
	if st.NextClaimAt != nil {
		next := st.NextClaimAt.Format(time.RFC3339)
		result.NextClaimAt = &next
	}
	c.JSON(http.StatusOK, result)
}

//	@Summary	Claim mining reward
//	@Schemes
//	@Description	claim the daily reward, once per cooldown
//	@Tags			mining
//	@Produce		json
//	@Success		200	{object}	tClaim	"награда начислена"
//	@failure		401	"пользователь не авторизован"
//	@failure		429	{object}	tError	"награда еще недоступна"
//	@failure		503	"временная ошибка, повторите позже"
//	@failure		500	"внутренняя ошибка сервера"
//	@Router			/api/mining/claim [post]
func (s *Server) handlerMiningClaim(c *gin.Context) {
	ctx := c.Request.Context()

	claim, err := s.service.Claim(ctx, accountID(c))
	if err != nil {
		var cooldown *mining.CooldownError
		if errors.As(err, &cooldown) {
			remaining := seconds(cooldown.Remaining)
			c.Header("Retry-After", strconv.FormatInt(remaining, 10))
			c.JSON(http.StatusTooManyRequests, tError{Error: "CooldownActive", RemainingSeconds: remaining})
			return
		}
		s.writeError(c, "failed claim mining reward", err)
		return
	}

	c.JSON(http.StatusOK, tClaim{
		ClaimedAt: claim.ClaimedAt.Format(time.RFC3339),
		Reward:    claim.Reward,
		Bonus:     claim.Bonus,
		Balance:   claim.Balance,
		Streak:    claim.Streak,
	})
}

//	@Summary	Refund order
//	@Schemes
//	@Description	admin override: refund a completed order and reverse its credits
//	@Tags			admin
//	@Produce		json
//	@Param			X-Admin-Key	header	string	true	"admin key"
//	@Param			id			path	string	true	"order id"
//	@Success		200			{object}	tOrder	"заказ возвращен"
//	@failure		402			"продавец или партнер уже потратил средства"
//	@failure		403			"нет доступа"
//	@failure		404			"заказ не найден"
//	@failure		409			"заказ нельзя вернуть"
//	@failure		500			"внутренняя ошибка сервера"
//	@Router			/api/admin/orders/{id}/refund [post]
func (s *Server) handlerRefund(c *gin.Context) {
	ctx := c.Request.Context()

	order, err := s.service.Refund(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, "failed refund order", err)
		return
	}
	c.JSON(http.StatusOK, newOrder(&order))
}
