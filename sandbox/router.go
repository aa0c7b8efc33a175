package sandbox

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

// Server serves the sandbox over the HTTP contract spoken by the backend
// package clients.
type Server struct {
	backends *backend.Backends
	router   *gin.Engine
}

func NewServer(s *Sandbox) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("rwa-sandbox"))

	srv := &Server{backends: s.Backends(), router: r}
	srv.routes()
	return srv
}

func (srv *Server) Router() *gin.Engine {
	return srv.router
}

func (srv *Server) routes() {
	r := srv.router
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "sandbox running...")
	})

	r.GET("/accounts/:id/balances/:currency", srv.getBalance)
	r.POST("/accounts/:id/balances/:currency/debit", srv.debit)
	r.POST("/accounts/:id/balances/:currency/credit", srv.credit)
	r.POST("/accounts/:id/reset", srv.resetAccount)
	r.POST("/transfers", srv.transfer)

	r.POST("/listings", srv.createAndList)
	r.POST("/listings/:token_id/buy", srv.buy)
	r.GET("/listings", srv.listAll)
	r.GET("/tokens", srv.listTokens)
	r.POST("/marketplace/reset-ids", srv.resetIDs)

	r.POST("/loans", srv.originate)
	r.POST("/loans/:token_id/repay", srv.repay)
	r.GET("/loans", srv.listLoans)

	r.GET("/history/:id", srv.history)
	r.POST("/history/reset", srv.resetHistory)
	r.POST("/history/reset-ids", srv.resetHistoryIDs)
}

// fail writes the {code, error} body the backend clients classify.
func fail(c *gin.Context, err error) {
	apiErr := apierror.As(err, apierror.ErrInternalServer)
	status := apierror.MapErrorToHTTPStatus(apiErr)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("sandbox request failed")
	}
	c.JSON(status, gin.H{"code": apiErr.Code, "error": apiErr.Message})
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apierror.ErrInvalidInput, "error": err.Error()})
		return false
	}
	return true
}

type postingBody struct {
	Amount int64                 `json:"amount"`
	Memo   model.TransactionType `json:"memo"`
}

func (srv *Server) getBalance(c *gin.Context) {
	id, currency := c.Param("id"), model.Currency(c.Param("currency"))
	balance, err := srv.backends.Ledger.GetBalance(c.Request.Context(), id, currency)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": id, "currency": currency, "balance": balance})
}

func (srv *Server) debit(c *gin.Context) {
	var body postingBody
	if !bind(c, &body) {
		return
	}
	id, currency := c.Param("id"), model.Currency(c.Param("currency"))
	if err := srv.backends.Ledger.Debit(c.Request.Context(), id, currency, body.Amount, body.Memo); err != nil {
		fail(c, err)
		return
	}
	srv.getBalance(c)
}

func (srv *Server) credit(c *gin.Context) {
	var body postingBody
	if !bind(c, &body) {
		return
	}
	id, currency := c.Param("id"), model.Currency(c.Param("currency"))
	if err := srv.backends.Ledger.Credit(c.Request.Context(), id, currency, body.Amount, body.Memo); err != nil {
		fail(c, err)
		return
	}
	srv.getBalance(c)
}

func (srv *Server) resetAccount(c *gin.Context) {
	if err := srv.backends.Ledger.Reset(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account reset"})
}

func (srv *Server) transfer(c *gin.Context) {
	var body struct {
		From     string         `json:"from"`
		To       string         `json:"to"`
		Currency model.Currency `json:"currency"`
		Amount   int64          `json:"amount"`
	}
	if !bind(c, &body) {
		return
	}
	if err := srv.backends.Ledger.Transfer(c.Request.Context(), body.From, body.To, body.Currency, body.Amount); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transfer settled"})
}

func (srv *Server) createAndList(c *gin.Context) {
	var body struct {
		Owner    string         `json:"owner"`
		Details  string         `json:"details"`
		Price    int64          `json:"price"`
		Currency model.Currency `json:"currency"`
	}
	if !bind(c, &body) {
		return
	}
	listing, err := srv.backends.Marketplace.CreateAndList(c.Request.Context(), body.Owner, body.Details, body.Price, body.Currency)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (srv *Server) buy(c *gin.Context) {
	var body struct {
		Buyer    string         `json:"buyer"`
		Price    int64          `json:"price"`
		Currency model.Currency `json:"currency"`
	}
	if !bind(c, &body) {
		return
	}
	tokenID, err := srv.backends.Marketplace.Buy(c.Request.Context(), body.Buyer, c.Param("token_id"), body.Price, body.Currency)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": tokenID})
}

func (srv *Server) listAll(c *gin.Context) {
	listings, err := srv.backends.Marketplace.ListAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (srv *Server) listTokens(c *gin.Context) {
	tokens, err := srv.backends.Marketplace.ListTokens(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (srv *Server) resetIDs(c *gin.Context) {
	if err := srv.backends.Marketplace.ResetIDs(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ids reset"})
}

func (srv *Server) originate(c *gin.Context) {
	var body struct {
		Borrower string         `json:"borrower"`
		TokenID  string         `json:"token_id"`
		Amount   int64          `json:"amount"`
		Currency model.Currency `json:"currency"`
	}
	if !bind(c, &body) {
		return
	}
	msg, err := srv.backends.Loans.Originate(c.Request.Context(), body.Borrower, body.TokenID, body.Amount, body.Currency)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (srv *Server) repay(c *gin.Context) {
	var body struct {
		Borrower string `json:"borrower"`
	}
	if !bind(c, &body) {
		return
	}
	msg, err := srv.backends.Loans.Repay(c.Request.Context(), body.Borrower, c.Param("token_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (srv *Server) listLoans(c *gin.Context) {
	loans, err := srv.backends.Loans.ListLoans(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (srv *Server) history(c *gin.Context) {
	records, err := srv.backends.History.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (srv *Server) resetHistory(c *gin.Context) {
	var body struct {
		Identity string `json:"identity"`
	}
	if !bind(c, &body) {
		return
	}
	if err := srv.backends.History.ResetHistory(c.Request.Context(), body.Identity); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "history reset"})
}

func (srv *Server) resetHistoryIDs(c *gin.Context) {
	if err := srv.backends.History.ResetHistoryIDs(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "history ids reset"})
}
