package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jerry-enebeli/rwa"
	"github.com/jerry-enebeli/rwa/api/middleware"
	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

type Api struct {
	platform *rwa.Platform
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	identities := router.Group("/identities/:id")
	identities.POST("/deposits", a.Deposit)
	identities.POST("/listings", a.CreateListing)
	identities.POST("/purchases", a.BuyToken)
	identities.POST("/transfers", a.Transfer)
	identities.POST("/loans", a.Borrow)
	identities.POST("/loans/:token_id/repay", a.RepayLoan)
	identities.POST("/reset", a.Reset)
	identities.GET("/view", a.GetView)
	identities.POST("/view/refresh", a.RefreshView)

	router.GET("/currencies", a.GetCurrencies)
	return a.router
}

func NewAPI(p *rwa.Platform) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{platform: p, router: r}
}

// errorResponse is the body of every failed request. View is set when the
// action ran far enough to refresh it.
type errorResponse struct {
	Code    apierror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Details interface{}        `json:"details,omitempty"`
	View    *model.View        `json:"view,omitempty"`
}

func respondError(c *gin.Context, err error, view *model.View) {
	apiErr := apierror.As(err, apierror.ErrInternalServer)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), errorResponse{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
		View:    view,
	})
}

func invalidInput(c *gin.Context, err error) {
	respondError(c, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil), nil)
}

// respondAction writes an action result or its failure.
func respondAction(c *gin.Context, status int, result *model.ActionResult, err error) {
	if err != nil {
		var view *model.View
		if result != nil {
			view = result.View
		}
		respondError(c, err, view)
		return
	}
	c.JSON(status, result)
}

func identityParam(c *gin.Context) (string, bool) {
	id, passed := c.Params.Get("id")
	if !passed || id == "" {
		invalidInput(c, errors.New("id is required. pass id in the route /identities/:id"))
		return "", false
	}
	return id, true
}

func (a Api) GetCurrencies(c *gin.Context) {
	c.JSON(http.StatusOK, a.platform.Currencies())
}
