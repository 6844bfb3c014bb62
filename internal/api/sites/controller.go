package sites

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"mediasift/internal/http/catalog"
)

type (
	// Service is the slice of the catalog client needed to list the
	// source sites it knows about.
	Service interface {
		Sites(ctx context.Context, page int, take int) (*catalog.SitesResponse, error)
	}

	SitesController struct {
		service Service
	}
)

func New(service Service) *SitesController {
	return &SitesController{service: service}
}

func (controller *SitesController) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.list)
}

// list proxies the catalog site listing, paged via 'page' and 'take'
// query params.
func (controller *SitesController) list(ctx echo.Context) error {
	page := queryInt(ctx, "page", 1)
	take := queryInt(ctx, "take", 100)

	response, err := controller.service.Sites(ctx.Request().Context(), page, take)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return ctx.JSON(http.StatusOK, response)
}

func queryInt(ctx echo.Context, param string, fallback int) int {
	value, err := strconv.Atoi(ctx.QueryParam(param))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}
