package oracle

import (
	"context"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Gateway fetches the latest data packages of a data service.
type Gateway struct {
	client    *resty.Client
	serviceId string
}

func NewGateway(baseURL, serviceId string, timeout time.Duration) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Gateway{client: client, serviceId: serviceId}
}

func (g *Gateway) Latest(ctx context.Context) (LatestResponse, error) {
	var (
		out     LatestResponse
		errResp ErrorResponse
	)
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errResp).
		Get("/data-packages/latest/" + url.PathEscape(g.serviceId))
	if err != nil {
		return nil, errors.Wrap(err, "oracle/gateway: latest")
	}
	if resp.IsError() {
		description := errResp.Message
		if description == "" {
			description = errResp.Error
		}
		return nil, &GatewayAPIError{
			StatusCode:  resp.StatusCode(),
			Description: description,
			RawBody:     resp.String(),
		}
	}
	return out, nil
}
