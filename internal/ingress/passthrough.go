package ingress

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/aigateway/gateway/pkg/apierr"
)

// passthroughClient is shared across requests; fasthttp.Client pools its own
// connections internally, so one instance per process is correct.
var passthroughClient = &fasthttp.Client{}

// handlePassthrough implements the generic ANY /{service}/{...path} reverse
// proxy named in spec.md §6. It is intentionally minimal — a single
// configured target base URL per service name, no header rewriting beyond
// what fasthttp copies verbatim — since the spec frames this route as out of
// scope for the core gateway.
func (h *HTTPServer) handlePassthrough(ctx *fasthttp.RequestCtx) {
	service, _ := ctx.UserValue("service").(string)
	target, ok := h.store.ServiceRoute(service)
	if !ok {
		apierr.WriteFlat(ctx, fasthttp.StatusNotFound, "no service route configured for "+service)
		return
	}

	suffix, _ := ctx.UserValue("path").(string)
	url := strings.TrimRight(target, "/") + "/" + strings.TrimLeft(suffix, "/")
	if qs := ctx.URI().QueryString(); len(qs) > 0 {
		url += "?" + string(qs)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	ctx.Request.Header.CopyTo(&req.Header)
	req.Header.SetMethod(string(ctx.Method()))
	req.SetRequestURI(url)
	req.SetBody(ctx.PostBody())

	if err := passthroughClient.Do(req, resp); err != nil {
		apierr.WriteFlat(ctx, fasthttp.StatusBadGateway, "passthrough request failed: "+err.Error())
		return
	}

	resp.Header.CopyTo(&ctx.Response.Header)
	ctx.SetStatusCode(resp.StatusCode())
	ctx.SetBody(resp.Body())
}
