package carrier

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

type dhl struct {
	f *fetcher
}

type dhlResponse struct {
	Shipments []struct {
		Status *struct {
			Status     text `json:"status"`
			StatusCode text `json:"statusCode"`
		} `json:"status"`
		Events []dhlEvent `json:"events"`
	} `json:"shipments"`
}

type dhlEvent struct {
	Timestamp text `json:"timestamp"`
	Location  *struct {
		Address *struct {
			AddressLocality text `json:"addressLocality"`
		} `json:"address"`
		Name text `json:"name"`
	} `json:"location"`
}

func (e dhlEvent) place() string {
	if e.Location == nil {
		return ""
	}
	var locality string
	if e.Location.Address != nil {
		locality = e.Location.Address.AddressLocality.String()
	}
	return firstNonEmpty(locality, e.Location.Name.String())
}

func (a *dhl) Track(ctx context.Context, code string) model.StatusResult {
	const name = "DHL"
	tpl := a.f.setting(ctx, config.KeyDHLTrackURL)
	key := a.f.setting(ctx, config.KeyDHLAPIKey)
	if tpl == "" || key == "" {
		return missingCredentials(name)
	}

	c := call{
		carrier:  name,
		function: "dhl.track",
		code:     code,
		url:      expandURL(tpl, code),
		header:   http.Header{"DHL-API-Key": {key}},
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body dhlResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	if len(body.Shipments) == 0 || body.Shipments[0].Status == nil {
		return model.StatusResult{Carrier: name, Status: model.StatusNotFound}
	}
	ship := body.Shipments[0]
	res := model.StatusResult{
		Carrier: name,
		Found:   true,
		Status:  firstNonEmpty(ship.Status.Status.String(), ship.Status.StatusCode.String()),
	}
	if ev, ok := latestEvent(ship.Events, func(e dhlEvent) string { return e.Timestamp.String() }, a.f.deps.Location); ok {
		res.Time = a.f.formatTime(ev.Timestamp.String())
		res.Location = ev.place()
	}
	return res
}
