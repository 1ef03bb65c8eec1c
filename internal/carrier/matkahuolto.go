package carrier

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

type matkahuolto struct {
	f *fetcher
}

type mhResponse struct {
	Consignment []struct {
		Event []mhEvent `json:"event"`
	} `json:"consignment"`
}

type mhEvent struct {
	EventTime   text `json:"eventTime"`
	Status      text `json:"status"`
	Description text `json:"description"`
	Location    text `json:"location"`
}

func (a *matkahuolto) Track(ctx context.Context, code string) model.StatusResult {
	const name = "Matkahuolto"
	tpl := a.f.setting(ctx, config.KeyMHTrackURL)
	basic := a.f.setting(ctx, config.KeyMHBasic)
	if tpl == "" || basic == "" {
		return missingCredentials(name)
	}

	c := call{
		carrier:  name,
		function: "matkahuolto.track",
		code:     code,
		url:      expandURL(tpl, code),
		header:   http.Header{"Authorization": {"Basic " + basic}},
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body mhResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	var events []mhEvent
	if len(body.Consignment) > 0 {
		events = body.Consignment[0].Event
	}
	ev, ok := latestEvent(events, func(e mhEvent) string { return e.EventTime.String() }, a.f.deps.Location)
	if !ok {
		return inTransit(name)
	}
	return model.StatusResult{
		Carrier:  name,
		Found:    true,
		Status:   firstNonEmpty(ev.Status.String(), ev.Description.String()),
		Time:     a.f.formatTime(ev.EventTime.String()),
		Location: ev.Location.String(),
	}
}
