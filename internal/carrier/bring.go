package carrier

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

const defaultBringClientURL = "https://example.com"

type bring struct {
	f *fetcher
}

type bringResponse struct {
	ConsignmentSet []struct {
		PackageSet []struct {
			EventSet []bringEvent `json:"eventSet"`
		} `json:"packageSet"`
	} `json:"consignmentSet"`
}

type bringEvent struct {
	DateIso     text `json:"dateIso"`
	Description text `json:"description"`
	Status      text `json:"status"`
	PostalCode  text `json:"postalCode"`
	CountryCode text `json:"countryCode"`
	City        text `json:"city"`
}

func (a *bring) Track(ctx context.Context, code string) model.StatusResult {
	const name = "Bring"
	tpl := a.f.setting(ctx, config.KeyBringTrackURL)
	uid := a.f.setting(ctx, config.KeyBringUID)
	key := a.f.setting(ctx, config.KeyBringKey)
	if tpl == "" || uid == "" || key == "" {
		return missingCredentials(name)
	}

	c := call{
		carrier:  name,
		function: "bring.track",
		code:     code,
		url:      expandURL(tpl, code),
		header: http.Header{
			"X-Mybring-Api-Uid":  {uid},
			"X-Mybring-Api-Key":  {key},
			"X-Bring-Client-Url": {config.StringOr(ctx, a.f.deps.Config, config.KeyBringClientURL, defaultBringClientURL)},
			"Api-Version":        {"2"},
		},
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body bringResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	var events []bringEvent
	if len(body.ConsignmentSet) > 0 && len(body.ConsignmentSet[0].PackageSet) > 0 {
		events = body.ConsignmentSet[0].PackageSet[0].EventSet
	}
	ev, ok := latestEvent(events, func(e bringEvent) string { return e.DateIso.String() }, a.f.deps.Location)
	if !ok {
		return inTransit(name)
	}
	return model.StatusResult{
		Carrier:  name,
		Found:    true,
		Status:   firstNonEmpty(ev.Description.String(), ev.Status.String()),
		Time:     a.f.formatTime(ev.DateIso.String()),
		Location: firstNonEmpty(ev.PostalCode.String(), ev.CountryCode.String(), ev.City.String()),
	}
}
