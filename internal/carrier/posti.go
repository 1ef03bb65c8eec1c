package carrier

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

type posti struct {
	f      *fetcher
	tokens *tokenCache
}

type postiResponse struct {
	Shipments []struct {
		Events []postiEvent `json:"events"`
	} `json:"shipments"`
}

type postiEvent struct {
	Timestamp    text `json:"timestamp"`
	Description  text `json:"description"`
	EventType    text `json:"eventType"`
	LocationCode text `json:"locationCode"`
	Location     text `json:"location"`
}

func (a *posti) Track(ctx context.Context, code string) model.StatusResult {
	const name = "Posti"
	tpl := a.f.setting(ctx, config.KeyPostiTrackURL)
	if tpl == "" {
		return missingCredentials(name)
	}

	header := http.Header{}
	tokenURL := a.f.setting(ctx, config.KeyPostiTokenURL)
	basic := a.f.setting(ctx, config.KeyPostiBasic)
	if tokenURL != "" && basic != "" {
		tok, failed := a.tokens.Token(ctx, tokenRequest{
			carrier:  name,
			tokenURL: tokenURL,
			basic:    basic,
			scopes:   []string{"shipment.read"},
		})
		if failed != nil && failed.status == model.StatusMissingCredentials {
			return missingCredentials(name)
		}
		if failed != nil {
			return a.f.fail(ctx, call{carrier: name, function: "posti.token", code: code}, *failed)
		}
		header.Set("Authorization", "Bearer "+tok)
	}

	c := call{
		carrier:  name,
		function: "posti.track",
		code:     code,
		url:      expandURL(tpl, code),
		header:   header,
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body postiResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	var events []postiEvent
	if len(body.Shipments) > 0 {
		events = body.Shipments[0].Events
	}
	ev, ok := latestEvent(events, func(e postiEvent) string { return e.Timestamp.String() }, a.f.deps.Location)
	if !ok {
		return inTransit(name)
	}
	return model.StatusResult{
		Carrier:  name,
		Found:    true,
		Status:   firstNonEmpty(ev.Description.String(), ev.EventType.String()),
		Time:     a.f.formatTime(ev.Timestamp.String()),
		Location: firstNonEmpty(ev.LocationCode.String(), ev.Location.String()),
	}
}
