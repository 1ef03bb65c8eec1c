package carrier

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

// gls prefers the Finnish API keyed by x-api-key and falls back to the
// global OAuth API when GLS_FI_TRACK_URL is unset.
type gls struct {
	f      *fetcher
	tokens *tokenCache
}

type glsFIResponse struct {
	Statuses []struct {
		History []glsFIEvent `json:"history"`
	} `json:"statuses"`
}

type glsFIEvent struct {
	DateTime   text `json:"dateTime"`
	StatusText text `json:"statusText"`
	Status     text `json:"status"`
	Location   text `json:"location"`
}

type glsGlobalResponse struct {
	Track struct {
		Shipment []struct {
			Events []glsGlobalEvent `json:"events"`
		} `json:"shipment"`
	} `json:"track"`
}

type glsGlobalEvent struct {
	Date              text `json:"date"`
	StatusDescription text `json:"statusDescription"`
	Status            text `json:"status"`
	EventName         text `json:"eventName"`
	Location          text `json:"location"`
}

const glsName = "GLS"

func (a *gls) Track(ctx context.Context, code string) model.StatusResult {
	if tpl := a.f.setting(ctx, config.KeyGLSFITrackURL); tpl != "" {
		return a.trackFI(ctx, tpl, code)
	}
	return a.trackGlobal(ctx, code)
}

func (a *gls) trackFI(ctx context.Context, tpl, code string) model.StatusResult {
	header := http.Header{"X-Api-Key": {a.f.setting(ctx, config.KeyGLSFIAPIKey)}}
	if sender := a.f.setting(ctx, config.KeyGLSFISenderID); sender != "" {
		header.Set("X-Ib-Sender-Id", sender)
	}
	method := strings.ToUpper(config.StringOr(ctx, a.f.deps.Config, config.KeyGLSFIMethod, http.MethodGet))

	c := call{
		carrier:  glsName,
		function: "gls.fi.track",
		code:     code,
		method:   method,
		url:      expandURL(tpl, code),
		header:   header,
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body glsFIResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	var events []glsFIEvent
	if len(body.Statuses) > 0 {
		events = body.Statuses[0].History
	}
	ev, ok := latestEvent(events, func(e glsFIEvent) string { return e.DateTime.String() }, a.f.deps.Location)
	if !ok {
		return inTransit(glsName)
	}
	return model.StatusResult{
		Carrier:  glsName,
		Found:    true,
		Status:   firstNonEmpty(ev.StatusText.String(), ev.Status.String()),
		Time:     a.f.formatTime(ev.DateTime.String()),
		Location: ev.Location.String(),
	}
}

func (a *gls) trackGlobal(ctx context.Context, code string) model.StatusResult {
	tokenURL := a.f.setting(ctx, config.KeyGLSTokenURL)
	basic := a.f.setting(ctx, config.KeyGLSBasic)
	tpl := a.f.setting(ctx, config.KeyGLSTrackURL)
	if tokenURL == "" || basic == "" || tpl == "" {
		return missingCredentials(glsName)
	}

	tok, failed := a.tokens.Token(ctx, tokenRequest{carrier: glsName, tokenURL: tokenURL, basic: basic})
	if failed != nil && failed.status == model.StatusMissingCredentials {
		return missingCredentials(glsName)
	}
	if failed != nil {
		return a.f.fail(ctx, call{carrier: glsName, function: "gls.token", code: code}, *failed)
	}

	c := call{
		carrier:  glsName,
		function: "gls.track",
		code:     code,
		url:      expandURL(tpl, code),
		header:   http.Header{"Authorization": {"Bearer " + tok}},
	}
	r := a.f.do(ctx, c)
	if !r.ok() {
		return a.f.fail(ctx, c, r)
	}

	var body glsGlobalResponse
	if err := json.Unmarshal(r.body, &body); err != nil {
		return a.f.parseFailure(ctx, c, r)
	}
	var events []glsGlobalEvent
	if len(body.Track.Shipment) > 0 {
		events = body.Track.Shipment[0].Events
	}
	ev, ok := latestEvent(events, func(e glsGlobalEvent) string { return e.Date.String() }, a.f.deps.Location)
	if !ok {
		return inTransit(glsName)
	}
	return model.StatusResult{
		Carrier:  glsName,
		Found:    true,
		Status:   firstNonEmpty(ev.StatusDescription.String(), ev.Status.String(), ev.EventName.String()),
		Time:     a.f.formatTime(ev.Date.String()),
		Location: ev.Location.String(),
	}
}
