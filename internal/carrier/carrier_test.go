package carrier

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Posti", IDPosti},
		{"ITELLA Logistics", IDPosti},
		{"GLS Finland", IDGLS},
		{"DHL Express", IDDHL},
		{"Bring Parcels", IDBring},
		{"Matkahuolto", IDMatkahuolto},
		{"MH Lähellä", IDMatkahuolto},
		{"FedEx", IDOther},
		{"", IDOther},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.label))
		})
	}
}

func TestRegistry_UnknownCarrier(t *testing.T) {
	f := newFixture(t, nil)
	res := f.reg.Track(context.Background(), "FedEx", "123456")
	assert.Equal(t, model.StatusUnknownCarrier, res.Status)
	assert.Equal(t, "FedEx", res.Carrier)
	assert.Empty(t, f.diag.all())
}

func TestMissingCredentials(t *testing.T) {
	f := newFixture(t, nil)
	for _, label := range []string{"Posti", "GLS", "DHL", "Bring", "Matkahuolto"} {
		res := f.reg.Track(context.Background(), label, "CODE1234")
		assert.Equal(t, model.StatusMissingCredentials, res.Status, label)
		assert.False(t, res.Found)
	}
	assert.Empty(t, f.diag.all(), "no call, no diagnostic")
}

func TestMatkahuolto_LatestEventWins(t *testing.T) {
	var gotAuth, gotPath string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RawQuery
		jsonBody(w, 200, `{"consignment":[{"event":[
			{"eventTime":"2024-04-01T08:00:00Z","status":"Picked up","location":"Tampere"},
			{"eventTime":"2024-04-01T12:00:00Z","description":"Arrived","location":"Helsinki"},
			{"eventTime":"2024-04-01T12:00:00Z","status":"Ready for pickup","location":"Espoo"},
			{"eventTime":"2024-03-30T12:00:00Z","status":"Registered"}
		]}]}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyMHTrackURL: srv.URL + "/tracking?ids={{code}}",
		config.KeyMHBasic:    "dXNlcjpwYXNz",
	})

	res := f.reg.Track(context.Background(), "matkahuolto", "MH 1/2")
	assert.Equal(t, "Basic dXNlcjpwYXNz", gotAuth)
	assert.Equal(t, "ids=MH%201%2F2", gotPath)
	assert.True(t, res.Found)
	assert.Equal(t, "Ready for pickup", res.Status, "ties go to the later event")
	assert.Equal(t, "2024-04-01 12:00:00", res.Time)
	assert.Equal(t, "Espoo", res.Location)
	assert.Equal(t, "Matkahuolto", res.Carrier)
}

func TestRateLimit_RetryAfterSeconds(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		jsonBody(w, http.StatusTooManyRequests, `{"title":"Too many requests"}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyDHLTrackURL: srv.URL + "?trackingNumber={{code}}",
		config.KeyDHLAPIKey:   "k",
	})

	res := f.reg.Track(context.Background(), "DHL", "1234567890")
	assert.Equal(t, model.StatusRateLimited, res.Status)
	require.NotNil(t, res.RetryAfter)
	assert.Equal(t, 30, *res.RetryAfter)
	assert.True(t, res.RateLimited())

	entries := f.diag.all()
	require.Len(t, entries, 1)
	assert.Equal(t, 429, entries[0].HTTPCode)
	assert.Equal(t, model.StatusRateLimited, entries[0].Tag)
	assert.Equal(t, "dhl.track", entries[0].Function)
	assert.Equal(t, "1234567890", entries[0].Code)
	require.NotNil(t, entries[0].RetryAfter)
}

func TestRetryAfterParsing(t *testing.T) {
	h := func(kv ...string) http.Header {
		out := http.Header{}
		for i := 0; i < len(kv); i += 2 {
			out.Set(kv[i], kv[i+1])
		}
		return out
	}
	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"seconds", h("Retry-After", "45"), 45},
		{"zero floors to one", h("Retry-After", "0"), 1},
		{"http date", h("Retry-After", testNow.Add(2*time.Minute).Format(http.TimeFormat)), 120},
		{"reset delta", h("X-RateLimit-Reset", "12"), 12},
		{"reset epoch", h("X-RateLimit-Reset", "1712052060"), 60},
		{"garbage", h("Retry-After", "soon"), 1},
		{"absent", h(), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfter(tt.header, testNow))
		})
	}
}

func TestHTTPErrorsMapToValues(t *testing.T) {
	long := strings.Repeat("x", 3000)
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
		wantRaw    int
	}{
		{"not found", 404, `{"detail":"no such shipment"}`, model.StatusNotFound, 0},
		{"server error", 500, long, "HTTP_500", rawSnippetLen},
		{"bad body", 200, `{"consignment":`, model.StatusParsingError, len(`{"consignment":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				jsonBody(w, tt.status, tt.body)
			})
			f := newFixture(t, map[string]string{
				config.KeyMHTrackURL: srv.URL + "/{{code}}",
				config.KeyMHBasic:    "b",
			})
			res := f.reg.Track(context.Background(), "MH", "MH123456")
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.False(t, res.Found)
			assert.Len(t, res.Raw, tt.wantRaw)

			entries := f.diag.all()
			require.Len(t, entries, 1)
			assert.LessOrEqual(t, len(entries[0].BodySnippet), diagSnippetLen)
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {})
	url := srv.URL
	srv.Close()

	f := newFixture(t, map[string]string{
		config.KeyBringTrackURL: url + "?q={{code}}",
		config.KeyBringUID:      "u",
		config.KeyBringKey:      "k",
	})
	res := f.reg.Track(context.Background(), "Bring", "70000000")
	assert.Equal(t, model.StatusNetworkError, res.Status)
	require.Len(t, f.diag.all(), 1)
	assert.Equal(t, 0, f.diag.all()[0].HTTPCode)
}

func TestPosti_OAuthTokenCached(t *testing.T) {
	var tokenCalls atomic.Int32
	basic := base64.StdEncoding.EncodeToString([]byte("client:secret"))

	tokenSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			jsonBody(w, 401, `{"error":"invalid_client"}`)
			return
		}
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "shipment.read", r.PostForm.Get("scope"))
		jsonBody(w, 200, `{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`)
	})
	trackSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			jsonBody(w, 401, `{}`)
			return
		}
		jsonBody(w, 200, `{"shipments":[{"events":[
			{"timestamp":"2024-04-01T09:00:00+03:00","description":{"fi":"Toimitettu","en":"Delivered"},"locationCode":"00100"},
			{"timestamp":"2024-03-31T09:00:00+03:00","eventType":"SENT"}
		]}]}`)
	})

	f := newFixture(t, map[string]string{
		config.KeyPostiTokenURL: tokenSrv.URL,
		config.KeyPostiBasic:    basic,
		config.KeyPostiTrackURL: trackSrv.URL + "/{{code}}",
	})

	for i := 0; i < 2; i++ {
		res := f.reg.Track(context.Background(), "Posti", "JJFI6424")
		require.Equal(t, "Delivered", res.Status)
		assert.True(t, res.Found)
		assert.Equal(t, "2024-04-01 06:00:00", res.Time)
		assert.Equal(t, "00100", res.Location)
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token reused from the store")

	tok, ok, _ := f.cfg.Lookup(context.Background(), "POSTI_TOKEN")
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)
}

func TestPosti_ExpiringTokenRefetched(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		jsonBody(w, 200, `{"access_token":"fresh","expires_in":3600}`)
	})
	trackSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		jsonBody(w, 200, `{"shipments":[]}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyPostiTokenURL: tokenSrv.URL,
		config.KeyPostiBasic:    base64.StdEncoding.EncodeToString([]byte("a:b")),
		config.KeyPostiTrackURL: trackSrv.URL + "/{{code}}",
		"POSTI_TOKEN":           "stale",
		"POSTI_EXPIRES":         "1712052030", // testNow + 30s
	})

	res := f.reg.Track(context.Background(), "posti", "JJFI0001")
	assert.Equal(t, model.StatusInTransit, res.Status, "no events means in transit")
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestPosti_TokenFailure(t *testing.T) {
	tokenSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, 401, `{"error":"invalid_client"}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyPostiTokenURL: tokenSrv.URL,
		config.KeyPostiBasic:    base64.StdEncoding.EncodeToString([]byte("a:b")),
		config.KeyPostiTrackURL: "http://127.0.0.1:1/{{code}}",
	})

	res := f.reg.Track(context.Background(), "posti", "JJFI0001")
	assert.Equal(t, "HTTP_401", res.Status)
	entries := f.diag.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "posti.token", entries[0].Function)
}

func TestGLS_FinnishAPI(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "S42", r.Header.Get("x-ib-sender-id"))
		assert.Equal(t, http.MethodPost, r.Method)
		jsonBody(w, 200, `{"statuses":[{"history":[
			{"dateTime":"02.04.2024 08:15","statusText":"In delivery","location":"Vantaa"},
			{"dateTime":"01.04.2024 18:00","statusText":"At hub"}
		]}]}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyGLSFITrackURL: srv.URL + "/{{code}}",
		config.KeyGLSFIAPIKey:   "key-1",
		config.KeyGLSFISenderID: "S42",
		config.KeyGLSFIMethod:   "post",
	})

	res := f.reg.Track(context.Background(), "GLS", "GLS00001")
	assert.Equal(t, "In delivery", res.Status)
	assert.Equal(t, "2024-04-02 08:15:00", res.Time)
	assert.Equal(t, "Vantaa", res.Location)
}

func TestGLS_GlobalOAuth(t *testing.T) {
	tokenSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		jsonBody(w, 200, `{"access_token":"g-tok"}`)
	})
	trackSrv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer g-tok", r.Header.Get("Authorization"))
		jsonBody(w, 200, `{"track":{"shipment":[{"events":[
			{"date":"2024-04-01T10:00:00Z","eventName":"INBOUND","location":"Neuenstein"}
		]}]}}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyGLSTokenURL: tokenSrv.URL,
		config.KeyGLSBasic:    base64.StdEncoding.EncodeToString([]byte("id:sec")),
		config.KeyGLSTrackURL: trackSrv.URL + "/{{code}}",
	})

	res := f.reg.Track(context.Background(), "gls", "GLS00002")
	assert.Equal(t, "INBOUND", res.Status)
	assert.Equal(t, "Neuenstein", res.Location)

	exp, ok, _ := f.cfg.Lookup(context.Background(), "GLS_EXPIRES")
	require.True(t, ok)
	assert.NotEmpty(t, exp, "missing expires_in still stores an expiry")
}

func TestDHL(t *testing.T) {
	t.Run("status and latest event", func(t *testing.T) {
		srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "secret", r.Header.Get("DHL-API-Key"))
			jsonBody(w, 200, `{"shipments":[{"status":{"statusCode":"delivered","status":"DELIVERED"},
				"events":[
					{"timestamp":"2024-04-01T15:00:00Z","location":{"address":{"addressLocality":"Oulu"}}},
					{"timestamp":"2024-03-31T15:00:00Z","location":{"name":"Hub"}}
				]}]}`)
		})
		f := newFixture(t, map[string]string{config.KeyDHLTrackURL: srv.URL + "?n={{code}}", config.KeyDHLAPIKey: "secret"})
		res := f.reg.Track(context.Background(), "DHL", "JD0001")
		assert.True(t, res.Found)
		assert.Equal(t, "DELIVERED", res.Status)
		assert.Equal(t, "Oulu", res.Location)
		assert.Equal(t, "2024-04-01 15:00:00", res.Time)
	})

	t.Run("no shipment is not found", func(t *testing.T) {
		srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
			jsonBody(w, 200, `{"shipments":[]}`)
		})
		f := newFixture(t, map[string]string{config.KeyDHLTrackURL: srv.URL, config.KeyDHLAPIKey: "secret"})
		res := f.reg.Track(context.Background(), "DHL", "JD0002")
		assert.Equal(t, model.StatusNotFound, res.Status)
	})
}

func TestBring_HeadersAndEmptyEvents(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.Header.Get("X-MyBring-API-Uid"))
		assert.Equal(t, "k1", r.Header.Get("X-MyBring-API-Key"))
		assert.Equal(t, "https://example.com", r.Header.Get("X-Bring-Client-URL"))
		assert.Equal(t, "2", r.Header.Get("api-version"))
		jsonBody(w, 200, `{"consignmentSet":[{"packageSet":[{"eventSet":[]}]}]}`)
	})
	f := newFixture(t, map[string]string{
		config.KeyBringTrackURL: srv.URL + "?q={{code}}",
		config.KeyBringUID:      "u1",
		config.KeyBringKey:      "k1",
	})
	res := f.reg.Track(context.Background(), "Bring", "70701234")
	assert.True(t, res.Found)
	assert.Equal(t, model.StatusInTransit, res.Status)
}

func TestText_Decoding(t *testing.T) {
	var v struct {
		A text `json:"a"`
		B text `json:"b"`
		C text `json:"c"`
		D text `json:"d"`
		E text `json:"e"`
	}
	require.NoError(t, jsonUnmarshal(`{"a":"x","b":12,"c":{"sv":"Levererad","fi":"Toimitettu"},"d":[1],"e":null}`, &v))
	assert.Equal(t, "x", v.A.String())
	assert.Equal(t, "12", v.B.String())
	assert.Equal(t, "Toimitettu", v.C.String())
	assert.Equal(t, "", v.D.String())
	assert.Equal(t, "", v.E.String())
}

func TestDecodeBasic(t *testing.T) {
	id, secret, ok := decodeBasic(base64.StdEncoding.EncodeToString([]byte("id:se:cret")))
	assert.True(t, ok)
	assert.Equal(t, "id", id)
	assert.Equal(t, "se:cret", secret)

	_, _, ok = decodeBasic("not base64!")
	assert.False(t, ok)
}
