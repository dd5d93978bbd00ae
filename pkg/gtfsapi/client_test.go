package gtfsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second, testLogger())
}

func TestListDatasets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/gtfs-folders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "name": "Metro Transit"}, {"id": "2", "name": "Regional"}]`))
	})

	datasets, err := c.ListDatasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "1", datasets[0].ID.String())
	assert.Equal(t, "Metro Transit", datasets[0].Name)
	assert.Equal(t, "2", datasets[1].ID.String())
}

func TestListDatasetsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})

	datasets, err := c.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, datasets)
	assert.Empty(t, datasets)
}

func TestListRoutesWrongContentType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/routes", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("folder"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("\xef\xbb\xbf" + `[{"route_id": 42, "route_short_name": "42", "route_long_name": "Crosstown"}]`))
	})

	routes, err := c.ListRoutes(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "42", routes[0].ID.String())
	assert.Equal(t, "42 - Crosstown", routes[0].Label())
}

func TestListRoutesRequiresDataset(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.ListRoutes(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, called)
}

func TestErrorEnvelope(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`{"error": "Folder not found"}`))
			})

			_, err := c.ListRoutes(context.Background(), "9")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "Folder not found", apiErr.Message)
			assert.Equal(t, status, apiErr.StatusCode)

			msg, ok := IsAPIError(err)
			assert.True(t, ok)
			assert.Equal(t, "Folder not found", msg)
		})
	}
}

func TestRouteDetailNonStringErrorField(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"object with message", `{"error": {"message": "Route not running"}, "shape": [{"lat": 1, "lng": 2}]}`, "Route not running"},
		{"object without message", `{"error": {"code": 7}, "shape": [{"lat": 1, "lng": 2}]}`, `{"code": 7}`},
		{"number", `{"error": 500, "shape": [{"lat": 1, "lng": 2}]}`, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			detail, err := c.RouteDetail(context.Background(), "1", "42", "2024-03-01 08:30")
			assert.Nil(t, detail)

			msg, ok := IsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestEmptyErrorFieldIsIgnored(t *testing.T) {
	for _, value := range []string{`null`, `""`, `false`, `{}`} {
		t.Run(value, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error": ` + value + `, "route": {}, "shape": [{"lat": 1, "lng": 2}]}`))
			})

			detail, err := c.RouteDetail(context.Background(), "1", "42", "2024-03-01 08:30")
			require.NoError(t, err)
			assert.Len(t, detail.Shape, 1)
		})
	}
}

func TestNon2xxWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.ListDatasets(context.Background())
	require.Error(t, err)

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, http.StatusBadGateway, tErr.StatusCode)
	assert.Equal(t, "upstream down", tErr.Body)

	_, ok := IsAPIError(err)
	assert.False(t, ok)
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1,`))
	})

	_, err := c.ListDatasets(context.Background())
	require.Error(t, err)

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Contains(t, tErr.Error(), "decoding response")
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, testLogger())
	_, err := c.ListDatasets(context.Background())

	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Zero(t, tErr.StatusCode)
}

func TestRouteDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/route-details", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("folder"))
		assert.Equal(t, "42", q.Get("route_id"))
		assert.Equal(t, "2024-03-01 08:30", q.Get("datetime"))

		w.Write([]byte(`{
			"route": {"route_id": 42, "route_color": "FF0000"},
			"shape": [{"lat": 45.0, "lng": -93.0}, {"lat": "45.1", "lng": "-93.1"}],
			"stops": [{"id": 7, "name": "Main St", "lat": 45.05, "lng": -93.05}]
		}`))
	})

	detail, err := c.RouteDetail(context.Background(), "1", "42", "2024-03-01 08:30")
	require.NoError(t, err)
	assert.Equal(t, "FF0000", detail.Route.Color)
	require.Len(t, detail.Shape, 2)
	require.Len(t, detail.Stops, 1)
	assert.Equal(t, "7", detail.Stops[0].ID.String())

	lat, ok := detail.Shape[1].Lat.Float()
	require.True(t, ok)
	assert.InDelta(t, 45.1, lat, 1e-9)
}

func TestRouteDetailWithoutShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"route": {}, "shape": [], "stops": [{"id": 1, "name": "A", "lat": 1, "lng": 2}]}`))
	})

	_, err := c.RouteDetail(context.Background(), "1", "42", "2024-03-01 08:30")
	assert.ErrorIs(t, err, ErrNoShape)
}

func TestRouteDetailWithoutStops(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"route": {}, "shape": [{"lat": 1, "lng": 2}]}`))
	})

	detail, err := c.RouteDetail(context.Background(), "1", "42", "2024-03-01 08:30")
	require.NoError(t, err)
	assert.Empty(t, detail.Stops)
}

func TestRouteDetailRequiresArguments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.RouteDetail(context.Background(), "1", "", "2024-03-01 08:30")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "feed.zip", header.Filename)
		assert.Equal(t, "PK-zip-bytes", string(data))

		w.Write([]byte(`{"success": true, "folder_id": 17}`))
	})

	res, err := c.Upload(context.Background(), "feed.zip", strings.NewReader("PK-zip-bytes"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "17", res.FolderID.String())
}

func TestUploadRejectedByServer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad zip"}`))
	})

	_, err := c.Upload(context.Background(), "feed.zip", strings.NewReader("not a zip"))
	msg, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "bad zip", msg)
}

func TestUploadRequiresFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Upload(context.Background(), "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
