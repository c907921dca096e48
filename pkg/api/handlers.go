package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/azybler/route_finder/pkg/geo"
	"github.com/azybler/route_finder/pkg/routing"
)

// LivenessMessage is the body served at "/".
const LivenessMessage = "Router is working!"

// maxBodyBytes caps POST /api/v1/route bodies.
const maxBodyBytes = 1024

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	router routing.Router
}

// NewHandlers creates handlers with the given router.
func NewHandlers(router routing.Router) *Handlers {
	return &Handlers{router: router}
}

// HandleHome handles GET /.
func (h *Handlers) HandleHome(c *gin.Context) {
	c.String(http.StatusOK, LivenessMessage)
}

// HandleGetRoute handles GET /get-route. The response is the route as a
// JSON array of [lat, lon] pairs.
func (h *Handlers) HandleGetRoute(c *gin.Context) {
	var coords [4]float64
	for i, name := range []string{"origin_lat", "origin_lon", "destination_lat", "destination_lon"} {
		v, err := strconv.ParseFloat(c.Query(name), 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid_request", name+" must be a number", routing.KindInvalidInput, name)
			return
		}
		coords[i] = v
	}
	origin := routing.LatLng{Lat: coords[0], Lng: coords[1]}
	destination := routing.LatLng{Lat: coords[2], Lng: coords[3]}

	route, err := h.router.Route(c.Request.Context(), origin, destination)
	if err != nil {
		writeRouteError(c, err)
		return
	}

	points := make([][2]float64, len(route.Points))
	for i, p := range route.Points {
		points[i] = [2]float64{p.Lat, p.Lng}
	}
	c.JSON(http.StatusOK, points)
}

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(c *gin.Context) {
	// Enforce Content-Type.
	if c.ContentType() != "application/json" {
		writeError(c, http.StatusBadRequest, "invalid_request", "Content-Type must be application/json", routing.KindInvalidInput, "")
		return
	}

	// Parse request.
	var req RouteRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "request body must be a JSON object with start and end coordinates", routing.KindInvalidInput, "")
		return
	}

	// Validate coordinates.
	if err := validateCoord(req.Start); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_coordinates", "start: "+err.Error(), routing.KindInvalidInput, "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_coordinates", "end: "+err.Error(), routing.KindInvalidInput, "end")
		return
	}

	// Route.
	result, err := h.router.Route(c.Request.Context(),
		routing.LatLng{Lat: req.Start.Lat, Lng: req.Start.Lng},
		routing.LatLng{Lat: req.End.Lat, Lng: req.End.Lng},
	)
	if err != nil {
		writeRouteError(c, err)
		return
	}

	// Build response.
	geom := make([]LatLngJSON, len(result.Points))
	for i, ll := range result.Points {
		geom[i] = LatLngJSON{Lat: ll.Lat, Lng: ll.Lng}
	}
	c.JSON(http.StatusOK, RouteResponse{
		TotalDistanceMeters: result.DistanceMeters,
		Segments: []SegmentJSON{{
			DistanceMeters: result.DistanceMeters,
			Geometry:       geom,
		}},
		NodeIDs: result.NodeIDs,
	})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	s := h.router.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		NumNodes:      s.NumNodes,
		NumEdges:      s.NumEdges,
		NumComponents: s.NumComponents,
		Source:        s.Source,
		LoadedAt:      s.LoadedAt,
	})
}

func validateCoord(ll LatLngJSON) error {
	return geo.Validate(ll.Lat, ll.Lng)
}

// statusFor maps a routing failure to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch kind := routing.KindOf(err); {
	case errors.Is(err, routing.ErrPointTooFar):
		return http.StatusUnprocessableEntity, "point_too_far_from_road"
	case kind == routing.KindInvalidInput:
		return http.StatusBadRequest, "invalid_coordinates"
	case kind == routing.KindNoPath:
		return http.StatusNotFound, "no_route_found"
	case kind == routing.KindTimeout:
		return http.StatusServiceUnavailable, "request_timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// messageFor returns the text shown to the caller. Invalid input and
// unreachable destinations describe the cause; timeouts and internal
// failures stay generic and are only logged in full.
func messageFor(err error) string {
	kind := routing.KindOf(err)
	switch kind {
	case routing.KindInvalidInput, routing.KindNoPath:
		var re *routing.RouteError
		if errors.As(err, &re) && re.Err != nil {
			return re.Err.Error()
		}
		return err.Error()
	case routing.KindTimeout:
		return "route search did not finish in time"
	default:
		return "internal server error"
	}
}

func writeRouteError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)
	writeError(c, status, code, messageFor(err), routing.KindOf(err), "")
}

func writeError(c *gin.Context, status int, code, message string, kind routing.Kind, field string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: code, Message: message, Kind: kind.String(), Field: field})
}
