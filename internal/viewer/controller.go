package viewer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"gtfsviewer/internal/domain"
	"gtfsviewer/pkg/gtfsapi"
)

// ErrSuperseded is returned by an operation whose response arrived after a
// newer request of the same kind had been issued. The response was dropped.
var ErrSuperseded = errors.New("response superseded by a newer request")

// Fetcher is the remote GTFS API.
type Fetcher interface {
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)
	ListRoutes(ctx context.Context, datasetID string) ([]domain.Route, error)
	RouteDetail(ctx context.Context, datasetID, routeID, datetime string) (*domain.RouteDetail, error)
	Upload(ctx context.Context, filename string, r io.Reader) (*gtfsapi.UploadResult, error)
}

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a message shown to the user.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// User-facing messages for failures that carry no upstream message.
const (
	MsgDatasetsFailed = "Error loading GTFS datasets. Please try again."
	MsgRoutesFailed   = "Error loading routes. Please try again."
	MsgNoRoutes       = "No routes found for this dataset."
	MsgDetailFailed   = "Error loading route details. Please try again."
	MsgNoShape        = "Cannot display route: no shape data available."
	MsgNoValidPoints  = "Cannot display route: no valid coordinates found."
	MsgRenderFailed   = "Error displaying route on the map."
	MsgUploadFailed   = "Error uploading GTFS data. Please try again."
	MsgUploadDone     = "GTFS data uploaded successfully."
	MsgNotZip         = "File must be a ZIP archive."
)

// SelectionSnapshot is the persistable part of a controller.
type SelectionSnapshot struct {
	DatasetID string `json:"dataset_id"`
	RouteID   string `json:"route_id"`
	DateTime  string `json:"datetime"`
}

// State is everything the page needs to draw the sidebar.
type State struct {
	Datasets        []Option      `json:"datasets"`
	Routes          []Option      `json:"routes"`
	DatasetID       string        `json:"datasetId"`
	RouteID         string        `json:"routeId"`
	DateTime        string        `json:"datetime"`
	DatasetEnabled  bool          `json:"datasetEnabled"`
	RouteEnabled    bool          `json:"routeEnabled"`
	DateTimeEnabled bool          `json:"datetimeEnabled"`
	ViewEnabled     bool          `json:"viewEnabled"`
	Loading         bool          `json:"loading"`
	Upload          UploadState   `json:"upload"`
	Overlays        int           `json:"overlays"`
	LastRender      *RenderResult `json:"lastRender,omitempty"`
	Notice          *Notice       `json:"notice,omitempty"`
}

// Controller wires selection, fetching, rendering and uploading for one
// browser session. State changes happen under mu; network calls never hold
// it. Each request kind carries a sequence number and only the response to
// the latest request is applied.
type Controller struct {
	mu sync.Mutex

	fetcher   Fetcher
	selection Selection
	view      *MapViewController
	logger    *slog.Logger

	datasetSeq uint64
	routeSeq   uint64
	viewSeq    uint64

	loading    bool
	upload     UploadState
	lastRender *RenderResult
	notice     *Notice

	onSelect func(SelectionSnapshot)
}

func NewController(fetcher Fetcher, view *MapViewController, logger *slog.Logger) *Controller {
	return &Controller{
		fetcher: fetcher,
		view:    view,
		logger:  logger.With("component", "controller"),
		upload:  UploadIdle,
	}
}

// OnSelect registers fn to be called with the new selection after every
// change. fn runs outside the controller lock.
func (c *Controller) OnSelect(fn func(SelectionSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSelect = fn
}

// LoadDatasets fetches the dataset list and resets the selection to it.
func (c *Controller) LoadDatasets(ctx context.Context) error {
	c.mu.Lock()
	c.datasetSeq++
	seq := c.datasetSeq
	c.mu.Unlock()

	datasets, err := c.fetcher.ListDatasets(ctx)

	c.mu.Lock()
	if seq != c.datasetSeq {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.setNotice(NoticeError, userMessage(err, MsgDatasetsFailed))
		c.mu.Unlock()
		return err
	}

	c.selection.SetDatasets(datasets)
	c.routeSeq++
	c.invalidateView()
	c.notice = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("datasets loaded", "count", len(datasets))
	c.notifySelect(snap)
	return nil
}

// SelectDataset chooses a dataset, clears the map and loads its routes.
func (c *Controller) SelectDataset(ctx context.Context, datasetID string) error {
	c.mu.Lock()
	if err := c.selection.SelectDataset(datasetID); err != nil {
		c.mu.Unlock()
		return err
	}
	c.invalidateView()
	c.notice = nil
	c.routeSeq++
	seq := c.routeSeq
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifySelect(snap)
	if datasetID == "" {
		return nil
	}

	routes, err := c.fetcher.ListRoutes(ctx, datasetID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.routeSeq {
		c.logger.Debug("dropping stale route list", "dataset_id", datasetID)
		return ErrSuperseded
	}
	if err != nil {
		c.setNotice(NoticeError, userMessage(err, MsgRoutesFailed))
		return err
	}
	if !c.selection.SetRoutes(datasetID, routes) {
		return ErrSuperseded
	}
	if len(routes) == 0 {
		c.setNotice(NoticeInfo, MsgNoRoutes)
	}

	c.logger.Debug("routes loaded", "dataset_id", datasetID, "count", len(routes))
	return nil
}

// SelectRoute chooses a route of the selected dataset and clears the map.
func (c *Controller) SelectRoute(routeID string) error {
	c.mu.Lock()
	if err := c.selection.SelectRoute(routeID); err != nil {
		c.mu.Unlock()
		return err
	}
	c.invalidateView()
	c.notice = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifySelect(snap)
	return nil
}

func (c *Controller) SetDateTime(value string) error {
	c.mu.Lock()
	if err := c.selection.SetDateTime(value); err != nil {
		c.mu.Unlock()
		return err
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notifySelect(snap)
	return nil
}

// ViewRoute fetches the selected route for the selected time and draws it.
// The map is cleared before the request is sent.
func (c *Controller) ViewRoute(ctx context.Context) (RenderResult, error) {
	c.mu.Lock()
	datasetID := c.selection.DatasetID()
	routeID := c.selection.RouteID()
	datetime := c.selection.DateTime()

	switch {
	case datasetID == "":
		c.mu.Unlock()
		return RenderResult{}, ErrDatasetRequired
	case routeID == "":
		c.mu.Unlock()
		return RenderResult{}, ErrRouteRequired
	case datetime == "":
		c.mu.Unlock()
		return RenderResult{}, ErrDateTimeRequired
	}

	c.invalidateView()
	seq := c.viewSeq
	c.loading = true
	c.notice = nil
	c.mu.Unlock()

	detail, err := c.fetcher.RouteDetail(ctx, datasetID, routeID, datetime)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.viewSeq {
		c.logger.Debug("dropping stale route detail",
			"route_id", routeID,
			"seq", seq,
			"latest", c.viewSeq,
		)
		return RenderResult{}, ErrSuperseded
	}
	c.loading = false

	if err != nil {
		switch {
		case errors.Is(err, gtfsapi.ErrNoShape):
			c.setNotice(NoticeWarn, MsgNoShape)
		default:
			c.setNotice(NoticeError, userMessage(err, MsgDetailFailed))
		}
		return RenderResult{}, err
	}

	res, err := c.view.Render(detail)
	if err != nil {
		if errors.Is(err, ErrNoValidPoints) {
			c.setNotice(NoticeWarn, MsgNoValidPoints)
		} else {
			c.logger.Error("render failed", "route_id", routeID, "error", err)
			c.setNotice(NoticeError, MsgRenderFailed)
		}
		return res, err
	}

	c.lastRender = &res
	c.logger.Info("route displayed",
		"dataset_id", datasetID,
		"route_id", routeID,
		"datetime", datetime,
		"points", res.Points,
		"markers", res.Markers,
	)
	return res, nil
}

// ClearMap removes the drawn route without touching the selection.
func (c *Controller) ClearMap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateView()
}

// Restore replays a persisted selection: datasets are reloaded and each
// stored choice is applied while it is still valid.
func (c *Controller) Restore(ctx context.Context, snap SelectionSnapshot) error {
	if err := c.LoadDatasets(ctx); err != nil {
		return err
	}
	if snap.DatasetID == "" {
		return nil
	}
	if err := c.SelectDataset(ctx, snap.DatasetID); err != nil {
		c.logger.Debug("stored dataset no longer available", "dataset_id", snap.DatasetID, "error", err)
		return nil
	}
	if snap.RouteID == "" {
		return nil
	}
	if err := c.SelectRoute(snap.RouteID); err != nil {
		c.logger.Debug("stored route no longer available", "route_id", snap.RouteID, "error", err)
		return nil
	}
	if snap.DateTime != "" {
		if err := c.SetDateTime(snap.DateTime); err != nil {
			c.logger.Debug("stored datetime rejected", "datetime", snap.DateTime, "error", err)
		}
	}
	return nil
}

func (c *Controller) Selection() SelectionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Datasets:        c.selection.DatasetOptions(),
		Routes:          c.selection.RouteOptions(),
		DatasetID:       c.selection.DatasetID(),
		RouteID:         c.selection.RouteID(),
		DateTime:        c.selection.DateTime(),
		DatasetEnabled:  c.selection.DatasetEnabled(),
		RouteEnabled:    c.selection.RouteEnabled(),
		DateTimeEnabled: c.selection.DateTimeEnabled(),
		ViewEnabled:     c.selection.ViewEnabled(),
		Loading:         c.loading,
		Upload:          c.upload,
		Overlays:        c.view.OverlayCount(),
	}
	if c.lastRender != nil {
		r := *c.lastRender
		s.LastRender = &r
	}
	if c.notice != nil {
		n := *c.notice
		s.Notice = &n
	}
	return s
}

// invalidateView clears the map and makes any in-flight route detail stale.
// Caller holds mu.
func (c *Controller) invalidateView() {
	c.viewSeq++
	c.loading = false
	c.lastRender = nil
	c.view.Clear()
}

func (c *Controller) setNotice(level NoticeLevel, text string) {
	c.notice = &Notice{Level: level, Text: text}
}

func (c *Controller) snapshotLocked() SelectionSnapshot {
	return SelectionSnapshot{
		DatasetID: c.selection.DatasetID(),
		RouteID:   c.selection.RouteID(),
		DateTime:  c.selection.DateTime(),
	}
}

func (c *Controller) notifySelect(snap SelectionSnapshot) {
	c.mu.Lock()
	fn := c.onSelect
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// userMessage picks the upstream message for application errors and the
// generic fallback for everything else.
func userMessage(err error, fallback string) string {
	if msg, ok := gtfsapi.IsAPIError(err); ok {
		return msg
	}
	return fallback
}
