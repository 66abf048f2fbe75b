// FilePath: internal/repository/repository.sensor.go
package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/geo"
	"github.com/itsatony/sensorhub/internal/models"
	"github.com/sourcegraph/conc/pool"
	nuts "github.com/vaudience/go-nuts"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Skip reasons reported to the Observer by FindNearby
const (
	SkipOrphanMetadata = "orphan_metadata"
	SkipNoTelemetry    = "no_telemetry"
	SkipStale          = "stale"
	SkipTimeout        = "timeout"
	SkipInconsistent   = "inconsistent"
	SkipStoreError     = "store_error"
)

var errStaleTelemetry = stderrors.New("telemetry older than the configured maximum age")

// Options tunes the cross-store behaviour of the SensorRepository
type Options struct {
	// Concurrency bounds the telemetry fan-out of FindNearby
	Concurrency int
	// StoreTimeout is applied to every single store call; zero disables it
	StoreTimeout time.Duration
	// HydrationTimeout bounds the identity+telemetry lookup of one FindNearby match
	HydrationTimeout time.Duration
	// MaxTelemetryAge marks older readings stale; zero disables staleness
	MaxTelemetryAge time.Duration
	// RequireIdentity makes RecordTelemetry reject unknown sensor ids
	RequireIdentity bool
	// CascadeDelete purges metadata and telemetry when a sensor is deleted
	CascadeDelete bool
	Observer      Observer
	Now           func() time.Time
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Concurrency:      8,
		StoreTimeout:     5 * time.Second,
		HydrationTimeout: 2 * time.Second,
		RequireIdentity:  true,
		CascadeDelete:    true,
	}
}

// SensorRepository composes the identity, metadata and telemetry stores into
// one sensor view. It is the only component talking to more than one store.
// Writes across stores are ordered but not transactional; every partial
// outcome is reported as a typed error. It holds no per-call state and is safe
// for concurrent use.
type SensorRepository struct {
	identity  IdentityStore
	metadata  MetadataStore
	telemetry TelemetryCache
	opts      Options
}

// NewSensorRepository creates a new SensorRepository
func NewSensorRepository(identity IdentityStore, metadata MetadataStore, telemetry TelemetryCache, opts Options) *SensorRepository {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SensorRepository{
		identity:  identity,
		metadata:  metadata,
		telemetry: telemetry,
		opts:      opts,
	}
}

func (r *SensorRepository) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.StoreTimeout)
}

// CreateSensor registers a sensor: the identity row first, then the metadata
// document carrying the generated id. If the metadata write fails the identity
// row stays behind and a partial_write error carrying its id is returned;
// CompensateCreate removes it.
func (r *SensorRepository) CreateSensor(ctx context.Context, req *models.CreateSensorRequest) (*models.Sensor, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.NewValidationError("sensor name is required", nil)
	}
	if err := geo.ValidatePoint(req.Latitude, req.Longitude); err != nil {
		return nil, errors.NewValidationError(err.Error(), err)
	}

	ictx, cancel := r.storeCtx(ctx)
	sensor, err := r.identity.Create(ictx, name)
	cancel()
	if err != nil {
		return nil, err
	}

	meta := &models.SensorMetadata{
		ID:               sensor.ID,
		Name:             sensor.Name,
		SensorAttributes: req.SensorAttributes,
	}
	mctx, cancel := r.storeCtx(ctx)
	err = r.metadata.Insert(mctx, meta)
	cancel()
	if err != nil {
		nuts.L.Errorf("[SensorRepository] Metadata write failed for sensor %d (%s), identity left orphaned: %v", sensor.ID, sensor.Name, err)
		r.opts.Observer.PartialWrite("create", sensor.ID)
		return nil, errors.NewPartialWriteError("metadata write failed after identity was committed", sensor.ID, err)
	}

	nuts.L.Infof("[SensorRepository] Created sensor %d (%s)", sensor.ID, sensor.Name)
	return sensor, nil
}

// CompensateCreate is the compensating action of the creation saga. It removes
// the identity row of a half-created sensor together with anything written
// under its name or id.
func (r *SensorRepository) CompensateCreate(ctx context.Context, sensorID int64) error {
	gctx, cancel := r.storeCtx(ctx)
	sensor, err := r.identity.Get(gctx, sensorID)
	cancel()
	if err != nil {
		return err
	}
	dctx, cancel := r.storeCtx(ctx)
	err = r.identity.Delete(dctx, sensorID)
	cancel()
	if err != nil {
		return err
	}
	if err := r.purgeResidue(ctx, sensor); err != nil {
		return errors.NewPartialWriteError("identity removed but residue remains", sensorID, err)
	}
	nuts.L.Infof("[SensorRepository] Compensated creation of sensor %d (%s)", sensor.ID, sensor.Name)
	return nil
}

// RecordTelemetry overwrites the telemetry blob of a sensor (last write wins).
// With RequireIdentity unknown ids fail with not_found; without it the write
// succeeds and leaves a dangling cache entry.
func (r *SensorRepository) RecordTelemetry(ctx context.Context, sensorID int64, reading models.SensorTelemetry) error {
	if err := reading.Validate(); err != nil {
		return errors.NewValidationError(err.Error(), err)
	}
	reading.Normalize(r.opts.Now())

	if r.opts.RequireIdentity {
		gctx, cancel := r.storeCtx(ctx)
		_, err := r.identity.Get(gctx, sensorID)
		cancel()
		if err != nil {
			return err
		}
	}

	blob, err := json.Marshal(reading)
	if err != nil {
		return errors.NewInternalError("failed to encode telemetry", err)
	}

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()
	if err := r.telemetry.Set(sctx, models.TelemetryKey(sensorID), blob); err != nil {
		return err
	}
	nuts.L.Debugf("[SensorRepository] Recorded telemetry for sensor %d", sensorID)
	return nil
}

// GetSensorView composes identity, metadata and telemetry of one sensor.
// Failures: not_found (no identity), inconsistent_state (identity without
// metadata), no_telemetry (identity exists but never reported).
func (r *SensorRepository) GetSensorView(ctx context.Context, sensorID int64) (*models.SensorView, error) {
	gctx, cancel := r.storeCtx(ctx)
	sensor, err := r.identity.Get(gctx, sensorID)
	cancel()
	if err != nil {
		return nil, err
	}

	mctx, cancel := r.storeCtx(ctx)
	meta, err := r.metadata.FindByName(mctx, sensor.Name)
	cancel()
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewInconsistentStateError("sensor has no metadata document", sensorID, err)
		}
		return nil, err
	}

	tctx, cancel := r.storeCtx(ctx)
	blob, err := r.telemetry.Get(tctx, models.TelemetryKey(sensorID))
	cancel()
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNoTelemetryError(sensorID, err)
		}
		return nil, err
	}

	return r.compose(sensor, meta, blob)
}

func (r *SensorRepository) compose(sensor *models.Sensor, meta *models.SensorMetadata, blob []byte) (*models.SensorView, error) {
	view, err := models.ComposeView(sensor, meta, blob)
	if err != nil {
		return nil, errors.NewInconsistentStateError("telemetry blob is unreadable", sensor.ID, err)
	}
	view.Stale = r.isStale(view.LastSeen)
	return view, nil
}

func (r *SensorRepository) isStale(lastSeen time.Time) bool {
	if r.opts.MaxTelemetryAge <= 0 {
		return false
	}
	return r.opts.Now().Sub(lastSeen) > r.opts.MaxTelemetryAge
}

// DeleteSensor removes the identity row and, with CascadeDelete, the metadata
// document and telemetry blob. The identity deletion is authoritative: if the
// purge fails afterwards the deleted sensor is returned together with a
// partial_write error and the orphan sweep picks up the residue.
func (r *SensorRepository) DeleteSensor(ctx context.Context, sensorID int64) (*models.Sensor, error) {
	gctx, cancel := r.storeCtx(ctx)
	sensor, err := r.identity.Get(gctx, sensorID)
	cancel()
	if err != nil {
		return nil, err
	}

	dctx, cancel := r.storeCtx(ctx)
	err = r.identity.Delete(dctx, sensorID)
	cancel()
	if err != nil {
		return nil, err
	}

	if r.opts.CascadeDelete {
		if err := r.purgeResidue(ctx, sensor); err != nil {
			nuts.L.Warnf("[SensorRepository] Sensor %d deleted but residue remains: %v", sensorID, err)
			r.opts.Observer.PartialWrite("delete", sensorID)
			return sensor, errors.NewPartialWriteError("identity deleted but metadata or telemetry purge failed", sensorID, err)
		}
	}

	nuts.L.Infof("[SensorRepository] Deleted sensor %d (%s), cascade=%v", sensor.ID, sensor.Name, r.opts.CascadeDelete)
	return sensor, nil
}

// purgeResidue removes the metadata document and telemetry blob of a sensor.
// Absent records are not an error.
func (r *SensorRepository) purgeResidue(ctx context.Context, sensor *models.Sensor) error {
	var errs []error

	mctx, cancel := r.storeCtx(ctx)
	if err := r.metadata.DeleteByName(mctx, sensor.Name); err != nil && !errors.IsNotFound(err) {
		errs = append(errs, err)
	}
	cancel()

	tctx, cancel := r.storeCtx(ctx)
	if err := r.telemetry.Delete(tctx, models.TelemetryKey(sensor.ID)); err != nil && !errors.IsNotFound(err) {
		errs = append(errs, err)
	}
	cancel()

	return stderrors.Join(errs...)
}

// ListSensors returns identity rows ordered by id
func (r *SensorRepository) ListSensors(ctx context.Context, offset, limit int) ([]*models.Sensor, error) {
	if offset < 0 {
		return nil, errors.NewValidationError("offset must not be negative", nil)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	lctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return r.identity.List(lctx, offset, limit)
}

// GetSensorByName resolves an identity row by its unique name
func (r *SensorRepository) GetSensorByName(ctx context.Context, name string) (*models.Sensor, error) {
	gctx, cancel := r.storeCtx(ctx)
	defer cancel()
	return r.identity.GetByName(gctx, name)
}

type nearbyResult struct {
	sensorID int64
	view     *models.SensorView
	err      error
	timedOut bool
}

// FindNearby returns the sensors whose metadata coordinates fall in the
// bounding box around the center, hydrated with their telemetry and sorted by
// id. Matches without identity or telemetry, with stale telemetry, or whose
// hydration timed out are skipped; the call itself only fails on invalid
// input or when the stores are unavailable.
func (r *SensorRepository) FindNearby(ctx context.Context, centerLat, centerLon, radiusKm float64) ([]*models.SensorView, error) {
	box, err := geo.NewBoundingBox(centerLat, centerLon, radiusKm)
	if err != nil {
		return nil, errors.NewValidationError(err.Error(), err)
	}

	qctx, cancel := r.storeCtx(ctx)
	docs, err := r.metadata.FindInBox(qctx, box)
	cancel()
	if err != nil {
		return nil, errors.NewUnavailableError("metadata store query failed", err)
	}
	views := make([]*models.SensorView, 0, len(docs))
	if len(docs) == 0 {
		return views, nil
	}

	p := pool.NewWithResults[nearbyResult]().WithMaxGoroutines(r.opts.Concurrency)
	for _, doc := range docs {
		p.Go(func() nearbyResult {
			return r.hydrate(ctx, doc)
		})
	}
	results := p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeErr error
	storeFailures := 0
	for _, res := range results {
		if res.err == nil {
			views = append(views, res.view)
			continue
		}
		reason := skipReason(res)
		if reason == SkipStoreError {
			storeFailures++
			storeErr = res.err
			nuts.L.Warnf("[SensorRepository] Skipping sensor %d near (%v, %v): %v", res.sensorID, centerLat, centerLon, res.err)
		} else {
			nuts.L.Debugf("[SensorRepository] Skipping sensor %d near (%v, %v): %s", res.sensorID, centerLat, centerLon, reason)
		}
		r.opts.Observer.SensorSkipped(res.sensorID, reason)
	}
	if storeFailures == len(results) {
		return nil, errors.NewUnavailableError("stores unavailable for every matched sensor", storeErr)
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views, nil
}

// hydrate resolves the identity of one metadata match and loads its telemetry
func (r *SensorRepository) hydrate(ctx context.Context, doc *models.SensorMetadata) nearbyResult {
	hctx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.HydrationTimeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, r.opts.HydrationTimeout)
	}
	defer cancel()

	res := nearbyResult{sensorID: doc.ID}
	fail := func(err error) nearbyResult {
		res.err = err
		res.timedOut = stderrors.Is(hctx.Err(), context.DeadlineExceeded)
		return res
	}

	sensor, err := r.identity.GetByName(hctx, doc.Name)
	if err != nil {
		return fail(err)
	}
	res.sensorID = sensor.ID

	blob, err := r.telemetry.Get(hctx, models.TelemetryKey(sensor.ID))
	if err != nil {
		if errors.IsNotFound(err) {
			err = errors.NewNoTelemetryError(sensor.ID, err)
		}
		return fail(err)
	}

	view, err := r.compose(sensor, doc, blob)
	if err != nil {
		return fail(err)
	}
	if view.Stale {
		return fail(errStaleTelemetry)
	}
	res.view = view
	return res
}

func skipReason(res nearbyResult) string {
	switch {
	case res.timedOut || stderrors.Is(res.err, context.DeadlineExceeded):
		return SkipTimeout
	case stderrors.Is(res.err, errStaleTelemetry):
		return SkipStale
	case errors.IsNoTelemetry(res.err):
		return SkipNoTelemetry
	case errors.IsNotFound(res.err):
		return SkipOrphanMetadata
	case errors.IsInconsistentState(res.err):
		return SkipInconsistent
	}
	return SkipStoreError
}
