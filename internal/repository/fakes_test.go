package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/geo"
	"github.com/itsatony/sensorhub/internal/models"
)

type fakeIdentityStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*models.Sensor
	getErr  error
	now     time.Time
	deleted []int64
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{rows: map[int64]*models.Sensor{}, now: time.Now()}
}

func (f *fakeIdentityStore) Create(_ context.Context, name string) (*models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.Name == name {
			return nil, errors.NewConflictError("sensor name already exists", nil)
		}
	}
	f.nextID++
	s := &models.Sensor{ID: f.nextID, Name: name, CreatedAt: f.now}
	f.rows[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeIdentityStore) Get(_ context.Context, id int64) (*models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.rows[id]
	if !ok {
		return nil, errors.NewNotFoundError("sensor not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeIdentityStore) GetByName(_ context.Context, name string) (*models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, s := range f.rows {
		if s.Name == name {
			cp := *s
			return &cp, nil
		}
	}
	return nil, errors.NewNotFoundError("sensor not found", nil)
}

func (f *fakeIdentityStore) List(_ context.Context, offset, limit int) ([]*models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Sensor{}
	for _, s := range f.rows {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []*models.Sensor{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIdentityStore) ListCreatedBefore(_ context.Context, before time.Time) ([]*models.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Sensor{}
	for _, s := range f.rows {
		if s.CreatedAt.Before(before) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeIdentityStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return errors.NewNotFoundError("sensor not found", nil)
	}
	delete(f.rows, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMetadataStore struct {
	mu        sync.Mutex
	docs      map[string]*models.SensorMetadata
	insertErr error
	queryErr  error
	deleteErr error
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{docs: map[string]*models.SensorMetadata{}}
}

func (f *fakeMetadataStore) Insert(_ context.Context, meta *models.SensorMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *meta
	f.docs[meta.Name] = &cp
	return nil
}

func (f *fakeMetadataStore) FindByName(_ context.Context, name string) (*models.SensorMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[name]
	if !ok {
		return nil, errors.NewNotFoundError("metadata not found", nil)
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeMetadataStore) FindInBox(_ context.Context, box geo.BoundingBox) ([]*models.SensorMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := []*models.SensorMetadata{}
	for _, doc := range f.docs {
		if box.Contains(doc.Latitude, doc.Longitude) {
			cp := *doc
			out = append(out, &cp)
		}
	}
	// map order is random, which also exercises the sorted output
	return out, nil
}

func (f *fakeMetadataStore) FindAll(_ context.Context) ([]*models.SensorMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.SensorMetadata{}
	for _, doc := range f.docs {
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeMetadataStore) DeleteByName(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.docs[name]; !ok {
		return errors.NewNotFoundError("metadata not found", nil)
	}
	delete(f.docs, name)
	return nil
}

func (f *fakeMetadataStore) put(meta *models.SensorMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[meta.Name] = meta
}

type fakeTelemetryCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	delays   map[string]time.Duration
	delay    time.Duration
	getErr   error
	inFlight int32
	maxSeen  int32
}

func newFakeTelemetryCache() *fakeTelemetryCache {
	return &fakeTelemetryCache{data: map[string][]byte{}, delays: map[string]time.Duration{}}
}

func (f *fakeTelemetryCache) Get(ctx context.Context, key string) ([]byte, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}

	f.mu.Lock()
	delay := f.delay
	if d, ok := f.delays[key]; ok {
		delay = d
	}
	getErr := f.getErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.NewCacheError("failed to get telemetry", ctx.Err())
		case <-time.After(delay):
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, errors.NewNotFoundError("telemetry not found", nil)
	}
	return v, nil
}

func (f *fakeTelemetryCache) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeTelemetryCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeTelemetryCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

type recordingObserver struct {
	mu      sync.Mutex
	skipped map[int64]string
	partial []string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{skipped: map[int64]string{}}
}

func (o *recordingObserver) SensorSkipped(id int64, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[id] = reason
}

func (o *recordingObserver) PartialWrite(op string, _ int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.partial = append(o.partial, op)
}
