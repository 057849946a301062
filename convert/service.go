// Package convert orchestrates the GLB conversion pipeline: download the
// asset, decode the scene into a single triangle mesh and export it as STL
// or OBJ. Identical in-flight requests are coalesced, finished exports can
// be cached in Redis, and every request is recorded in the conversion
// history when a store is configured.
package convert

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/fetch"
	"github.com/BaSui01/meshflow/gltf"
	"github.com/BaSui01/meshflow/internal/cache"
	"github.com/BaSui01/meshflow/internal/ctxkeys"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/internal/pool"
	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

// cacheType labels convert entries in cache hit/miss metrics.
const cacheType = "convert"

// exportBuffers recycles export scratch buffers across conversions.
// Buffers over 8 MiB are not retained.
var exportBuffers = pool.NewBufferPool(64<<10, 8<<20)

// Request describes one conversion job.
type Request struct {
	// GLBURL is the address the GLB asset is downloaded from.
	GLBURL string
	// Format is the export format, already parsed and validated.
	Format mesh.Format
}

// Output is the finished conversion.
type Output struct {
	// ID is the job identifier, also used as the history record ID.
	ID string
	// Data is the exported model.
	Data []byte
	// Filename is the attachment name offered to the client.
	Filename string
	// ContentType is the MIME type for the export format.
	ContentType string
	// Format echoes the requested format.
	Format mesh.Format
	// TriangleCount and VertexCount describe the exported mesh.
	TriangleCount int
	VertexCount   int
	// InputBytes is the size of the downloaded GLB.
	InputBytes int64
	// Generator is the asset generator string from the GLB, if any.
	Generator string
	// Duration covers the whole request, including cache lookups.
	Duration time.Duration
	// CacheHit is true when the export came from Redis.
	CacheHit bool
}

// Options configures a Service. Fetcher is required; Cache, Store and
// Metrics are optional and disable their feature when nil.
type Options struct {
	Config  config.ConvertConfig
	Fetcher *fetch.Client
	Cache   *cache.Manager
	Store   *store.Store
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Service runs conversion jobs.
type Service struct {
	cfg      config.ConvertConfig
	fetcher  *fetch.Client
	cache    *cache.Manager
	store    *store.Store
	metrics  *metrics.Collector
	logger   *zap.Logger
	notifier *Notifier

	group   singleflight.Group
	workers *pool.GoroutinePool

	now func() time.Time
}

// NewService creates a conversion service.
func NewService(opts Options) (*Service, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	logger := opts.Logger
	poolCfg := pool.DefaultGoroutinePoolConfig()
	if opts.Config.Workers > 0 {
		poolCfg.MaxWorkers = opts.Config.Workers
	}
	if opts.Config.MaxBatch > 0 {
		poolCfg.QueueSize = opts.Config.MaxBatch
	}
	poolCfg.PanicHandler = func(v any) {
		logger.Error("batch worker recovered from panic", zap.Any("panic", v))
	}

	return &Service{
		cfg:      opts.Config,
		fetcher:  opts.Fetcher,
		cache:    opts.Cache,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		notifier: NewNotifier(),
		workers:  pool.NewGoroutinePool(poolCfg),
		now:      time.Now,
	}, nil
}

// Notifier exposes the progress event stream for subscribers.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// Close stops the batch worker pool.
func (s *Service) Close() {
	s.workers.Close()
}

// convertResult is the shared payload produced under singleflight.
type convertResult struct {
	data          []byte
	contentType   string
	triangleCount int
	vertexCount   int
	inputBytes    int64
	generator     string
	cacheHit      bool
}

// cachedMeta is the JSON sidecar stored next to cached export bytes.
type cachedMeta struct {
	TriangleCount int    `json:"triangle_count"`
	VertexCount   int    `json:"vertex_count"`
	InputBytes    int64  `json:"input_bytes"`
	Generator     string `json:"generator,omitempty"`
}

// Convert runs the full pipeline for one request. A job ID already on the
// context is kept, so callers can follow the job through progress events.
func (s *Service) Convert(ctx context.Context, req Request) (*Output, error) {
	startTime := time.Now()

	jobID, ok := ctxkeys.JobID(ctx)
	if !ok {
		jobID = uuid.New().String()
		ctx = ctxkeys.WithJobID(ctx, jobID)
	}

	exporter, ok := mesh.ExporterFor(req.Format)
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedFormat,
			fmt.Sprintf("unsupported output format: %s", req.Format)).
			WithHTTPStatus(400)
	}
	if _, err := fetch.ValidateURL(req.GLBURL); err != nil {
		return nil, err
	}

	s.publish(jobID, req, StageQueued, nil)

	fields := []zap.Field{
		zap.String("job_id", jobID),
		zap.String("glb_url", req.GLBURL),
		zap.String("output_format", string(req.Format)),
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	s.logger.Info("starting conversion", fields...)

	key := s.cacheKey(req)
	value, err, shared := s.group.Do(key, func() (any, error) {
		return s.doConvert(ctx, jobID, req, exporter)
	})

	duration := time.Since(startTime)

	if err != nil {
		s.publish(jobID, req, StageFailed, err)
		s.recordOutcome(ctx, jobID, req, nil, duration, err)
		return nil, err
	}

	res := value.(*convertResult)
	output := &Output{
		ID:            jobID,
		Data:          res.data,
		Filename:      fmt.Sprintf("converted_model_%d.%s", s.now().Unix(), exporter.Extension()),
		ContentType:   res.contentType,
		Format:        req.Format,
		TriangleCount: res.triangleCount,
		VertexCount:   res.vertexCount,
		InputBytes:    res.inputBytes,
		Generator:     res.generator,
		Duration:      duration,
		CacheHit:      res.cacheHit,
	}

	s.publish(jobID, req, StageDone, nil)
	s.recordOutcome(ctx, jobID, req, output, duration, nil)

	s.logger.Info("conversion completed",
		zap.String("job_id", jobID),
		zap.String("output_format", string(req.Format)),
		zap.Int("triangles", output.TriangleCount),
		zap.Int("output_bytes", len(output.Data)),
		zap.Bool("cache_hit", output.CacheHit),
		zap.Bool("shared", shared),
		zap.Duration("duration", duration),
	)
	return output, nil
}

// doConvert is the expensive path: cache lookup, fetch, decode, export,
// cache store. It runs at most once per key across concurrent callers.
func (s *Service) doConvert(ctx context.Context, jobID string, req Request, exporter mesh.Exporter) (*convertResult, error) {
	// 1. serve from cache when possible
	if cached := s.cacheLookup(ctx, req, exporter); cached != nil {
		return cached, nil
	}

	// 2. download the asset
	s.publish(jobID, req, StageFetching, nil)
	data, err := s.fetchAsset(ctx, req.GLBURL)
	if err != nil {
		return nil, err
	}

	// 3. decode the GLB into a single world-space mesh
	s.publish(jobID, req, StageDecoding, nil)
	decoded, err := gltf.Decode(data)
	if err != nil {
		return nil, err
	}
	if decoded.Mesh.VertexCount() == 0 {
		return nil, types.NewError(types.ErrEmptyMesh, "Processed mesh has no vertices.").
			WithHTTPStatus(400)
	}
	if decoded.SkippedPrimitives > 0 {
		s.logger.Warn("skipped non-triangle primitives",
			zap.String("job_id", jobID),
			zap.Int("skipped", decoded.SkippedPrimitives),
		)
	}

	// OBJ carries vertex normals; compute them when the source has none.
	if req.Format == mesh.FormatOBJ && !decoded.Mesh.HasNormals() {
		decoded.Mesh.ComputeNormals()
	}

	// 4. export through a pooled scratch buffer
	s.publish(jobID, req, StageExporting, nil)
	buf := exportBuffers.Get()
	defer exportBuffers.Put(buf)
	if err := exporter.Export(buf, decoded.Mesh); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, types.NewError(types.ErrExportError, "Model conversion failed to produce data.").
			WithHTTPStatus(500)
	}

	res := &convertResult{
		data:          bytes.Clone(buf.Bytes()),
		contentType:   exporter.ContentType(),
		triangleCount: decoded.Mesh.TriangleCount(),
		vertexCount:   decoded.Mesh.VertexCount(),
		inputBytes:    int64(len(data)),
		generator:     decoded.Generator,
	}

	// 5. fill the cache for the next request
	s.cacheStore(ctx, req, res)

	return res, nil
}

// fetchAsset downloads the GLB and records fetch metrics.
func (s *Service) fetchAsset(ctx context.Context, rawURL string) ([]byte, error) {
	host := ""
	if u, err := fetch.ValidateURL(rawURL); err == nil {
		host = u.Host
	}

	fetchStart := time.Now()
	data, err := s.fetcher.Fetch(ctx, rawURL)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordFetch(host, status, time.Since(fetchStart), int64(len(data)))
	}
	return data, err
}

// cacheKey derives the singleflight and Redis key for a request.
func (s *Service) cacheKey(req Request) string {
	sum := sha256.Sum256([]byte(req.GLBURL))
	return fmt.Sprintf("convert:%s:%s", hex.EncodeToString(sum[:]), req.Format)
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cfg.CacheEnabled
}

// cacheLookup returns the cached result for the request, or nil on miss.
func (s *Service) cacheLookup(ctx context.Context, req Request, exporter mesh.Exporter) *convertResult {
	if !s.cacheEnabled() {
		return nil
	}

	key := s.cacheKey(req)
	data, err := s.cache.GetBytes(ctx, key+":data")
	if err != nil {
		if !cache.IsCacheMiss(err) {
			s.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.RecordCacheMiss(cacheType)
		}
		return nil
	}

	res := &convertResult{
		data:        data,
		contentType: exporter.ContentType(),
		cacheHit:    true,
	}

	// The meta sidecar is best effort; the export alone is servable.
	var meta cachedMeta
	if err := s.cache.GetJSON(ctx, key+":meta", &meta); err == nil {
		res.triangleCount = meta.TriangleCount
		res.vertexCount = meta.VertexCount
		res.inputBytes = meta.InputBytes
		res.generator = meta.Generator
	}

	if s.metrics != nil {
		s.metrics.RecordCacheHit(cacheType)
	}
	return res
}

// cacheStore writes a finished export to Redis.
func (s *Service) cacheStore(ctx context.Context, req Request, res *convertResult) {
	if !s.cacheEnabled() {
		return
	}

	key := s.cacheKey(req)
	if err := s.cache.SetBytes(ctx, key+":data", res.data, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
		return
	}

	meta := cachedMeta{
		TriangleCount: res.triangleCount,
		VertexCount:   res.vertexCount,
		InputBytes:    res.inputBytes,
		Generator:     res.generator,
	}
	if err := s.cache.SetJSON(ctx, key+":meta", meta, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache meta store failed", zap.String("key", key), zap.Error(err))
	}
}

// recordOutcome updates metrics and the conversion history for one request.
func (s *Service) recordOutcome(ctx context.Context, jobID string, req Request, output *Output, duration time.Duration, convErr error) {
	status := store.StatusSucceeded
	if convErr != nil {
		status = store.StatusFailed
	}

	if s.metrics != nil {
		triangles := 0
		outputBytes := int64(0)
		if output != nil {
			triangles = output.TriangleCount
			outputBytes = int64(len(output.Data))
		}
		s.metrics.RecordConversion(string(req.Format), status, duration, triangles, outputBytes)
	}

	if s.store == nil {
		return
	}

	record := &store.ConversionRecord{
		ID:           jobID,
		SourceURL:    req.GLBURL,
		OutputFormat: string(req.Format),
		Status:       status,
		DurationMS:   duration.Milliseconds(),
	}
	if output != nil {
		record.Filename = output.Filename
		record.TriangleCount = output.TriangleCount
		record.VertexCount = output.VertexCount
		record.InputBytes = output.InputBytes
		record.OutputBytes = int64(len(output.Data))
	}
	if convErr != nil {
		code := types.GetErrorCode(convErr)
		if code == "" {
			code = types.ErrInternalError
		}
		record.ErrorCode = string(code)
		record.ErrorMessage = convErr.Error()
	}

	if err := s.store.Create(ctx, record); err != nil {
		s.logger.Warn("failed to record conversion",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// publish emits a progress event for the job.
func (s *Service) publish(jobID string, req Request, stage Stage, err error) {
	event := Progress{
		JobID:     jobID,
		SourceURL: req.GLBURL,
		Format:    string(req.Format),
		Stage:     stage,
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.notifier.Publish(event)
}
